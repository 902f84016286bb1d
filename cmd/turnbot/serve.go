package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-turns/adapters/gojob"
	"github.com/goliatone/go-turns/adapters/gologger"
	oteladapter "github.com/goliatone/go-turns/adapters/otel"
	"github.com/goliatone/go-turns/auth"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
	"github.com/goliatone/go-turns/transport"
	"github.com/goliatone/go-turns/webhooks"
	"github.com/goliatone/go-turns/workflow"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	tracerName           = "github.com/goliatone/go-turns"
	shutdownTimeout      = 10 * time.Second
	interactionDebounce  = time.Second
	notifyMaxAttempts    = 5
	notifyMaxRetryDelay  = time.Minute
	defaultWebhookPath   = "/slack/events"
	defaultSlashCommand  = workflow.DefaultSlashCommand
	defaultRetrierBuffer = 256
)

type serveOptions struct {
	path         string
	slashCommand string
	traceStdout  bool
	logLevel     string
	logFormat    string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, opts, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.path, "path", defaultWebhookPath, "path the platform posts deliveries to")
	cmd.Flags().StringVar(&opts.slashCommand, "slash-command", defaultSlashCommand, "slash command handled by the rotation subscribers")
	cmd.Flags().BoolVar(&opts.traceStdout, "trace-stdout", false, "export traces to stdout")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "trace, debug, info, warn or error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "text or json")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions, logOut io.Writer) error {
	cfg, err := loadConfig(ctx, root)
	if err != nil {
		return err
	}
	provider := gologger.NewProvider(gologger.NewConsoleLogger(logOut, opts.logLevel, opts.logFormat))
	_, logger := gologger.Resolve(cfg.ServiceName, provider, nil)

	shutdownTracing, err := initTracing(opts.traceStdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics := oteladapter.NewMetricsRecorder(oteladapter.WithLogger(logger))

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc, err := newTurnService(cfg, st, core.WithLogger(logger), core.WithMetricsRecorder(metrics))
	if err != nil {
		return err
	}

	client := transport.NewClient(cfg.API,
		transport.WithLogger(logger),
		transport.WithMetricsRecorder(metrics),
	)
	senders := client.SenderFactory()

	router := inbound.NewRouter(
		inbound.WithTracer(otel.Tracer(tracerName)),
		inbound.WithLogger(logger),
		inbound.WithMetricsRecorder(metrics),
	)

	notifyQueue := gojob.NewLocalQueue(defaultRetrierBuffer)
	defer notifyQueue.Close()

	subscribers, err := workflow.New(svc,
		workflow.WithJobEnqueuer(gojob.NewEnqueuerAdapter(notifyQueue)),
		workflow.WithSlashCommand(opts.slashCommand),
		workflow.WithLogger(logger),
		workflow.WithMetricsRecorder(metrics),
	)
	if err != nil {
		return err
	}
	unregister, err := subscribers.Register(router)
	if err != nil {
		return err
	}
	defer unregister()

	dispatcherOpts := []webhooks.Option{
		webhooks.WithClaimStore(st.factory.ClaimStore()),
		webhooks.WithClaimLease(cfg.Dedupe.TTL),
		webhooks.WithBurstController(webhooks.NewBurstController(webhooks.BurstOptions{
			Mode:   webhooks.BurstModeDebounce,
			Window: interactionDebounce,
		})),
		webhooks.WithSenderFactory(senders),
		webhooks.WithIgnoreBots(cfg.IgnoreBots),
		webhooks.WithLogger(logger),
		webhooks.WithMetricsRecorder(metrics),
	}
	if token := strings.TrimSpace(cfg.VerificationToken); token != "" {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithVerifier(webhooks.TokenVerifier{Token: token}))
	} else {
		logger.Warn("verification_token is empty, deliveries are not verified")
	}
	if strings.TrimSpace(cfg.OAuth.ClientID) != "" {
		installer, err := auth.NewInstaller(cfg.OAuth, client, svc,
			auth.WithNotifier(router),
			auth.WithTenantStore(st.tenants),
			auth.WithSenderFactory(senders),
			auth.WithLogger(logger),
			auth.WithMetricsRecorder(metrics),
		)
		if err != nil {
			return err
		}
		dispatcherOpts = append(dispatcherOpts, webhooks.WithInstallHandler(installer))
	}

	dispatcher, err := webhooks.NewDispatcher(router, st.tenants, dispatcherOpts...)
	if err != nil {
		return err
	}

	retrier, err := workflow.NewStepFailureRetrier(
		gojob.NewDequeuerAdapter(notifyQueue, gojob.RetryPolicy{
			MaxAttempts:     notifyMaxAttempts,
			MaxDelay:        notifyMaxRetryDelay,
			DeadLetterOnMax: true,
		}),
		st.tenants,
		senders,
		workflow.WithRetrierMaxAttempts(notifyMaxAttempts),
		workflow.WithRetrierHook(gojob.NewWorkerHookAdapter(gojob.MetricsHook(metrics))),
		workflow.WithRetrierLogger(logger),
	)
	if err != nil {
		return err
	}
	go func() {
		if err := retrier.Run(ctx); err != nil {
			logger.Error("step failure retrier stopped", "error", err)
		}
	}()

	server := webhooks.NewServer(dispatcher, webhooks.ServerConfig{
		Path:         opts.path,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	handler := otelhttp.NewHandler(server.Handler(), "turns.webhooks")

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", cfg.HTTP.Addr, "path", opts.path)
		errCh <- server.Start(cfg.HTTP.Addr, handler)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down webhook server")
	return server.Shutdown(shutdownCtx)
}

// initTracing installs a global tracer provider, exporting to stdout when
// asked and sampling without export otherwise.
func initTracing(stdout bool) (func(context.Context) error, error) {
	opts := []sdktrace.TracerProviderOption{}
	if stdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
