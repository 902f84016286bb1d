package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
	"github.com/goliatone/go-turns/transport"
)

const (
	EventInstallSuccess = "install_success"
	EventInstallError   = "install_error"

	cacheControlNoStore = "no-cache, no-store, must-revalidate"
)

// InstallationSaver persists the auth returned by a completed install.
type InstallationSaver interface {
	SaveInstallation(ctx context.Context, tenantID string, auth map[string]any) (core.TenantRecord, error)
}

// PlatformClient is the subset of transport.Client the install flow calls.
type PlatformClient interface {
	Send(ctx context.Context, endpoint string, message map[string]any) (map[string]any, error)
	SendForm(ctx context.Context, endpoint string, values map[string]string) (map[string]any, error)
}

// Notifier receives the synthetic install events.
type Notifier interface {
	Dispatch(ctx context.Context, payload core.Payload, collab inbound.Collaborators) inbound.DispatchResult
}

type Option func(*Installer)

func WithNotifier(notifier Notifier) Option {
	return func(i *Installer) {
		i.notifier = notifier
	}
}

func WithTenantStore(store core.TenantStore) Option {
	return func(i *Installer) {
		i.store = store
	}
}

func WithSenderFactory(factory core.SenderFactory) Option {
	return func(i *Installer) {
		i.senders = factory
	}
}

func WithLogger(logger core.Logger) Option {
	return func(i *Installer) {
		i.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(i *Installer) {
		if recorder != nil {
			i.metrics = recorder
		}
	}
}

// Installer runs the OAuth install: redirect to the authorize page, exchange
// the returned code, look up the team url, persist the tenant and announce
// the outcome through the router.
type Installer struct {
	config   core.OAuthConfig
	client   PlatformClient
	saver    InstallationSaver
	notifier Notifier
	store    core.TenantStore
	senders  core.SenderFactory
	logger   core.Logger
	metrics  core.MetricsRecorder
}

func NewInstaller(cfg core.OAuthConfig, client PlatformClient, saver InstallationSaver, opts ...Option) (*Installer, error) {
	if client == nil {
		return nil, authError("auth: platform client is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if saver == nil {
		return nil, authError("auth: installation saver is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.AuthorizeURL = firstNonEmpty(cfg.AuthorizeURL, core.DefaultAuthorizeURL)
	if cfg.ClientID == "" {
		return nil, authError("auth: oauth client_id is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	installer := &Installer{
		config:  cfg,
		client:  client,
		saver:   saver,
		metrics: core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(installer)
		}
	}
	_, installer.logger = glog.Resolve("turns.auth", nil, installer.logger)
	installer.logger = glog.Ensure(installer.logger)
	return installer, nil
}

// AuthorizeURL appends the caller params to the authorize url together with
// the configured client_id and scope, which always win.
func (i *Installer) AuthorizeURL(params map[string]string) string {
	query := cloneParams(params)
	query["client_id"] = i.config.ClientID
	if scopes := strings.TrimSpace(i.config.Scopes); scopes != "" {
		query["scope"] = scopes
	}
	return joinQuery(i.config.AuthorizeURL, encodeQuery(query))
}

// Install exchanges params["code"] for the team auth, adds the team url and
// saves it under the team id. Workflows of a reinstalled tenant are kept.
func (i *Installer) Install(ctx context.Context, params map[string]string) (core.TenantRecord, error) {
	code := strings.TrimSpace(params["code"])
	if code == "" {
		return core.TenantRecord{}, authError("auth: oauth code is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	granted, err := i.client.SendForm(ctx, transport.MethodOAuthAccess, map[string]string{
		"code":          code,
		"state":         params["state"],
		"client_id":     i.config.ClientID,
		"client_secret": i.config.ClientSecret,
	})
	if err != nil {
		return core.TenantRecord{}, err
	}

	teamID := firstNonEmpty(readString(granted, "team_id"), core.Payload(granted).String("team", "id"))
	if teamID == "" {
		return core.TenantRecord{}, authError("auth: oauth response carries no team id", goerrors.CategoryExternal, core.ErrorExternalAPI, map[string]any{
			"method": transport.MethodOAuthAccess,
		})
	}

	identity, err := i.client.Send(ctx, transport.MethodAuthTest, map[string]any{
		"token": readString(granted, "access_token"),
	})
	if err != nil {
		return core.TenantRecord{}, err
	}
	if teamURL := readString(identity, "url"); teamURL != "" {
		granted["url"] = teamURL
	}

	return i.saver.SaveInstallation(ctx, teamID, granted)
}

// Handle serves the install endpoint. Every answer is a 302.
func (i *Installer) Handle(ctx context.Context, req core.InboundRequest) core.Response {
	params := cloneParams(req.Query)
	if strings.TrimSpace(params["code"]) == "" {
		location := i.AuthorizeURL(params)
		core.LogWithLevel(ctx, i.logger, "info", "redirecting to authorize url", map[string]any{
			"authorize_url": i.config.AuthorizeURL,
		})
		return redirect(location)
	}

	startedAt := time.Now()
	redirectURL := joinQuery(i.config.InstallRedirect, encodeQuery(map[string]string{"state": params["state"]}))
	record, err := i.Install(ctx, params)
	status := "success"
	if err != nil {
		status = "failure"
	}
	i.metrics.IncCounter(ctx, core.MetricInstallTotal, 1, map[string]string{"status": status})

	if err != nil {
		core.LogWithLevel(ctx, i.logger, "error", "install failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
		})
		event := paramsPayload(params)
		event["type"] = EventInstallError
		event["error"] = err.Error()
		i.notify(ctx, core.Payload(event), nil)
		return redirect(joinQuery(redirectURL, encodeQuery(map[string]string{"error": err.Error()})))
	}

	core.LogWithLevel(ctx, i.logger, "info", "install completed", map[string]any{
		"tenant_id":   record.ID,
		"duration_ms": time.Since(startedAt).Milliseconds(),
	})
	event := paramsPayload(params)
	event["type"] = EventInstallSuccess
	event["team_id"] = record.ID
	i.notify(ctx, core.Payload(event), &record)
	return redirect(redirectURL)
}

func (i *Installer) notify(ctx context.Context, payload core.Payload, tenant *core.TenantRecord) {
	if i.notifier == nil {
		return
	}
	collab := inbound.Collaborators{Tenant: tenant, Store: i.store}
	if i.senders != nil {
		collab.Sender = i.senders(tenant, payload)
	}
	result := i.notifier.Dispatch(ctx, payload, collab)
	if err := result.Err(); err != nil {
		core.LogWithLevel(ctx, i.logger, "warn", "install event handlers failed", map[string]any{
			"dispatch_id": result.ID,
			"event":       payload.String("type"),
			"error":       err.Error(),
		})
	}
}

func redirect(location string) core.Response {
	return core.Response{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location":      location,
			"Cache-Control": cacheControlNoStore,
		},
	}
}

func joinQuery(base, query string) string {
	if query == "" {
		return base
	}
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

func authError(message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	return core.NewError(message, category, textCode, metadata)
}
