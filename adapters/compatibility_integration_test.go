package adapters_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/adapters/gocommand"
	"github.com/goliatone/go-turns/adapters/gojob"
	"github.com/goliatone/go-turns/adapters/gologger"
	turnscommand "github.com/goliatone/go-turns/command"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
	turnsquery "github.com/goliatone/go-turns/query"
	"github.com/goliatone/go-turns/rotation"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("turns", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueueProbe := &compatEnqueuer{}
	enqueueAdapter := gojob.NewEnqueuerAdapter(enqueueProbe)
	if err := enqueueAdapter.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          core.JobIDStepFailureNotify,
		Parameters:     map[string]any{"tenant_id": "T1", "workflow_step_execute_id": "Ex1"},
		IdempotencyKey: "Ex1",
		DedupPolicy:    "drop",
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	if enqueueProbe.last == nil || enqueueProbe.last.JobID != core.JobIDStepFailureNotify {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}
	if enqueueProbe.last.IdempotencyKey != "Ex1" {
		t.Fatalf("expected idempotency key to survive mapping, got %q", enqueueProbe.last.IdempotencyKey)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("turns.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_RouterDispatchesThroughCommandWrappers(t *testing.T) {
	ctx := context.Background()
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithTenantStore(core.NewMemoryTenantStore()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())

	installSub, err := gocommand.RegisterAndSubscribe(adapter, turnscommand.NewSaveInstallationCommand(svc))
	if err != nil {
		t.Fatalf("register install wrapper: %v", err)
	}
	defer installSub.Unsubscribe()

	configureSub, err := gocommand.RegisterAndSubscribe(adapter, turnscommand.NewConfigureRotationCommand(svc))
	if err != nil {
		t.Fatalf("register configure wrapper: %v", err)
	}
	defer configureSub.Unsubscribe()

	assignSub, err := gocommand.RegisterAndSubscribe(adapter, turnscommand.NewAssignTurnCommand(svc))
	if err != nil {
		t.Fatalf("register assign wrapper: %v", err)
	}
	defer assignSub.Unsubscribe()

	rotationSub, err := gocommand.RegisterAndSubscribeQuery(adapter, turnsquery.NewGetRotationQuery(svc))
	if err != nil {
		t.Fatalf("register rotation query wrapper: %v", err)
	}
	defer rotationSub.Unsubscribe()

	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	if err := gocommand.Dispatch(ctx, turnscommand.SaveInstallationMessage{
		TenantID: "T1",
		Auth:     map[string]any{"access_token": "xoxb-1"},
	}); err != nil {
		t.Fatalf("dispatch install: %v", err)
	}
	if err := gocommand.Dispatch(ctx, turnscommand.ConfigureRotationMessage{
		Request: core.ConfigureRotationRequest{TenantID: "T1", WorkflowID: "Wf1", Users: []string{"U1", "U2"}},
	}); err != nil {
		t.Fatalf("dispatch configure: %v", err)
	}

	router := inbound.NewRouter()
	unsubscribe, err := router.Subscribe("/turns", func(ctx context.Context, event inbound.Event) (*core.Response, error) {
		workflowID := event.Payload.String("text")
		if err := gocommand.Dispatch(ctx, turnscommand.AssignTurnMessage{
			Request: core.TurnRequest{TenantID: event.Payload.TenantID(), WorkflowID: workflowID},
		}); err != nil {
			return nil, err
		}
		res, err := core.JSONResponse(http.StatusOK, map[string]any{"text": "assigned"})
		return &res, err
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	result := router.Dispatch(ctx, core.Payload{
		"team_id": "T1",
		"command": "/turns",
		"text":    "Wf1",
	}, inbound.Collaborators{})
	if err := result.Err(); err != nil {
		t.Fatalf("dispatch slash command: %v", err)
	}
	if result.Invoked != 1 || !result.HasResponse() {
		t.Fatalf("expected one handler with a response, got %#v", result)
	}

	state, err := gocommand.Query[turnsquery.GetRotationMessage, rotation.State](ctx, turnsquery.GetRotationMessage{
		Request: core.TurnRequest{TenantID: "T1", WorkflowID: "Wf1"},
	})
	if err != nil {
		t.Fatalf("query rotation: %v", err)
	}
	if current, ok := state.Current(); !ok || current != "U1" {
		t.Fatalf("expected U1 to hold the turn, got %#v", state)
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "turns.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
