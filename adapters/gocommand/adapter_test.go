package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	turnscommand "github.com/goliatone/go-turns/command"
	"github.com/goliatone/go-turns/core"
	turnsquery "github.com/goliatone/go-turns/query"
	"github.com/goliatone/go-turns/rotation"
)

type okMessage struct{}

func (okMessage) Type() string { return "turns.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "turns.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "turns.command.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "turns.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("turns.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestBindRotationRoutesCommandsAndQueries(t *testing.T) {
	ctx := context.Background()
	svc, err := core.NewService(core.DefaultConfig(), core.WithTenantStore(core.NewMemoryTenantStore()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	bindings, err := BindRotation(NewRegistryAdapter(command.NewRegistry()), RotationHandlers{
		SaveInstallation:  turnscommand.NewSaveInstallationCommand(svc),
		ConfigureRotation: turnscommand.NewConfigureRotationCommand(svc),
		AssignTurn:        turnscommand.NewAssignTurnCommand(svc),
		SkipTurn:          turnscommand.NewSkipTurnCommand(svc),
		GetRotation:       turnsquery.NewGetRotationQuery(svc),
		GetTenant:         turnsquery.NewGetTenantQuery(svc),
	})
	if err != nil {
		t.Fatalf("bind rotation: %v", err)
	}
	defer bindings.Close()
	if bindings.Len() != 6 {
		t.Fatalf("expected 6 subscriptions, got %d", bindings.Len())
	}

	record, ok, err := DispatchResult[turnscommand.SaveInstallationMessage, core.TenantRecord](ctx, turnscommand.SaveInstallationMessage{
		TenantID: "T1",
		Auth:     map[string]any{"access_token": "xoxb-1"},
	})
	if err != nil || !ok {
		t.Fatalf("install: ok=%v err=%v", ok, err)
	}
	if record.ID != "T1" || record.Version != 1 {
		t.Fatalf("unexpected tenant record %#v", record)
	}

	state, ok, err := DispatchResult[turnscommand.ConfigureRotationMessage, rotation.State](ctx, turnscommand.ConfigureRotationMessage{
		Request: core.ConfigureRotationRequest{TenantID: "T1", WorkflowID: "Wf1", Users: []string{"U1", "U2"}},
	})
	if err != nil || !ok {
		t.Fatalf("configure: ok=%v err=%v", ok, err)
	}
	if order := state.TurnOrder(); len(order) != 2 || order[0] != "U1" {
		t.Fatalf("unexpected turn order %v", order)
	}

	result, _, err := DispatchResult[turnscommand.AssignTurnMessage, core.TurnResult](ctx, turnscommand.AssignTurnMessage{
		Request: core.TurnRequest{TenantID: "T1", WorkflowID: "Wf1"},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if result.UserID != "U1" {
		t.Fatalf("expected U1, got %#v", result)
	}

	tenant, err := Query[turnsquery.GetTenantMessage, core.TenantRecord](ctx, turnsquery.GetTenantMessage{TenantID: "T1"})
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if tenant.Version != 3 {
		t.Fatalf("expected version 3 after install, configure and assign, got %d", tenant.Version)
	}

	bindings.Close()
	if bindings.Len() != 0 {
		t.Fatalf("expected bindings to be released")
	}
}

func TestBindRotationRequiresRegistry(t *testing.T) {
	if _, err := BindRotation(nil, RotationHandlers{}); err == nil {
		t.Fatalf("expected missing registry to fail")
	}
}
