package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/rotation"
)

func TestConfigureRotationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubRotationService{
		configureFn: func(_ context.Context, req core.ConfigureRotationRequest) (rotation.State, error) {
			called = true
			if req.TenantID != "T1" || req.WorkflowID != "Wf1" || len(req.Users) != 2 {
				t.Fatalf("unexpected request: %#v", req)
			}
			return rotation.New(req.Users)
		},
	}

	cmd := NewConfigureRotationCommand(svc)
	collector := gocmd.NewResult[rotation.State]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ConfigureRotationMessage{Request: core.ConfigureRotationRequest{
		TenantID:   "T1",
		WorkflowID: "Wf1",
		Users:      []string{"U1", "U2"},
	}})
	if err != nil {
		t.Fatalf("execute configure: %v", err)
	}
	if !called {
		t.Fatalf("expected configure service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if order := result.TurnOrder(); len(order) != 2 || order[0] != "U1" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestTurnCommands_DelegateToService(t *testing.T) {
	t.Run("assign", func(t *testing.T) {
		svc := stubRotationService{
			assignFn: func(_ context.Context, req core.TurnRequest) (core.TurnResult, error) {
				return core.TurnResult{TenantID: req.TenantID, WorkflowID: req.WorkflowID, UserID: "U1"}, nil
			},
		}
		collector := gocmd.NewResult[core.TurnResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewAssignTurnCommand(svc).Execute(ctx, AssignTurnMessage{Request: core.TurnRequest{TenantID: "T1", WorkflowID: "Wf1"}}); err != nil {
			t.Fatalf("execute assign: %v", err)
		}
		result, ok := collector.Load()
		if !ok || result.UserID != "U1" {
			t.Fatalf("unexpected assign result: %#v", result)
		}
	})

	t.Run("skip", func(t *testing.T) {
		svc := stubRotationService{
			skipFn: func(_ context.Context, req core.TurnRequest) (core.TurnResult, error) {
				return core.TurnResult{TenantID: req.TenantID, WorkflowID: req.WorkflowID, UserID: "U2", Skipped: "U1"}, nil
			},
		}
		collector := gocmd.NewResult[core.TurnResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewSkipTurnCommand(svc).Execute(ctx, SkipTurnMessage{Request: core.TurnRequest{TenantID: "T1", WorkflowID: "Wf1"}}); err != nil {
			t.Fatalf("execute skip: %v", err)
		}
		result, ok := collector.Load()
		if !ok || result.UserID != "U2" || result.Skipped != "U1" {
			t.Fatalf("unexpected skip result: %#v", result)
		}
	})

	t.Run("save installation", func(t *testing.T) {
		svc := stubRotationService{
			saveFn: func(_ context.Context, tenantID string, auth map[string]any) (core.TenantRecord, error) {
				if auth["access_token"] != "xoxb" {
					t.Fatalf("unexpected auth payload: %#v", auth)
				}
				return core.TenantRecord{ID: tenantID, Version: 1}, nil
			},
		}
		err := NewSaveInstallationCommand(svc).Execute(context.Background(), SaveInstallationMessage{
			TenantID: "T1",
			Auth:     map[string]any{"access_token": "xoxb"},
		})
		if err != nil {
			t.Fatalf("execute save installation: %v", err)
		}
	})
}

func TestTurnCommands_PropagateServiceErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := stubRotationService{
		assignFn: func(context.Context, core.TurnRequest) (core.TurnResult, error) {
			return core.TurnResult{}, boom
		},
	}
	collector := gocmd.NewResult[core.TurnResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewAssignTurnCommand(svc).Execute(ctx, AssignTurnMessage{Request: core.TurnRequest{TenantID: "T1", WorkflowID: "Wf1"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected service error, got %v", err)
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("expected no stored result on failure")
	}
}

func TestTurnCommands_ValidateBeforeCallingService(t *testing.T) {
	svc := stubRotationService{
		skipFn: func(context.Context, core.TurnRequest) (core.TurnResult, error) {
			t.Fatalf("service should not be called for invalid input")
			return core.TurnResult{}, nil
		},
	}
	if err := NewSkipTurnCommand(svc).Execute(context.Background(), SkipTurnMessage{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

type stubRotationService struct {
	configureFn func(context.Context, core.ConfigureRotationRequest) (rotation.State, error)
	assignFn    func(context.Context, core.TurnRequest) (core.TurnResult, error)
	skipFn      func(context.Context, core.TurnRequest) (core.TurnResult, error)
	saveFn      func(context.Context, string, map[string]any) (core.TenantRecord, error)
}

func (s stubRotationService) ConfigureRotation(ctx context.Context, req core.ConfigureRotationRequest) (rotation.State, error) {
	if s.configureFn == nil {
		return rotation.State{}, nil
	}
	return s.configureFn(ctx, req)
}

func (s stubRotationService) AssignTurn(ctx context.Context, req core.TurnRequest) (core.TurnResult, error) {
	if s.assignFn == nil {
		return core.TurnResult{}, nil
	}
	return s.assignFn(ctx, req)
}

func (s stubRotationService) SkipTurn(ctx context.Context, req core.TurnRequest) (core.TurnResult, error) {
	if s.skipFn == nil {
		return core.TurnResult{}, nil
	}
	return s.skipFn(ctx, req)
}

func (s stubRotationService) SaveInstallation(ctx context.Context, tenantID string, auth map[string]any) (core.TenantRecord, error) {
	if s.saveFn == nil {
		return core.TenantRecord{ID: tenantID}, nil
	}
	return s.saveFn(ctx, tenantID, auth)
}

var _ RotationService = (*core.Service)(nil)
