package command

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/core"
)

func TestConfigureRotationMessage_ValidateReturnsRichError(t *testing.T) {
	err := (ConfigureRotationMessage{Request: core.ConfigureRotationRequest{TenantID: "T1"}}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "workflow_id" {
		t.Fatalf("expected workflow_id validation field, got %#v", validation)
	}
}

func TestConfigureRotationMessage_RejectsBlankUsers(t *testing.T) {
	err := (ConfigureRotationMessage{Request: core.ConfigureRotationRequest{
		TenantID:   "T1",
		WorkflowID: "Wf1",
		Users:      []string{"U1", " "},
	}}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %v", err)
	}
	if fields := rich.AllValidationErrors(); len(fields) == 0 || fields[0].Field != "users" {
		t.Fatalf("expected users validation field, got %#v", fields)
	}
}

func TestAssignTurnCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *AssignTurnCommand
	err := cmd.Execute(context.Background(), AssignTurnMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ErrorInternal, rich.TextCode)
	}
}
