package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/rotation"
)

func TestServiceErrorMapper_AssignsStableCodes(t *testing.T) {
	mapped := serviceErrorMapper(fmt.Errorf("load: %w", ErrTenantNotFound))
	if mapped.TextCode != ErrorNotFound {
		t.Fatalf("expected not found text code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", mapped.Code)
	}

	mapped = serviceErrorMapper(ErrVersionConflict)
	if mapped.TextCode != ErrorConflict {
		t.Fatalf("expected conflict code, got %q", mapped.TextCode)
	}
	if mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict category, got %q", mapped.Category)
	}

	mapped = serviceErrorMapper(rotation.ErrDuplicateParticipant)
	if mapped.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input code for duplicate participant, got %q", mapped.TextCode)
	}

	mapped = serviceErrorMapper(stderrors.New("core: workflow id is required"))
	if mapped.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input code for required field, got %q", mapped.TextCode)
	}
}

func TestServiceErrorMapper_KeepsRichErrors(t *testing.T) {
	rich := NewError("remote failed", goerrors.CategoryExternal, ErrorExternalAPI, map[string]any{"method": "chat.postMessage"})
	mapped := serviceErrorMapper(rich)
	if mapped != rich {
		t.Fatalf("expected rich error to pass through")
	}
	if mapped.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for external errors, got %d", mapped.Code)
	}
}

func TestServiceMethods_MapErrorsToStableCodes(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.AssignTurn(ctx, TurnRequest{TenantID: "T1"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input text code, got %q", richErr.TextCode)
	}

	_, err = svc.AssignTurn(ctx, TurnRequest{TenantID: "T1", WorkflowID: "Wf1"})
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ErrorNotFound {
		t.Fatalf("expected not found text code for unknown tenant, got %q", richErr.TextCode)
	}
}

func TestMapError_Nil(t *testing.T) {
	if MapError(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}
