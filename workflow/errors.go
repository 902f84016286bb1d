package workflow

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/core"
)

func workflowError(message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	return core.NewError(message, category, textCode, metadata)
}

func stepFailedError(cause error, metadata map[string]any) error {
	return core.WrapError(cause, goerrors.CategoryOperation, "workflow: step execution failed", core.ErrorWorkflowStepFailed, metadata)
}

func missingSenderError(key string) error {
	return workflowError("workflow: event has no sender", goerrors.CategoryInternal, core.ErrorInternal, map[string]any{"key": key})
}
