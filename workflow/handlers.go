package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
	"github.com/goliatone/go-turns/transport"
)

// replier is implemented by senders bound to an interaction payload.
type replier interface {
	Reply(ctx context.Context, message map[string]any, ephemeral bool) (map[string]any, error)
}

// HandleShortcut opens the list creation modal.
func (s *Subscribers) HandleShortcut(ctx context.Context, event inbound.Event) (*core.Response, error) {
	if event.Payload.String("callback_id") != CallbackCreateList {
		return nil, nil
	}
	if event.Sender == nil {
		return nil, missingSenderError(event.Key)
	}
	_, err := event.Sender.Send(ctx, transport.MethodViewsOpen, map[string]any{
		"trigger_id": event.Payload.String("trigger_id"),
		"view":       createListModal(),
	})
	return nil, err
}

// HandleStepEdit opens the step configuration view with the users currently
// in the rotation, in turn order.
func (s *Subscribers) HandleStepEdit(ctx context.Context, event inbound.Event) (*core.Response, error) {
	if event.Payload.String("callback_id") != CallbackSelectFromList {
		return nil, nil
	}
	if event.Sender == nil {
		return nil, missingSenderError(event.Key)
	}
	req := core.TurnRequest{
		TenantID:   tenantOf(event),
		WorkflowID: event.Payload.String("workflow_step", "workflow_id"),
	}
	var users []string
	state, err := s.service.GetRotation(ctx, req)
	switch {
	case err == nil:
		users = state.TurnOrder()
	case errors.Is(err, core.ErrWorkflowNotConfigured), errors.Is(err, core.ErrTenantNotFound):
	default:
		return nil, err
	}
	_, err = event.Sender.Send(ctx, transport.MethodViewsOpen, map[string]any{
		"trigger_id": event.Payload.String("trigger_id"),
		"view":       stepConfigView(users),
	})
	return nil, err
}

// HandleViewSubmission saves the users picked in a workflow step view and
// declares the step outputs.
func (s *Subscribers) HandleViewSubmission(ctx context.Context, event inbound.Event) (*core.Response, error) {
	if event.Payload.String("view", "type") != "workflow_step" {
		return nil, nil
	}
	if event.Sender == nil {
		return nil, missingSenderError(event.Key)
	}
	users := event.Payload.Strings("view", "state", "values", blockCycleUsers, actionList, "selected_users")
	if _, err := s.service.ConfigureRotation(ctx, core.ConfigureRotationRequest{
		TenantID:   tenantOf(event),
		WorkflowID: event.Payload.String("workflow_step", "workflow_id"),
		Users:      users,
	}); err != nil {
		return nil, err
	}
	_, err := event.Sender.Send(ctx, transport.MethodUpdateStep, map[string]any{
		"workflow_step_edit_id": event.Payload.String("workflow_step", "workflow_step_edit_id"),
		"outputs":               stepOutputs(),
	})
	return nil, err
}

// HandleStepExecute assigns the next participant and completes the step.
// Every failure, panics included, is reported with workflows.stepFailed
// before it is returned. An assignment whose step could not be completed is
// reverted so the redelivered step goes to the same participant.
func (s *Subscribers) HandleStepExecute(ctx context.Context, event inbound.Event) (res *core.Response, err error) {
	step := event.Payload.Object("event", "workflow_step")
	executeID := step.String("workflow_step_execute_id")
	req := core.TurnRequest{
		TenantID:   tenantOf(event),
		WorkflowID: step.String("workflow_id"),
	}
	var assigned *core.TurnResult
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("workflow: step execution panicked: %v", recovered)
		}
		if err != nil {
			if assigned != nil {
				s.revertAssignment(ctx, *assigned, executeID)
			}
			err = s.reportStepFailure(ctx, event, req, executeID, err)
		}
	}()

	if event.Sender == nil {
		return nil, missingSenderError(event.Key)
	}
	result, err := s.service.AssignTurn(ctx, req)
	if err != nil {
		return nil, err
	}
	assigned = &result
	_, err = event.Sender.Send(ctx, transport.MethodStepCompleted, map[string]any{
		"workflow_step_execute_id": executeID,
		"outputs": map[string]any{
			OutputAssignedUser: result.UserID,
		},
	})
	return nil, err
}

func (s *Subscribers) revertAssignment(ctx context.Context, result core.TurnResult, executeID string) {
	fields := map[string]any{
		"tenant_id":                result.TenantID,
		"workflow_id":              result.WorkflowID,
		"user_id":                  result.UserID,
		"workflow_step_execute_id": executeID,
	}
	if _, err := s.service.RevertTurn(ctx, result); err != nil {
		fields["error"] = err.Error()
		core.LogWithLevel(ctx, s.logger, "error", "assignment of failed step not reverted", fields)
		return
	}
	core.LogWithLevel(ctx, s.logger, "info", "assignment of failed step reverted", fields)
}

// HandleBlockActions skips the current assignee when the skip button is
// clicked and announces the replacement in the channel.
func (s *Subscribers) HandleBlockActions(ctx context.Context, event inbound.Event) (*core.Response, error) {
	workflowID, ok := skipActionValue(event.Payload)
	if !ok {
		return nil, nil
	}
	if event.Sender == nil {
		return nil, missingSenderError(event.Key)
	}
	result, err := s.service.SkipTurn(ctx, core.TurnRequest{
		TenantID:   tenantOf(event),
		WorkflowID: workflowID,
	})
	if err != nil {
		return nil, err
	}
	message := transport.Text(skipText(result))
	if r, ok := event.Sender.(replier); ok {
		_, err = r.Reply(ctx, message, false)
		return nil, err
	}
	if channel := transport.ChannelOf(event.Payload); channel != "" {
		message["channel"] = channel
	}
	_, err = event.Sender.Send(ctx, transport.MethodPostMessage, message)
	return nil, err
}

func skipActionValue(payload core.Payload) (string, bool) {
	value, ok := payload.Lookup("actions")
	if !ok {
		return "", false
	}
	actions, _ := value.([]any)
	for _, item := range actions {
		action, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := action["action_id"].(string); id != ActionSkipAssignment {
			continue
		}
		workflowID, _ := action["value"].(string)
		workflowID = strings.TrimSpace(workflowID)
		return workflowID, workflowID != ""
	}
	return "", false
}

func skipText(result core.TurnResult) string {
	if result.Skipped == "" {
		return fmt.Sprintf("%s is up for %s", mention(result.UserID), result.WorkflowID)
	}
	return fmt.Sprintf("%s skipped, %s is up for %s", mention(result.Skipped), mention(result.UserID), result.WorkflowID)
}

func mention(userID string) string {
	return "<@" + userID + ">"
}
