package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
	"github.com/goliatone/go-turns/rotation"
)

const usageText = "Usage: /turns show|next|skip <workflow>"

// HandleSlashCommand answers /turns show|next|skip <workflow> with an
// ephemeral message in the router response slot.
func (s *Subscribers) HandleSlashCommand(ctx context.Context, event inbound.Event) (*core.Response, error) {
	action, workflowID := parseCommandText(event.Payload.String("text"))
	if action == "" || workflowID == "" {
		return ephemeral(usageText)
	}
	req := core.TurnRequest{TenantID: tenantOf(event), WorkflowID: workflowID}

	var text string
	switch action {
	case "show":
		state, err := s.service.GetRotation(ctx, req)
		if err != nil {
			return notConfiguredOr(workflowID, err)
		}
		text = showText(workflowID, state)
	case "next":
		result, err := s.service.AssignTurn(ctx, req)
		if err != nil {
			return notConfiguredOr(workflowID, err)
		}
		text = fmt.Sprintf("%s is up for %s", mention(result.UserID), workflowID)
	case "skip":
		result, err := s.service.SkipTurn(ctx, req)
		if err != nil {
			return notConfiguredOr(workflowID, err)
		}
		text = skipText(result)
	default:
		text = usageText
	}
	return ephemeral(text)
}

func parseCommandText(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", ""
	}
	return strings.ToLower(fields[0]), fields[1]
}

func showText(workflowID string, state rotation.State) string {
	order := state.TurnOrder()
	if len(order) == 0 {
		return fmt.Sprintf("No one is in the rotation for %s", workflowID)
	}
	mentions := make([]string, 0, len(order))
	for _, userID := range order {
		mentions = append(mentions, mention(userID))
	}
	text := fmt.Sprintf("Turn order for %s: %s", workflowID, strings.Join(mentions, ", "))
	if current, ok := state.Current(); ok {
		text += fmt.Sprintf("\nLast assigned: %s", mention(current))
	}
	return text
}

func notConfiguredOr(workflowID string, err error) (*core.Response, error) {
	if errors.Is(err, core.ErrWorkflowNotConfigured) || errors.Is(err, core.ErrTenantNotFound) {
		return ephemeral(fmt.Sprintf("No rotation is configured for %s", workflowID))
	}
	if errors.Is(err, rotation.ErrNothingToSkip) {
		return ephemeral(fmt.Sprintf("Nobody has been assigned in %s yet", workflowID))
	}
	return nil, err
}

func ephemeral(text string) (*core.Response, error) {
	res, err := core.JSONResponse(http.StatusOK, map[string]any{
		"response_type": "ephemeral",
		"text":          text,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
