package workflow

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/goliatone/go-turns/core"
)

func slashPayload(text string) core.Payload {
	return core.Payload{"team_id": "T1", "command": DefaultSlashCommand, "text": text}
}

func decodeEphemeral(t *testing.T, res *core.Response) string {
	t.Helper()
	if res == nil {
		t.Fatalf("expected a response")
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body, &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["response_type"] != "ephemeral" {
		t.Fatalf("expected ephemeral response, got %#v", body)
	}
	text, _ := body["text"].(string)
	return text
}

func TestSlashCommand_ShowListsTurnOrder(t *testing.T) {
	svc, _ := newTestService(t)
	configure(t, svc, "Wf1", "U1", "U2")
	result := dispatch(t, newTestSubscribers(t, svc), slashPayload("show Wf1"), &recordingSender{})
	if err := result.Err(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	text := decodeEphemeral(t, result.Response)
	if !strings.Contains(text, "Turn order for Wf1: <@U1>, <@U2>") {
		t.Fatalf("unexpected text %q", text)
	}
	if strings.Contains(text, "Last assigned") {
		t.Fatalf("nobody was assigned yet, got %q", text)
	}
}

func TestSlashCommand_SkipBeforeAnyAssignment(t *testing.T) {
	svc, _ := newTestService(t)
	configure(t, svc, "Wf1", "U1", "U2")
	subs := newTestSubscribers(t, svc)

	result := dispatch(t, subs, slashPayload("skip Wf1"), &recordingSender{})
	if err := result.Err(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if text := decodeEphemeral(t, result.Response); text != "Nobody has been assigned in Wf1 yet" {
		t.Fatalf("unexpected text %q", text)
	}
	next := decodeEphemeral(t, dispatch(t, subs, slashPayload("next Wf1"), &recordingSender{}).Response)
	if next != "<@U1> is up for Wf1" {
		t.Fatalf("expected rotation untouched by the refused skip, got %q", next)
	}
}

func TestSlashCommand_NextAndSkip(t *testing.T) {
	svc, _ := newTestService(t)
	configure(t, svc, "Wf1", "U1", "U2", "U3")
	subs := newTestSubscribers(t, svc)

	next := decodeEphemeral(t, dispatch(t, subs, slashPayload("next Wf1"), &recordingSender{}).Response)
	if next != "<@U1> is up for Wf1" {
		t.Fatalf("unexpected next text %q", next)
	}
	skip := decodeEphemeral(t, dispatch(t, subs, slashPayload("SKIP Wf1"), &recordingSender{}).Response)
	if !strings.HasPrefix(skip, "<@U1> skipped, ") {
		t.Fatalf("unexpected skip text %q", skip)
	}
}

func TestSlashCommand_UnknownWorkflowAndUsage(t *testing.T) {
	svc, _ := newTestService(t)
	subs := newTestSubscribers(t, svc)

	missing := decodeEphemeral(t, dispatch(t, subs, slashPayload("show Nope"), &recordingSender{}).Response)
	if missing != "No rotation is configured for Nope" {
		t.Fatalf("unexpected text %q", missing)
	}
	usage := decodeEphemeral(t, dispatch(t, subs, slashPayload("dance"), &recordingSender{}).Response)
	if usage != usageText {
		t.Fatalf("expected usage, got %q", usage)
	}
}

func TestSlashCommand_CustomCommandName(t *testing.T) {
	svc, _ := newTestService(t)
	configure(t, svc, "Wf1", "U1")
	subs := newTestSubscribers(t, svc, WithSlashCommand("/rota"))
	payload := core.Payload{"team_id": "T1", "command": "/rota", "text": "show Wf1"}
	if !strings.Contains(decodeEphemeral(t, dispatch(t, subs, payload, &recordingSender{}).Response), "<@U1>") {
		t.Fatalf("expected custom command to be routed")
	}
}
