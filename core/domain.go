package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-turns/rotation"
)

// Payload is one decoded inbound message. Its shape depends on the origin
// (OAuth callback, Events API, slash command, interactive message or workflow
// step); accessors tolerate missing keys.
type Payload map[string]any

// Lookup walks nested objects along path.
func (p Payload) Lookup(path ...string) (any, bool) {
	var current any = map[string]any(p)
	for _, key := range path {
		object, ok := asObject(current)
		if !ok {
			return nil, false
		}
		current, ok = object[key]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

// String returns the string at path, or "" when missing or not a string.
func (p Payload) String(path ...string) string {
	value, ok := p.Lookup(path...)
	if !ok {
		return ""
	}
	text, _ := value.(string)
	return text
}

func (p Payload) Object(path ...string) Payload {
	value, ok := p.Lookup(path...)
	if !ok {
		return nil
	}
	object, _ := asObject(value)
	return object
}

func (p Payload) Has(path ...string) bool {
	_, ok := p.Lookup(path...)
	return ok
}

func (p Payload) Strings(path ...string) []string {
	value, ok := p.Lookup(path...)
	if !ok {
		return nil
	}
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if text, ok := item.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}

// TenantID resolves the installation id: team_id, else team.id.
func (p Payload) TenantID() string {
	if id := strings.TrimSpace(p.String("team_id")); id != "" {
		return id
	}
	return strings.TrimSpace(p.String("team", "id"))
}

// IsBotMessage reports whether the payload (or its event) was produced by a bot.
func (p Payload) IsBotMessage() bool {
	if event := p.Object("event"); event != nil {
		return event.String("bot_id") != ""
	}
	return p.String("bot_id") != ""
}

func asObject(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case Payload:
		return typed, true
	default:
		return nil, false
	}
}

// TenantRecord is the persisted state of one installation. Auth holds the
// OAuth response fields as returned by the platform.
type TenantRecord struct {
	ID        string
	Auth      map[string]any
	Workflows map[string]rotation.State
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewTenantRecord(id string) TenantRecord {
	return TenantRecord{
		ID:        strings.TrimSpace(id),
		Auth:      map[string]any{},
		Workflows: map[string]rotation.State{},
	}
}

// Workflow returns a copy of the rotation for workflowID.
func (r TenantRecord) Workflow(workflowID string) (rotation.State, bool) {
	state, ok := r.Workflows[workflowID]
	if !ok {
		return rotation.State{}, false
	}
	return state.Clone(), true
}

func (r *TenantRecord) SetWorkflow(workflowID string, state rotation.State) {
	if r.Workflows == nil {
		r.Workflows = map[string]rotation.State{}
	}
	r.Workflows[workflowID] = state.Clone()
}

// AccessToken prefers the bot token over the user token.
func (r TenantRecord) AccessToken() string {
	if bot, ok := asObject(r.Auth["bot"]); ok {
		if token, _ := bot["bot_access_token"].(string); token != "" {
			return token
		}
	}
	token, _ := r.Auth["access_token"].(string)
	return token
}

func (r TenantRecord) IncomingWebhookURL() string {
	hook, ok := asObject(r.Auth["incoming_webhook"])
	if !ok {
		return ""
	}
	url, _ := hook["url"].(string)
	return url
}

func (r TenantRecord) Clone() TenantRecord {
	out := r
	out.Auth = copyAnyMap(r.Auth)
	out.Workflows = make(map[string]rotation.State, len(r.Workflows))
	for id, state := range r.Workflows {
		out.Workflows[id] = state.Clone()
	}
	return out
}

// MarshalJSON writes the stored document shape:
// {"id": ..., <auth fields>..., "workflows": {"<id>": {"users": [...]}}}.
func (r TenantRecord) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Auth)+2)
	for key, value := range r.Auth {
		doc[key] = value
	}
	doc["id"] = r.ID
	workflows := r.Workflows
	if workflows == nil {
		workflows = map[string]rotation.State{}
	}
	doc["workflows"] = workflows
	return json.Marshal(doc)
}

func (r *TenantRecord) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out := NewTenantRecord("")
	if raw, ok := doc["id"]; ok {
		if err := json.Unmarshal(raw, &out.ID); err != nil {
			return fmt.Errorf("core: decode tenant id: %w", err)
		}
	}
	if raw, ok := doc["workflows"]; ok {
		if err := json.Unmarshal(raw, &out.Workflows); err != nil {
			return fmt.Errorf("core: decode tenant workflows: %w", err)
		}
	}
	for key, raw := range doc {
		if key == "id" || key == "workflows" {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("core: decode tenant field %q: %w", key, err)
		}
		out.Auth[key] = value
	}
	out.Version = r.Version
	out.CreatedAt = r.CreatedAt
	out.UpdatedAt = r.UpdatedAt
	*r = out
	return nil
}

const (
	AssignmentActionAssign = "assign"
	AssignmentActionSkip   = "skip"
	AssignmentActionRevert = "revert"
)

type Assignment struct {
	ID         string
	TenantID   string
	WorkflowID string
	UserID     string
	Action     string
	SkipDepth  int
	CreatedAt  time.Time
}

type AssignmentFilter struct {
	TenantID   string
	WorkflowID string
	Limit      int
}

type ConfigureRotationRequest struct {
	TenantID   string
	WorkflowID string
	Users      []string
}

type TurnRequest struct {
	TenantID   string
	WorkflowID string
}

func OK() Response {
	return Response{StatusCode: http.StatusOK}
}

func JSONResponse(status int, value any) (Response, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}, nil
}

func TextResponse(status int, text string) Response {
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       []byte(text),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
