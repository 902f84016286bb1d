package webhooks

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/core"
)

// ParsePayload extracts the payload from a delivery body. JSON bodies are
// decoded as is. Form bodies carrying a payload field (interactive
// components) decode that field; other form bodies (slash commands) become a
// flat map of their fields.
func ParsePayload(req core.InboundRequest) (core.Payload, error) {
	body := bytes.TrimSpace(req.Body)
	if len(body) == 0 {
		return nil, webhookError("webhooks: request body is empty", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	contentType := strings.ToLower(headerValue(req.Headers, "Content-Type"))
	if strings.HasPrefix(contentType, "application/json") || (contentType == "" && body[0] == '{') {
		return decodeJSONPayload(body)
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, webhookWrapError(err, goerrors.CategoryBadInput, "webhooks: invalid form body", core.ErrorBadInput, nil)
	}
	if embedded := form.Get("payload"); embedded != "" {
		return decodeJSONPayload([]byte(embedded))
	}
	payload := core.Payload{}
	for key, values := range form {
		switch len(values) {
		case 0:
		case 1:
			payload[key] = values[0]
		default:
			items := make([]any, 0, len(values))
			for _, value := range values {
				items = append(items, value)
			}
			payload[key] = items
		}
	}
	return payload, nil
}

func decodeJSONPayload(raw []byte) (core.Payload, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, webhookWrapError(err, goerrors.CategoryBadInput, "webhooks: invalid json payload", core.ErrorBadInput, nil)
	}
	if payload == nil {
		return nil, webhookError("webhooks: payload must be a json object", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	return core.Payload(payload), nil
}

// DeliveryID returns the platform event id used for retry dedupe. Only
// Events API deliveries carry one.
func DeliveryID(payload core.Payload) (string, bool) {
	id := strings.TrimSpace(payload.String("event_id"))
	if id == "" {
		return "", false
	}
	if tenant := payload.TenantID(); tenant != "" {
		return tenant + ":" + id, true
	}
	return id, true
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func webhookError(message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	return core.NewError(message, category, textCode, metadata)
}

func webhookWrapError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) error {
	return core.WrapError(source, category, message, textCode, metadata)
}
