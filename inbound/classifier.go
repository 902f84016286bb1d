package inbound

import (
	"strings"

	"github.com/goliatone/go-turns/core"
)

const (
	KeyWildcard           = "*"
	KeyEvent              = "event"
	KeySlashCommand       = "slash_command"
	KeyWebhook            = "webhook"
	KeyInteractiveMessage = "interactive_message"
)

// Classify returns the event keys a payload is routed under. The result is
// an ordered set: the wildcard first, then keys in rule order, each at most
// once. Only non-empty string values become keys.
func Classify(payload core.Payload) []string {
	keys := make([]string, 0, 6)
	seen := make(map[string]struct{}, 6)
	add := func(key string) {
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	add(KeyWildcard)
	if value, ok := payload.Lookup("type"); ok {
		add(stringValue(value))
	}
	if _, ok := payload.Lookup("event"); ok {
		add(KeyEvent)
		add(stringValue(payload.String("event", "type")))
	}
	if value, ok := payload.Lookup("command"); ok {
		add(KeySlashCommand)
		add(stringValue(value))
	}
	if value, ok := payload.Lookup("trigger_word"); ok {
		add(KeyWebhook)
		add(stringValue(value))
	}
	if value, ok := payload.Lookup("callback_id"); ok {
		add(KeyInteractiveMessage)
		add(stringValue(value))
	}
	return keys
}

// stringValue keeps the value verbatim; blank strings are not keys.
func stringValue(value any) string {
	text, _ := value.(string)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}
