// Package webhooks is the delivery entry point: it turns raw platform
// requests into payloads, rejects unverified ones, answers url verification
// challenges, drops bot echoes and retried events, and hands the rest to the
// inbound router. Server adapts it to net/http.
package webhooks
