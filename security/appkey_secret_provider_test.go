package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("turns-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("xoxb-token-123")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to hide the plaintext")
	}
	if !bytes.HasPrefix(encrypted, []byte(envelopePrefix)) {
		t.Fatalf("expected envelope prefix")
	}
	meta, err := ParseEnvelopeMetadata(encrypted, false)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "turns-v1" || meta.Version != 3 || meta.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected envelope metadata %#v", meta)
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("turns-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("turns-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySecretProvider_RejectsWrongKey(t *testing.T) {
	issuer, _ := NewAppKeySecretProviderFromString("key-one")
	receiver, _ := NewAppKeySecretProviderFromString("key-two")
	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected decrypt with another key to fail")
	}
	if _, err := NewAppKeySecretProviderFromString("  "); err == nil {
		t.Fatalf("expected blank key to be rejected")
	}
}

func TestSealAndOpenAuth(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeySecretProviderFromString("tenant-auth-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	auth := map[string]any{
		"access_token": "xoxp-1",
		"bot":          map[string]any{"bot_access_token": "xoxb-1"},
	}

	sealed, err := SealAuth(ctx, provider, auth)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed map, got %#v", sealed)
	}
	if strings.Contains(sealed[SealedAuthKey].(string), "xoxp-1") {
		t.Fatalf("expected token to be hidden")
	}

	opened, err := OpenAuth(ctx, provider, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened["access_token"] != "xoxp-1" {
		t.Fatalf("expected access token, got %#v", opened)
	}
	bot, _ := opened["bot"].(map[string]any)
	if bot["bot_access_token"] != "xoxb-1" {
		t.Fatalf("expected nested bot token, got %#v", opened)
	}

	plain := map[string]any{"access_token": "legacy"}
	if out, err := OpenAuth(ctx, nil, plain); err != nil || out["access_token"] != "legacy" {
		t.Fatalf("expected unsealed auth to pass through, got %#v %v", out, err)
	}
	if _, err := OpenAuth(ctx, nil, sealed); err == nil {
		t.Fatalf("expected sealed auth without a provider to fail")
	}
	if empty, err := SealAuth(ctx, provider, nil); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty auth to stay empty, got %#v %v", empty, err)
	}
}
