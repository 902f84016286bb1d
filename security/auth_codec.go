package security

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-turns/core"
)

// SealedAuthKey holds the envelope inside a sealed tenant auth map.
const SealedAuthKey = "sealed"

// SealAuth encrypts auth as JSON and returns {"sealed": envelope}. An
// empty auth map is stored as is.
func SealAuth(ctx context.Context, provider core.SecretProvider, auth map[string]any) (map[string]any, error) {
	if provider == nil {
		return nil, fmt.Errorf("security: secret provider is required")
	}
	if len(auth) == 0 {
		return map[string]any{}, nil
	}
	plaintext, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("security: encode auth: %w", err)
	}
	sealed, err := provider.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, err
	}
	return map[string]any{SealedAuthKey: string(sealed)}, nil
}

// IsSealed reports whether stored was produced by SealAuth.
func IsSealed(stored map[string]any) bool {
	if len(stored) != 1 {
		return false
	}
	value, ok := stored[SealedAuthKey].(string)
	return ok && strings.HasPrefix(value, envelopePrefix)
}

// OpenAuth reverses SealAuth. Unsealed maps are returned unchanged so rows
// written before a key was configured stay readable.
func OpenAuth(ctx context.Context, provider core.SecretProvider, stored map[string]any) (map[string]any, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if provider == nil {
		return nil, fmt.Errorf("security: tenant auth is sealed and no secret provider is configured")
	}
	plaintext, err := provider.Decrypt(ctx, []byte(stored[SealedAuthKey].(string)))
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, fmt.Errorf("security: decode auth: %w", err)
	}
	return out, nil
}
