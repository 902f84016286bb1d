package webhooks

import (
	"context"
	"crypto/subtle"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/core"
)

type Verifier interface {
	Verify(ctx context.Context, payload core.Payload) error
}

// TokenVerifier compares the payload token field with the shared
// verification token. An empty Token disables the check.
type TokenVerifier struct {
	Token string
}

func (v TokenVerifier) Verify(_ context.Context, payload core.Payload) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return nil
	}
	actual := strings.TrimSpace(payload.String("token"))
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return webhookError("webhooks: verification token mismatch", goerrors.CategoryAuth, core.ErrorUnauthorized, map[string]any{
			"tenant_id": payload.TenantID(),
		})
	}
	return nil
}

var _ Verifier = TokenVerifier{}
