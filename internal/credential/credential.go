// Package credential verifies bearer credentials presented on the stream and
// out-of-band endpoints, and mints the short-lived HMAC-signed tokens used by
// the demo's issuance endpoint.
//
// Four verification modes exist, selected at wiring time:
//
//   - shared-secret HS256 (NewHMAC), the demo default
//   - remote JWKS / OIDC discovery RS256 (NewJWKS)
//   - static token byte-equality (NewStatic)
//   - unconditional bypass (NewBypass), local development only
//
// All failure paths collapse to ErrUnauthorized toward the caller; the
// underlying reason is wrapped for server-side logging only.
package credential

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized indicates the presented credential failed verification.
// The transport reports it uniformly as 401 without detail.
var ErrUnauthorized = errors.New("credential: unauthorized")

// Identity is the principal bound to a verified credential.
type Identity struct {
	// Subject identifies the principal, e.g. an email-like string. Empty for
	// modes that carry no principal (static token, bypass).
	Subject string

	// Claims holds the raw token claims when the credential was a signed
	// token; nil otherwise.
	Claims map[string]any
}

// Verifier validates a presented credential. Implementations return
// ErrUnauthorized (possibly wrapped) for any invalid, expired, or malformed
// credential.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Issuer produces a signed, time-limited credential for an authenticated
// principal.
type Issuer interface {
	Mint(ctx context.Context, subject string, ttl time.Duration) (string, error)
}

type bypassVerifier struct{}

// NewBypass returns a verifier that accepts anything, including an empty
// token. Intended only for AUTH_REQUIRED=false local development.
func NewBypass() Verifier { return bypassVerifier{} }

func (bypassVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	return &Identity{Subject: "anonymous"}, nil
}
