package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const hmacIssuerName = "elicitd"

// HMAC verifies and mints HS256 credentials signed with a secret shared
// out-of-band between issuer and verifier. It implements both Verifier and
// Issuer.
type HMAC struct {
	secret []byte
	leeway time.Duration
}

// HMACOption configures an HMAC verifier.
type HMACOption func(*HMAC)

// WithLeeway adjusts the clock-skew allowance (default 60s).
func WithLeeway(d time.Duration) HMACOption {
	return func(h *HMAC) { h.leeway = d }
}

// NewHMAC constructs a shared-secret verifier/issuer.
func NewHMAC(secret string, opts ...HMACOption) (*HMAC, error) {
	if secret == "" {
		return nil, errors.New("verification secret is required")
	}
	h := &HMAC{secret: []byte(secret), leeway: 60 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HMAC) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(h.leeway),
	)
	parsed, err := parser.Parse(token, func(t *jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &Identity{Subject: sub, Claims: claims}, nil
}

// Mint signs a credential for subject bounded to [now, now+ttl].
func (h *HMAC) Mint(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("non-positive ttl: %s", ttl)
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": hmacIssuerName,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, err := tok.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

var (
	_ Verifier = (*HMAC)(nil)
	_ Issuer   = (*HMAC)(nil)
)
