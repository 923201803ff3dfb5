package credential

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
)

// Static accepts exactly one pre-shared token value. Used when no
// verification secret is configured.
type Static struct {
	required []byte
}

// NewStatic constructs a byte-equality verifier for the required token.
func NewStatic(required string) (*Static, error) {
	if required == "" {
		return nil, errors.New("required token must be non-empty")
	}
	return &Static{required: []byte(required)}, nil
}

func (s *Static) Verify(ctx context.Context, token string) (*Identity, error) {
	if subtle.ConstantTimeCompare([]byte(token), s.required) != 1 {
		return nil, fmt.Errorf("%w: token mismatch", ErrUnauthorized)
	}
	return &Identity{}, nil
}

var _ Verifier = (*Static)(nil)
