package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSConfig controls asymmetric verification against a remote key set.
type JWKSConfig struct {
	// Issuer enables OIDC discovery when JWKSURI is empty and, when set, is
	// enforced against the token's iss claim.
	Issuer string

	// JWKSURI points directly at the key set, skipping discovery.
	JWKSURI string

	// ExpectedAudiences, when non-empty, must intersect the token's aud.
	ExpectedAudiences []string

	AllowedAlgs []string
	Leeway      time.Duration
}

// JWKS validates RS256 (or other configured algs) tokens against an
// auto-refreshing remote key set.
type JWKS struct {
	cfg     JWKSConfig
	keyfunc jwt.Keyfunc
}

// NewJWKS builds a JWKS-backed verifier. When cfg.JWKSURI is empty the key
// set location is learned from OIDC discovery on cfg.Issuer.
func NewJWKS(ctx context.Context, cfg JWKSConfig) (*JWKS, error) {
	if cfg.Issuer == "" && cfg.JWKSURI == "" {
		return nil, errors.New("issuer or jwks uri is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}

	jwksURI := cfg.JWKSURI
	if jwksURI == "" {
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery failed: %w", err)
		}
		var meta struct {
			JwksURI string `json:"jwks_uri"`
		}
		if err := provider.Claims(&meta); err != nil {
			return nil, fmt.Errorf("invalid discovery metadata: %w", err)
		}
		if meta.JwksURI == "" {
			return nil, errors.New("discovery metadata missing jwks_uri")
		}
		jwksURI = meta.JwksURI
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &JWKS{cfg: cfg, keyfunc: func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		for _, a := range cfg.AllowedAlgs {
			if alg == a {
				return kf.Keyfunc(t)
			}
		}
		return nil, fmt.Errorf("disallowed alg: %s", alg)
	}}, nil
}

func (j *JWKS) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(j.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.cfg.Leeway),
	}
	if j.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.cfg.Issuer))
	}
	parsed, err := jwt.NewParser(opts...).Parse(token, j.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	if len(j.cfg.ExpectedAudiences) > 0 && !audIntersects(claims["aud"], j.cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &Identity{Subject: sub, Claims: claims}, nil
}

func audIntersects(aud any, wants []string) bool {
	wantSet := make(map[string]struct{}, len(wants))
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, hit := wantSet[s]; hit {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, hit := wantSet[s]; hit {
				return true
			}
		}
	}
	return false
}

var _ Verifier = (*JWKS)(nil)
