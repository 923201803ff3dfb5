// Package config loads the daemon configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full environment surface of the daemon. All knobs are plain
// strings, durations, or booleans.
type Config struct {
	Port       int    `env:"PORT,default=8787"`
	StreamPath string `env:"SSE_PATH,default=/mcp/sse"`

	// AllowedOrigins is a comma-separated allow-list. "*" allows any origin;
	// combined with credentials the literal request origin is reflected.
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`

	// AuthRequired disables all credential checks when false. Local
	// development only.
	AuthRequired bool `env:"AUTH_REQUIRED,default=true"`

	// StaticToken is compared byte-for-byte when no verification secret is
	// configured.
	StaticToken string `env:"AUTH_TOKEN"`

	// SharedSecret enables HS256 verification (and minting) of short-lived
	// signed credentials. Takes precedence over StaticToken.
	SharedSecret string `env:"AUTH_SECRET"`

	// Issuer/JWKSURI select asymmetric (RS256) verification against a remote
	// key set, either via OIDC discovery (Issuer) or a direct JWKS URL.
	Issuer  string `env:"AUTH_ISSUER"`
	JWKSURI string `env:"AUTH_JWKS_URI"`

	// TokenTTL bounds credentials minted by the issuance endpoint.
	TokenTTL time.Duration `env:"TOKEN_TTL,default=15m"`

	// DuplicatePolicy decides what happens when a second stream opens with a
	// session id that is already live: "replace" or "reject".
	DuplicatePolicy string `env:"DUPLICATE_SESSION_POLICY,default=replace"`

	// IdleTimeout evicts sessions whose last authenticated interaction is
	// older than this. Zero disables the sweep.
	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT,default=0"`

	// KeepaliveInterval is the SSE comment-frame heartbeat period.
	KeepaliveInterval time.Duration `env:"SSE_KEEPALIVE_INTERVAL,default=25s"`

	// RedisAddr switches avatar persistence to Redis when non-empty.
	RedisAddr       string `env:"REDIS_ADDR"`
	AvatarCacheSize int    `env:"AVATAR_CACHE_SIZE,default=256"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file, decodes the environment, and validates
// the result.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects contradictory or unusable settings.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if !strings.HasPrefix(c.StreamPath, "/") {
		return fmt.Errorf("SSE_PATH must start with /: %q", c.StreamPath)
	}
	if c.AvatarCacheSize <= 0 {
		return fmt.Errorf("AVATAR_CACHE_SIZE must be positive: %d", c.AvatarCacheSize)
	}
	switch c.DuplicatePolicy {
	case "replace", "reject":
	default:
		return fmt.Errorf("DUPLICATE_SESSION_POLICY must be replace or reject, got %q", c.DuplicatePolicy)
	}
	if c.AuthRequired && c.SharedSecret == "" && c.StaticToken == "" && c.Issuer == "" && c.JWKSURI == "" {
		return fmt.Errorf("AUTH_REQUIRED is set but no AUTH_SECRET, AUTH_TOKEN, AUTH_ISSUER or AUTH_JWKS_URI configured")
	}
	return nil
}

// Origins returns the parsed allow-list with whitespace trimmed and empty
// entries dropped.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SlogLevel maps the LOG_LEVEL string onto a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
