// Command elicitd serves the profile-elicitation demo: a Server-Sent-Events
// transport with bearer-token authentication, a session registry joining the
// stream to its out-of-band message channel, and a single profile-collection
// tool behind a JSON-RPC dispatcher.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"elicitd/internal/avatarstore"
	avatarmemory "elicitd/internal/avatarstore/memory"
	avatarredis "elicitd/internal/avatarstore/redis"
	"elicitd/internal/config"
	"elicitd/internal/credential"
	"elicitd/internal/dispatch"
	"elicitd/internal/profile"
	"elicitd/internal/registry"
	"elicitd/internal/ssehttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exit", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	verifier, issuer, err := buildVerifier(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build verifier: %w", err)
	}

	store, err := buildAvatarStore(cfg)
	if err != nil {
		return fmt.Errorf("build avatar store: %w", err)
	}
	defer store.Close()

	policy, err := registry.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}
	reg := registry.New(registry.WithDuplicatePolicy(policy))

	collector := profile.NewCollector(store, profile.WithLogger(log))
	disp := dispatch.New(collector, dispatch.WithLogger(log))

	opts := []ssehttp.Option{
		ssehttp.WithLogger(log),
		ssehttp.WithAllowedOrigins(cfg.Origins()),
		ssehttp.WithKeepaliveInterval(cfg.KeepaliveInterval),
	}
	if issuer != nil {
		opts = append(opts, ssehttp.WithIssuer(issuer, cfg.TokenTTL))
	}
	handler, err := ssehttp.New(cfg.StreamPath, reg, verifier, disp, opts...)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	if cfg.IdleTimeout > 0 {
		go sweepIdleSessions(ctx, reg, cfg.IdleTimeout, log)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening",
		slog.String("addr", srv.Addr),
		slog.String("stream_path", cfg.StreamPath),
		slog.Bool("auth_required", cfg.AuthRequired),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildVerifier selects the verification mode: bypass, shared-secret HMAC,
// remote JWKS, or static token, in that precedence order. An Issuer is
// available only when a shared secret is configured.
func buildVerifier(ctx context.Context, cfg *config.Config, log *slog.Logger) (credential.Verifier, credential.Issuer, error) {
	var issuer credential.Issuer
	if cfg.SharedSecret != "" {
		h, err := credential.NewHMAC(cfg.SharedSecret)
		if err != nil {
			return nil, nil, err
		}
		issuer = h
		if cfg.AuthRequired {
			return h, issuer, nil
		}
	}

	if !cfg.AuthRequired {
		log.Warn("authentication disabled; all requests accepted")
		return credential.NewBypass(), issuer, nil
	}

	if cfg.Issuer != "" || cfg.JWKSURI != "" {
		v, err := credential.NewJWKS(ctx, credential.JWKSConfig{Issuer: cfg.Issuer, JWKSURI: cfg.JWKSURI})
		if err != nil {
			return nil, nil, err
		}
		return v, issuer, nil
	}

	v, err := credential.NewStatic(cfg.StaticToken)
	if err != nil {
		return nil, nil, err
	}
	return v, issuer, nil
}

func buildAvatarStore(cfg *config.Config) (avatarstore.Store, error) {
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return avatarredis.New(avatarredis.Config{Client: client})
	}
	return avatarmemory.New(cfg.AvatarCacheSize)
}

// sweepIdleSessions evicts sessions whose last authenticated interaction is
// older than the configured idle timeout. Eviction closes the stream, which
// deregisters the session through the normal cleanup path.
func sweepIdleSessions(ctx context.Context, reg *registry.Registry, idle time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.EvictIdle(time.Now().Add(-idle)); n > 0 {
				log.Info("session.sweep", slog.Int("evicted", n))
			}
		}
	}
}
