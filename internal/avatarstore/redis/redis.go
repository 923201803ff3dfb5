// Package redis provides a Redis-backed avatarstore.Store so avatars survive
// process restarts and are visible across instances.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"elicitd/internal/avatarstore"
)

// Config contains construction options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix prefixes every key. Default "elicitd:avatar:".
	KeyPrefix string

	// TTL bounds how long avatars are retained. Zero means no expiry.
	TTL time.Duration
}

// Store implements avatarstore.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

type storedItem struct {
	Data      []byte    `json:"data"`
	MimeType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a Redis-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "elicitd:avatar:"
	}
	return &Store{client: cfg.Client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (s *Store) Put(ctx context.Context, data []byte, mimeType string) (string, error) {
	ref := uuid.NewString()
	item := storedItem{Data: data, MimeType: mimeType, CreatedAt: time.Now()}
	b, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshal avatar item: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+ref, b, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store avatar %s: %w", ref, err)
	}
	return ref, nil
}

func (s *Store) Get(ctx context.Context, ref string) (*avatarstore.Item, error) {
	res := s.client.Get(ctx, s.keyPrefix+ref)
	if err := res.Err(); err != nil {
		if err == redis.Nil {
			return nil, avatarstore.ErrNotFound
		}
		return nil, fmt.Errorf("fetch avatar %s: %w", ref, err)
	}
	var item storedItem
	if err := json.Unmarshal([]byte(res.Val()), &item); err != nil {
		return nil, fmt.Errorf("unmarshal avatar %s: %w", ref, err)
	}
	return &avatarstore.Item{Data: item.Data, MimeType: item.MimeType, CreatedAt: item.CreatedAt}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ avatarstore.Store = (*Store)(nil)
