// Package memory provides an in-process avatarstore.Store backed by a
// bounded LRU cache, suitable for single-process demo deployments.
package memory

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"elicitd/internal/avatarstore"
)

// Store implements avatarstore.Store in memory.
type Store struct {
	cache *lru.Cache[string, *avatarstore.Item]
}

// New creates a bounded in-memory store. Oldest avatars are evicted once
// maxItems is exceeded.
func New(maxItems int) (*Store, error) {
	cache, err := lru.New[string, *avatarstore.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("create LRU cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

func (s *Store) Put(ctx context.Context, data []byte, mimeType string) (string, error) {
	ref := uuid.NewString()
	item := &avatarstore.Item{
		Data:      append([]byte(nil), data...),
		MimeType:  mimeType,
		CreatedAt: time.Now(),
	}
	s.cache.Add(ref, item)
	return ref, nil
}

func (s *Store) Get(ctx context.Context, ref string) (*avatarstore.Item, error) {
	item, ok := s.cache.Get(ref)
	if !ok {
		return nil, avatarstore.ErrNotFound
	}
	return item, nil
}

func (s *Store) Close() error {
	s.cache.Purge()
	return nil
}

var _ avatarstore.Store = (*Store)(nil)
