// Package avatarstore persists uploaded avatar bytes and hands back an
// opaque reference. The profile-collection handler treats it as an external
// collaborator: store bytes, return a reference.
package avatarstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no avatar exists for the reference.
var ErrNotFound = errors.New("avatarstore: not found")

// Item is one stored avatar.
type Item struct {
	Data      []byte
	MimeType  string
	CreatedAt time.Time
}

// Store is the persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores the bytes and returns an opaque reference.
	Put(ctx context.Context, data []byte, mimeType string) (string, error)

	// Get retrieves a previously stored avatar by reference.
	Get(ctx context.Context, ref string) (*Item, error)

	// Close releases backend resources.
	Close() error
}
