// Package registry maps client-chosen session identifiers to authentication
// state and a live transport handle. It is the only shared mutable state in
// the process; all access is serialized behind a mutex because two streams
// can race to register or remove the same id.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound indicates no live session exists for the id.
	ErrSessionNotFound = errors.New("registry: session not found")

	// ErrDuplicateSession indicates a second stream attempted to register an
	// id that is already live while the reject policy is in effect.
	ErrDuplicateSession = errors.New("registry: session already registered")
)

// Transport is the inbound-message entry point of a live stream. The registry
// holds a lookup reference only; ownership stays with the stream handler for
// the lifetime of the connection.
type Transport interface {
	// HandleMessage routes one raw protocol message body arriving on the
	// out-of-band channel into the stream it belongs to.
	HandleMessage(ctx context.Context, body []byte) error

	// Close tears the stream down. Used when a replacement stream evicts the
	// prior registration or the idle sweep fires.
	Close()
}

// DuplicatePolicy decides the fate of a second stream registering an id that
// is already live.
type DuplicatePolicy int

const (
	// ReplaceExisting is last-writer-wins: the prior stream is closed and the
	// new one takes over the id.
	ReplaceExisting DuplicatePolicy = iota
	// RejectSecond refuses the new stream and leaves the prior one intact.
	RejectSecond
)

// ParsePolicy maps the configuration string onto a DuplicatePolicy.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "replace":
		return ReplaceExisting, nil
	case "reject":
		return RejectSecond, nil
	default:
		return 0, errors.New("registry: unknown duplicate policy: " + s)
	}
}

// Session is one registered logical client connection.
type Session struct {
	ID            string
	Subject       string
	Authenticated bool
	LastAccess    time.Time

	transport Transport
}

// Registry is the in-memory session table.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	policy   DuplicatePolicy
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithDuplicatePolicy overrides the default last-writer-wins behavior.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New constructs an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		policy:   ReplaceExisting,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or refreshes a session as authenticated and binds the
// transport handle. Registering an id that is already present is idempotent
// under the replace policy (the prior transport, if different, is closed);
// under the reject policy it returns ErrDuplicateSession.
func (r *Registry) Register(id, subject string, t Transport) (*Session, error) {
	r.mu.Lock()
	prior, exists := r.sessions[id]
	if exists && r.policy == RejectSecond && prior.transport != t {
		r.mu.Unlock()
		return nil, ErrDuplicateSession
	}
	sess := &Session{
		ID:            id,
		Subject:       subject,
		Authenticated: true,
		LastAccess:    r.now(),
		transport:     t,
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	if exists && prior.transport != nil && prior.transport != t {
		prior.transport.Close()
	}
	return sess, nil
}

// Authenticated reports whether id is registered with a valid credential
// observed.
func (r *Registry) Authenticated(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return ok && sess.Authenticated
}

// LookupTransport returns the live transport handle for id.
func (r *Registry) LookupTransport(id string) (Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok || sess.transport == nil {
		return nil, ErrSessionNotFound
	}
	return sess.transport, nil
}

// Subject returns the principal bound to id, if any.
func (r *Registry) Subject(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		return sess.Subject
	}
	return ""
}

// Touch updates the session's last access time. No-op when absent.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.LastAccess = r.now()
	}
}

// LastAccess returns the last authenticated interaction time for id.
func (r *Registry) LastAccess(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		return sess.LastAccess, true
	}
	return time.Time{}, false
}

// Remove deletes the entry. Removing an absent id is not an error. RemoveIf
// semantics apply for owners: the entry is only dropped when it still refers
// to the caller's transport, so a replaced stream cannot deregister its
// successor.
func (r *Registry) Remove(id string, owner Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	if owner != nil && sess.transport != owner {
		return
	}
	delete(r.sessions, id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle removes and closes every session whose last access precedes
// cutoff, returning the number evicted. Wired to a ticker only when an idle
// timeout is configured.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	r.mu.Lock()
	var victims []*Session
	for id, sess := range r.sessions {
		if sess.LastAccess.Before(cutoff) {
			victims = append(victims, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range victims {
		if sess.transport != nil {
			sess.transport.Close()
		}
	}
	return len(victims)
}
