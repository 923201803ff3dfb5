package ssehttp

import "net/http"

// corsPolicy implements the configurable origin allow-list. A "*" entry
// allows any origin, but because both endpoints accept credentials the
// literal request origin is reflected instead of emitting a bare wildcard
// (credentialed requests cannot use a literal "*").
type corsPolicy struct {
	origins  map[string]struct{}
	wildcard bool
}

func newCORSPolicy(origins []string) *corsPolicy {
	p := &corsPolicy{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.wildcard = true
			continue
		}
		p.origins[o] = struct{}{}
	}
	return p
}

// allowOrigin resolves the Access-Control-Allow-Origin value for a request
// origin. Requests without an Origin header get the wildcard when one is
// configured (no credentials are in play without an origin).
func (p *corsPolicy) allowOrigin(origin string) (string, bool) {
	if origin == "" {
		if p.wildcard {
			return "*", true
		}
		return "", false
	}
	if p.wildcard {
		return origin, true
	}
	if _, ok := p.origins[origin]; ok {
		return origin, true
	}
	return "", false
}

// apply sets response CORS headers for an actual (non-preflight) request.
func (p *corsPolicy) apply(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	allowed, ok := p.allowOrigin(origin)
	if !ok {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allowed)
	h.Set("Vary", "Origin")
	if allowed != "*" {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

// preflight answers an OPTIONS request. Always 204 with CORS headers,
// regardless of path or authentication state.
func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	h := w.Header()
	if allowed, ok := p.allowOrigin(origin); ok {
		h.Set("Access-Control-Allow-Origin", allowed)
		if allowed != "*" {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
	}
	h.Set("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-MCP-Session, X-SSE-Session, Last-Event-ID")
	h.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}
