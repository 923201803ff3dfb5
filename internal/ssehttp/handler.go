package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"elicitd/internal/credential"
	"elicitd/internal/dispatch"
	"elicitd/internal/logctx"
	"elicitd/internal/registry"
)

var _ http.Handler = (*Handler)(nil)

const (
	sessionQueryParam = "sessionId"

	// Preferred session header first; the older spelling is still honored.
	mcpSessionHeader = "X-MCP-Session"
	sseSessionHeader = "X-SSE-Session"

	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

// maxMessageBytes bounds an out-of-band message body.
const maxMessageBytes = 4 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

// writeJSONError emits a minimal transport-level JSON error body. This is
// not JSON-RPC framing; protocol errors travel inside 200-level responses.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeUnauthorized responds 401 with a Bearer challenge. The concrete
// verification failure is logged by the caller, never echoed here.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Add(wwwAuthenticateHeader, `Bearer error="invalid_token"`)
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the slog logger. Log records are enriched from the request
// context via logctx.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithIssuer mounts the credential-issuance endpoint backed by issuer.
func WithIssuer(issuer credential.Issuer, tokenTTL time.Duration) Option {
	return func(h *Handler) {
		h.issuer = issuer
		if tokenTTL > 0 {
			h.tokenTTL = tokenTTL
		}
	}
}

// WithAllowedOrigins sets the CORS origin allow-list. Defaults to "*".
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.cors = newCORSPolicy(origins) }
}

// WithKeepaliveInterval overrides the SSE heartbeat period (default 25s).
func WithKeepaliveInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepalive = d
		}
	}
}

// Handler serves the stream endpoint, the out-of-band message endpoint, and
// (optionally) the credential-issuance endpoint.
type Handler struct {
	mux        *http.ServeMux
	log        *slog.Logger
	verifier   credential.Verifier
	issuer     credential.Issuer
	reg        *registry.Registry
	disp       *dispatch.Dispatcher
	streamPath string
	cors       *corsPolicy
	keepalive  time.Duration
	tokenTTL   time.Duration
}

// New constructs the HTTP surface.
//
// Required:
//   - streamPath: the configurable stream endpoint path (e.g. "/mcp/sse")
//   - reg: the session registry (owned by the caller, shared with nothing
//     else in this process)
//   - verifier: the credential verifier
//   - disp: the request dispatcher
func New(streamPath string, reg *registry.Registry, verifier credential.Verifier, disp *dispatch.Dispatcher, opts ...Option) (*Handler, error) {
	if streamPath == "" || !strings.HasPrefix(streamPath, "/") {
		return nil, fmt.Errorf("invalid stream path %q", streamPath)
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if disp == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	h := &Handler{
		log:        slog.Default(),
		verifier:   verifier,
		reg:        reg,
		disp:       disp,
		streamPath: streamPath,
		cors:       newCORSPolicy([]string{"*"}),
		keepalive:  25 * time.Second,
		tokenTTL:   15 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("GET %s", streamPath), h.handleStream)
	mux.HandleFunc(fmt.Sprintf("POST %s", streamPath), h.handleMessage)
	if h.issuer != nil {
		mux.HandleFunc("GET /auth/token", h.handleIssueToken)
	}
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	})
	r = r.WithContext(ctx)

	// Preflights are answered for any path, before routing or auth.
	if r.Method == http.MethodOptions {
		h.cors.preflight(w, r)
		return
	}
	h.cors.apply(w, r)
	h.mux.ServeHTTP(w, r)
}

// bearerFromRequest extracts the presented credential: Authorization header
// takes precedence over the access_token/token query parameters.
func bearerFromRequest(r *http.Request) string {
	if ah := r.Header.Get(authorizationHeader); ah != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(ah, prefix) {
			return strings.TrimSpace(ah[len(prefix):])
		}
		return ""
	}
	q := r.URL.Query()
	if tok := q.Get("access_token"); tok != "" {
		return tok
	}
	return q.Get("token")
}

// sessionIDFromRequest extracts the target session id for the out-of-band
// channel: dedicated headers first, query parameter as fallback.
func sessionIDFromRequest(r *http.Request) string {
	if id := r.Header.Get(mcpSessionHeader); id != "" {
		return id
	}
	if id := r.Header.Get(sseSessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get(sessionQueryParam)
}

// handleStream accepts the long-lived stream connection: authenticate,
// register, emit the handshake frame, then hold the connection open until
// the client goes away. Deregistration on the way out is mandatory, not
// best-effort.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.stream.start")

	sessID := r.URL.Query().Get(sessionQueryParam)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sessionId query parameter")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}

	ident, err := h.verifier.Verify(ctx, bearerFromRequest(r))
	if err != nil {
		writeUnauthorized(w)
		h.log.InfoContext(ctx, "auth.fail", slog.String("err", err.Error()))
		return
	}
	ctx = withStreamLogCtx(ctx, sessID, ident.Subject)
	h.log.InfoContext(ctx, "auth.ok")

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: streamCtx}
	st := &streamTransport{
		sessionID: sessID,
		wf:        wf,
		disp:      h.disp,
		log:       h.log,
		cancel:    cancel,
	}

	if _, err := h.reg.Register(sessID, ident.Subject, st); err != nil {
		if errors.Is(err, registry.ErrDuplicateSession) {
			writeJSONError(w, http.StatusConflict, "session already connected")
			h.log.WarnContext(ctx, "session.register.duplicate")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to register session")
		h.log.ErrorContext(ctx, "session.register.fail", slog.String("err", err.Error()))
		return
	}
	// Every exit path from here on must drop the registration, or the router
	// would keep forwarding to a dead handle. The owner guard keeps a
	// replaced stream from deregistering its successor.
	defer h.reg.Remove(sessID, st)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	if err := st.writeEndpointEvent(h.messageEndpoint(sessID)); err != nil {
		h.log.ErrorContext(ctx, "sse.handshake.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.open")

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-streamCtx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
			return
		case <-ticker.C:
			if err := st.writeComment("keepalive"); err != nil {
				h.log.InfoContext(ctx, "sse.keepalive.fail", slog.String("err", err.Error()))
				return
			}
		}
	}
}

// messageEndpoint renders the POST target advertised in the handshake frame.
func (h *Handler) messageEndpoint(sessID string) string {
	return h.streamPath + "?" + sessionQueryParam + "=" + url.QueryEscape(sessID)
}

// handleMessage is the message router for the out-of-band channel: resolve
// the session, authenticate against it, and forward the body to the live
// transport handle.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.message.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	sessID := sessionIDFromRequest(r)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing session id")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	ctx = withStreamLogCtx(ctx, sessID, h.reg.Subject(sessID))

	// A supplied credential is always checked, and its failure is terminal
	// even for a registered session. Without one, the session's own
	// authenticated registration carries the request.
	authed := false
	if tok := bearerFromRequest(r); tok != "" {
		if _, err := h.verifier.Verify(ctx, tok); err != nil {
			writeUnauthorized(w)
			h.log.InfoContext(ctx, "auth.fail", slog.String("err", err.Error()))
			return
		}
		authed = true
	}
	if !authed && !h.reg.Authenticated(sessID) {
		// Bypass-mode verifiers accept the absent credential too.
		if _, err := h.verifier.Verify(ctx, ""); err != nil {
			writeUnauthorized(w)
			h.log.InfoContext(ctx, "auth.fail", slog.String("err", "session not authenticated and no credential supplied"))
			return
		}
	}
	h.reg.Touch(sessID)

	tr, err := h.reg.LookupTransport(sessID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.lookup.miss")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		h.log.WarnContext(ctx, "body.read.fail", slog.String("err", err.Error()))
		return
	}

	if err := tr.HandleMessage(ctx, body); err != nil {
		if errors.Is(err, errBadMessage) {
			writeJSONError(w, http.StatusBadRequest, "malformed protocol message")
			h.log.WarnContext(ctx, "message.malformed", slog.String("err", err.Error()))
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to forward message")
		h.log.ErrorContext(ctx, "message.forward.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	h.log.InfoContext(ctx, "message.forward.ok", slog.Duration("dur", time.Since(start)))
}

// handleIssueToken mints a short-lived credential for an authenticated
// principal. The sign-in flow that authenticates the principal lives
// elsewhere; this demo accepts the subject directly.
func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeUnauthorized(w)
		h.log.InfoContext(ctx, "token.issue.no_subject")
		return
	}

	tok, err := h.issuer.Mint(ctx, subject, h.tokenTTL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to issue token")
		h.log.ErrorContext(ctx, "token.issue.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
	h.log.InfoContext(ctx, "token.issue.ok", slog.String("subject", subject))
}
