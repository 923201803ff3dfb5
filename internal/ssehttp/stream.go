package ssehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"elicitd/internal/dispatch"
	"elicitd/internal/jsonrpc"
	"elicitd/internal/logctx"
	"elicitd/internal/registry"
)

// errBadMessage marks an inbound body that is not a valid protocol message.
// The router reports it as a client error rather than an internal one.
var errBadMessage = errors.New("ssehttp: malformed protocol message")

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and a
// stream context. It serializes concurrent writes/flushes and refuses to
// write after the stream is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check under the lock to narrow the race with cancellation.
	if l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// streamTransport is the transport handle registered for one open stream.
// The stream handler owns it exclusively; the registry only holds a lookup
// reference. Its inbound-message callback is attached once, here, and never
// reattached.
type streamTransport struct {
	sessionID string
	wf        *lockedWriteFlusher
	disp      *dispatch.Dispatcher
	log       *slog.Logger
	cancel    context.CancelFunc
	eventSeq  atomic.Int64
}

// Close cancels the stream context, which unblocks the handler's keepalive
// loop and triggers deregistration.
func (t *streamTransport) Close() { t.cancel() }

// HandleMessage is the inbound entry point for out-of-band messages routed
// to this stream. Requests are dispatched and their response is pushed down
// the stream; notifications produce no output; client responses have no
// outstanding server request to correlate with in this demo, so they are
// logged and dropped.
func (t *streamTransport) HandleMessage(ctx context.Context, body []byte) error {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}

	if res := msg.AsResponse(); res != nil {
		t.log.InfoContext(ctx, "rpc.client_response.drop", slog.String("id", res.ID.String()))
		return nil
	}

	req := msg.AsRequest()
	res, err := t.disp.Dispatch(ctx, req)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", req.Method, err)
	}
	if res == nil {
		// Notification: nothing goes back down the stream.
		return nil
	}

	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return t.writeEvent("message", b)
}

// writeEvent emits one SSE frame with an incrementing event id and flushes.
// The frame is assembled first and written in a single call: the keepalive
// ticker and message delivery write to the same stream from different
// goroutines, and the write lock only serializes individual writes.
func (t *streamTransport) writeEvent(event string, payload []byte) error {
	id := t.eventSeq.Add(1)
	var frame bytes.Buffer
	fmt.Fprintf(&frame, "id: %d\nevent: %s\ndata: ", id, event)
	frame.Write(payload)
	frame.WriteString("\n\n")
	if _, err := t.wf.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("write SSE frame: %w", err)
	}
	t.wf.Flush()
	return nil
}

// writeComment emits an SSE comment frame (keepalive) as one write.
func (t *streamTransport) writeComment(text string) error {
	if _, err := t.wf.Write([]byte(": " + text + "\n\n")); err != nil {
		return err
	}
	t.wf.Flush()
	return nil
}

// endpointEvent is the handshake payload sent as the first frame of a
// stream, telling the client where to POST messages for this session.
type endpointEvent struct {
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

func (t *streamTransport) writeEndpointEvent(path string) error {
	b, err := json.Marshal(endpointEvent{Endpoint: path, SessionID: t.sessionID})
	if err != nil {
		return err
	}
	return t.writeEvent("endpoint", b)
}

var _ registry.Transport = (*streamTransport)(nil)

// withStreamLogCtx tags the context with session data for the log handler.
func withStreamLogCtx(ctx context.Context, sessionID, subject string) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID, Subject: subject})
}
