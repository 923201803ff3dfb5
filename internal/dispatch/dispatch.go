// Package dispatch maps inbound protocol methods onto handlers. The mapping
// is a single explicit table; there is no speculative registration or
// fallback probing. The only tool is the profile-collection operation, which
// keeps a second historical spelling for compatibility with older clients.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"elicitd/internal/jsonrpc"
	"elicitd/internal/logctx"
	"elicitd/internal/profile"
)

const (
	// ProfileToolName is the canonical spelling of the collection operation.
	ProfileToolName = "collect_profile"
	// profileToolNameLegacy is accepted for compatibility with clients built
	// against the earlier tool listing.
	profileToolNameLegacy = "collect_user_profile"
)

// Tool is the static descriptor returned by tools/list.
type Tool struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	InputSchema *profile.FieldSchema `json:"inputSchema"`
}

// ContentBlock is a single content element of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult wraps a tool invocation outcome.
type CallToolResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// FallbackHandler receives requests whose method has no mapping. It may
// return a nil response to suppress output.
type FallbackHandler func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)

// Dispatcher interprets protocol requests and produces correlated responses.
// It is stateless with respect to sessions.
type Dispatcher struct {
	collector *profile.Collector
	fallback  FallbackHandler
	log       *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFallback installs a handler for unmapped methods. Without one, unknown
// methods produce a method-not-found error response.
func WithFallback(fn FallbackHandler) Option {
	return func(d *Dispatcher) { d.fallback = fn }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// New builds a Dispatcher around the profile collector.
func New(collector *profile.Collector, opts ...Option) *Dispatcher {
	d := &Dispatcher{collector: collector, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes one request. Notifications (absent id) never produce a
// response: the returned response is nil and no output must be sent for
// them. Requests always produce exactly one response carrying the same id.
func (d *Dispatcher) Dispatch(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	kind := "request"
	if req.IsNotification() {
		kind = "notification"
	}
	ctx = logctx.WithRPCData(ctx, &logctx.RPCData{
		Method: req.Method,
		ID:     req.ID.String(),
		Kind:   kind,
	})

	if req.IsNotification() {
		// Fire-and-forget; nothing is interested in these in the demo beyond
		// the log line.
		d.log.InfoContext(ctx, "rpc.notification")
		return nil, nil
	}

	switch req.Method {
	case "ping":
		return jsonrpc.NewResultResponse(req.ID, struct{}{})

	case "tools/list":
		return jsonrpc.NewResultResponse(req.ID, listToolsResult{Tools: []Tool{{
			Name:        ProfileToolName,
			Description: "Collect a user profile (name, email, bio, optional avatar).",
			InputSchema: profile.Fields(),
		}}})

	case "tools/call":
		return d.dispatchToolCall(ctx, req)

	default:
		if d.fallback != nil {
			return d.fallback(ctx, req)
		}
		d.log.InfoContext(ctx, "rpc.method.unknown")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)), nil
	}
}

func (d *Dispatcher) dispatchToolCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/call params"), nil
	}

	switch params.Name {
	case ProfileToolName, profileToolNameLegacy:
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name)), nil
	}

	var in profile.Input
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &in); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tool arguments"), nil
		}
	}

	res, err := d.collector.Collect(ctx, in)
	if err != nil {
		d.log.ErrorContext(ctx, "tool.collect.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal server error"), nil
	}

	text, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return jsonrpc.NewResultResponse(req.ID, CallToolResult{
		Content:           []ContentBlock{{Type: "text", Text: string(text)}},
		StructuredContent: res,
	})
}
