package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"elicitd/internal/jsonrpc"
	"elicitd/internal/profile"
)

func mustRequest(t *testing.T, raw string) *jsonrpc.Request {
	t.Helper()
	var req jsonrpc.Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return &req
}

func newDispatcher(opts ...Option) *Dispatcher {
	return New(profile.NewCollector(nil), opts...)
}

func TestListToolsDescriptor(t *testing.T) {
	d := newDispatcher()

	res, err := d.Dispatch(context.Background(), mustRequest(t, `{"jsonrpc":"2.0","method":"tools/list","id":7}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res == nil || res.Error != nil {
		t.Fatalf("want result, got %+v", res)
	}

	var listed listToolsResult
	if err := json.Unmarshal(res.Result, &listed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(listed.Tools) != 1 {
		t.Fatalf("tool count: got %d", len(listed.Tools))
	}
	tool := listed.Tools[0]
	if tool.Name != ProfileToolName {
		t.Errorf("tool name: got %q", tool.Name)
	}
	if tool.InputSchema == nil || len(tool.InputSchema.Properties) != 4 {
		t.Errorf("input schema: %+v", tool.InputSchema)
	}
	if res.ID.String() != "7" {
		t.Errorf("id not correlated: %q", res.ID.String())
	}
}

func TestCallToolAcceptsBothSpellings(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()

	for _, name := range []string{"collect_profile", "collect_user_profile"} {
		raw := `{"jsonrpc":"2.0","method":"tools/call","id":1,"params":{"name":"` + name + `","arguments":{"name":"Al","email":"a@b.com"}}}`
		res, err := d.Dispatch(ctx, mustRequest(t, raw))
		if err != nil {
			t.Fatalf("%s: dispatch: %v", name, err)
		}
		if res.Error != nil {
			t.Fatalf("%s: unexpected error: %+v", name, res.Error)
		}
		var ctr CallToolResult
		if err := json.Unmarshal(res.Result, &ctr); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if len(ctr.Content) != 1 || ctr.Content[0].Type != "text" {
			t.Fatalf("%s: content: %+v", name, ctr.Content)
		}
		var outcome profile.Result
		if err := json.Unmarshal([]byte(ctr.Content[0].Text), &outcome); err != nil {
			t.Fatalf("%s: content text is not JSON: %v", name, err)
		}
		if outcome.Status != profile.StatusSuccess {
			t.Fatalf("%s: status: got %q", name, outcome.Status)
		}
	}
}

func TestCallToolEmptyArgumentsElicits(t *testing.T) {
	d := newDispatcher()

	raw := `{"jsonrpc":"2.0","method":"tools/call","id":1,"params":{"name":"collect_profile"}}`
	res, err := d.Dispatch(context.Background(), mustRequest(t, raw))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	var ctr CallToolResult
	if err := json.Unmarshal(res.Result, &ctr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var outcome profile.Result
	if err := json.Unmarshal([]byte(ctr.Content[0].Text), &outcome); err != nil {
		t.Fatalf("content text: %v", err)
	}
	if outcome.Status != profile.StatusRequiresAction {
		t.Fatalf("status: got %q", outcome.Status)
	}
}

func TestCallToolUnknownName(t *testing.T) {
	d := newDispatcher()

	raw := `{"jsonrpc":"2.0","method":"tools/call","id":3,"params":{"name":"launch_rockets"}}`
	res, err := d.Dispatch(context.Background(), mustRequest(t, raw))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("want invalid params error, got %+v", res)
	}
	if res.ID.String() != "3" {
		t.Fatalf("error must carry the request id, got %q", res.ID.String())
	}
}

func TestUnknownMethodWithoutFallback(t *testing.T) {
	d := newDispatcher()

	res, err := d.Dispatch(context.Background(), mustRequest(t, `{"jsonrpc":"2.0","method":"resources/list","id":9}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("want method-not-found, got %+v", res)
	}
}

func TestUnknownMethodWithFallback(t *testing.T) {
	called := ""
	d := newDispatcher(WithFallback(func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
		called = req.Method
		return jsonrpc.NewResultResponse(req.ID, map[string]string{"handled": "yes"})
	}))

	res, err := d.Dispatch(context.Background(), mustRequest(t, `{"jsonrpc":"2.0","method":"resources/list","id":9}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if called != "resources/list" {
		t.Fatalf("fallback not invoked: %q", called)
	}
	if res == nil || res.Error != nil {
		t.Fatalf("want fallback result, got %+v", res)
	}
}

func TestNotificationProducesNoResponse(t *testing.T) {
	d := newDispatcher()

	res, err := d.Dispatch(context.Background(), mustRequest(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res != nil {
		t.Fatalf("notifications must be silent, got %+v", res)
	}
}

func TestPing(t *testing.T) {
	d := newDispatcher()

	res, err := d.Dispatch(context.Background(), mustRequest(t, `{"jsonrpc":"2.0","method":"ping","id":"p1"}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Error != nil || res.ID.String() != "p1" {
		t.Fatalf("ping response: %+v", res)
	}
}
