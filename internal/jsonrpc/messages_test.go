package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestAnyMessageKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind string
	}{
		{"request", `{"jsonrpc":"2.0","method":"tools/list","id":1}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{"response", `{"jsonrpc":"2.0","result":{},"id":"a"}`, "response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m AnyMessage
			if err := json.Unmarshal([]byte(tc.raw), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := m.Kind(); got != tc.kind {
				t.Fatalf("kind: want %q got %q", tc.kind, got)
			}
		})
	}
}

func TestAnyMessageRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"wrong version", `{"jsonrpc":"1.0","method":"x"}`},
		{"request with result", `{"jsonrpc":"2.0","method":"x","result":{}}`},
		{"response with both", `{"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"m"}}`},
		{"neither", `{"jsonrpc":"2.0"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m AnyMessage
			if err := json.Unmarshal([]byte(tc.raw), &m); err == nil {
				t.Fatalf("expected error for %s", tc.raw)
			}
		})
	}
}

func TestRequestIDCorrelation(t *testing.T) {
	var m AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"ping","id":42}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	res, err := NewResultResponse(m.ID, struct{}{})
	if err != nil {
		t.Fatalf("build response: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var echoed struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(b, &echoed); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if echoed.ID != 42 {
		t.Fatalf("id not echoed: got %d", echoed.ID)
	}
}

func TestRequestIDStringForm(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`"abc"`), &id); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if id.String() != "abc" {
		t.Fatalf("string form: got %q", id.String())
	}
	if id.IsNil() {
		t.Fatalf("expected non-nil id")
	}
	var absent *RequestID
	if !absent.IsNil() {
		t.Fatalf("nil pointer should be absent")
	}
}
