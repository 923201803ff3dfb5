package ssehttp

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
)

// yieldingWriter yields between accepting writes to widen any window where a
// frame emitted as multiple writes could interleave with another goroutine's.
type yieldingWriter struct {
	buf bytes.Buffer
}

func (w *yieldingWriter) Write(p []byte) (int, error) {
	runtime.Gosched()
	return w.buf.Write(p)
}

func (w *yieldingWriter) Flush() {}

func TestConcurrentFrameWritesDoNotInterleave(t *testing.T) {
	rec := &yieldingWriter{}
	wf := &lockedWriteFlusher{Writer: rec, Flusher: rec, ctx: context.Background()}
	st := &streamTransport{sessionID: "s1", wf: wf}

	// Keepalive comments race against message frames, as they do when the
	// stream handler's ticker runs alongside POST-driven delivery.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := st.writeEvent("message", []byte(`{"ok":true}`)); err != nil {
					t.Errorf("write event: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := st.writeComment("keepalive"); err != nil {
					t.Errorf("write comment: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	events := 0
	for _, line := range strings.Split(rec.buf.String(), "\n") {
		switch {
		case line == "" || line == ": keepalive":
		case strings.HasPrefix(line, "id: "):
		case line == "event: message":
			events++
		case line == `data: {"ok":true}`:
		default:
			t.Fatalf("corrupted SSE line: %q", line)
		}
	}
	if events != 4*50 {
		t.Fatalf("message frames lost or split: got %d", events)
	}
}
