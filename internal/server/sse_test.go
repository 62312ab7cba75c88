package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/insites-io/module-ai/internal/stream"
)

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

func serveSSE(t *testing.T, reg *stream.Registry, ping time.Duration, req *http.Request) *flushRecorder {
	t.Helper()
	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	SSEHandler(reg, ping)(rec, req)
	return rec
}

func TestSSERequiresSessionID(t *testing.T) {
	reg := stream.NewRegistry()
	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	rec := serveSSE(t, reg, time.Minute, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestSSEDrainsSessionToEnd(t *testing.T) {
	reg := stream.NewRegistry()
	ch := reg.GetOrCreate("s1")
	ch <- stream.DataEvent("line one\nline two")
	ch <- stream.EndEvent()

	req := httptest.NewRequest(http.MethodGet, "/sse?session_id=s1", nil)
	rec := serveSSE(t, reg, time.Minute, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type %s", ct)
	}
	want := "data: CONNECTED\n\ndata: line one\\nline two\n\ndata: END_STREAM\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body %q", rec.Body.String())
	}
	if !rec.flushed {
		t.Fatal("expected flush")
	}
	if reg.Len() != 0 {
		t.Fatal("session not removed after end")
	}
}

func TestSSEErrorEventThenEnd(t *testing.T) {
	reg := stream.NewRegistry()
	ch := reg.GetOrCreate("s1")
	ch <- stream.ErrorEvent("backend down")
	ch <- stream.EndEvent()

	req := httptest.NewRequest(http.MethodGet, "/sse?session_id=s1", nil)
	rec := serveSSE(t, reg, time.Minute, req)
	want := "data: CONNECTED\n\ndata: ERROR: backend down\n\ndata: END_STREAM\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestSSEPingOnIdle(t *testing.T) {
	reg := stream.NewRegistry()
	ch := reg.GetOrCreate("s1")
	go func() {
		time.Sleep(80 * time.Millisecond)
		ch <- stream.EndEvent()
	}()

	req := httptest.NewRequest(http.MethodGet, "/sse?session_id=s1", nil)
	rec := serveSSE(t, reg, 10*time.Millisecond, req)
	if !strings.Contains(rec.Body.String(), "data: PING\n\n") {
		t.Fatalf("expected ping frame, body %q", rec.Body.String())
	}
	if !strings.HasSuffix(rec.Body.String(), "data: END_STREAM\n\n") {
		t.Fatalf("expected terminator, body %q", rec.Body.String())
	}
}

func TestSSECancellationCleansUp(t *testing.T) {
	reg := stream.NewRegistry()
	reg.GetOrCreate("s1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/sse?session_id=s1", nil).WithContext(ctx)
	rec := serveSSE(t, reg, time.Minute, req)

	if rec.Body.String() != "data: CONNECTED\n\n" {
		t.Fatalf("body %q", rec.Body.String())
	}
	if reg.Len() != 0 {
		t.Fatal("session not removed after cancellation")
	}
}

func TestSSECreatesSessionWhenConsumerAttachesFirst(t *testing.T) {
	reg := stream.NewRegistry()
	go func() {
		// Simulate a submitter completing after the consumer attached.
		time.Sleep(20 * time.Millisecond)
		ch := reg.GetOrCreate("s1")
		ch <- stream.DataEvent("late answer")
		ch <- stream.EndEvent()
	}()

	req := httptest.NewRequest(http.MethodGet, "/sse?session_id=s1", nil)
	rec := serveSSE(t, reg, time.Minute, req)
	want := "data: CONNECTED\n\ndata: late answer\n\ndata: END_STREAM\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body %q", rec.Body.String())
	}
}
