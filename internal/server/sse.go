package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/insites-io/module-ai/internal/logx"
	"github.com/insites-io/module-ai/internal/metrics"
	"github.com/insites-io/module-ai/internal/stream"
)

// Wire markers understood by SSE clients.
const (
	frameConnected = "CONNECTED"
	framePing      = "PING"
	frameEnd       = "END_STREAM"
	errorPrefix    = "ERROR: "
)

// SSEHandler drains a session's channel to the client as Server-Sent Events.
// The session registry entry is removed on every exit path: end of stream,
// client disconnect, or write failure.
func SSEHandler(reg *stream.Registry, pingInterval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := r.URL.Query().Get("session_id")
		if sid == "" {
			metrics.RecordHTTPRequest("sse", false)
			writeDetail(w, http.StatusBadRequest, "session_id is required")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			metrics.RecordHTTPRequest("sse", false)
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		// A consumer may attach before the submitter runs; the channel is
		// created on first reference either way.
		ch := reg.GetOrCreate(sid)
		defer reg.Remove(sid)
		metrics.RecordHTTPRequest("sse", true)
		logx.Log.Info().Str("session_id", sid).Msg("stream opened")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Connection", "keep-alive")

		if err := writeFrame(w, flusher, frameConnected); err != nil {
			return
		}
		metrics.RecordStreamEvent(string(stream.KindConnected))

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				logx.Log.Info().Str("session_id", sid).Msg("stream cancelled")
				return
			case <-ticker.C:
				if err := writeFrame(w, flusher, framePing); err != nil {
					return
				}
				metrics.RecordStreamEvent(string(stream.KindPing))
			case ev := <-ch:
				switch ev.Kind {
				case stream.KindEnd:
					_ = writeFrame(w, flusher, frameEnd)
					metrics.RecordStreamEvent(string(stream.KindEnd))
					logx.Log.Info().Str("session_id", sid).Msg("stream ended")
					return
				case stream.KindError:
					if err := writeFrame(w, flusher, errorPrefix+escape(ev.Payload)); err != nil {
						return
					}
					metrics.RecordStreamEvent(string(stream.KindError))
				default:
					if err := writeFrame(w, flusher, escape(ev.Payload)); err != nil {
						return
					}
					metrics.RecordStreamEvent(string(stream.KindData))
				}
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, f http.Flusher, payload string) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		logx.Log.Warn().Err(err).Msg("write frame")
		return err
	}
	f.Flush()
	return nil
}

// escape keeps multi-line payloads inside a single SSE data field.
func escape(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
