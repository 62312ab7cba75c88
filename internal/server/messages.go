package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/insites-io/module-ai/internal/backend"
	"github.com/insites-io/module-ai/internal/logx"
	"github.com/insites-io/module-ai/internal/metrics"
	"github.com/insites-io/module-ai/internal/stream"
)

// MessagesHandler handles POST /messages: validate, hand the prompt to the
// submitter, and acknowledge without waiting for the agent.
func MessagesHandler(sub *stream.Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			metrics.RecordHTTPRequest("messages", false)
			writeDetail(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		s := stream.Submission{
			SessionID: q.Get("session_id"),
			Prompt:    body.Prompt,
			Creds: backend.Credentials{
				InstanceURL:    q.Get("instance_url"),
				InstanceAPIKey: q.Get("instance_api_key"),
			},
		}
		if err := sub.Submit(s); err != nil {
			metrics.RecordHTTPRequest("messages", false)
			var verr *stream.ValidationError
			if errors.As(err, &verr) {
				writeDetail(w, http.StatusBadRequest, verr.Error())
				return
			}
			writeDetail(w, http.StatusInternalServerError, "submission failed")
			return
		}

		metrics.RecordHTTPRequest("messages", true)
		logx.Log.Info().Str("session_id", s.SessionID).Int("prompt_chars", len(s.Prompt)).Msg("prompt accepted")
		writeJSON(w, http.StatusOK, map[string]string{
			"message":    "Request accepted",
			"session_id": s.SessionID,
			"status":     "processing",
			"note":       "Use the SSE endpoint to receive the response stream",
		})
	}
}
