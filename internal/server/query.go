package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/insites-io/module-ai/internal/backend"
	"github.com/insites-io/module-ai/internal/cache"
	"github.com/insites-io/module-ai/internal/metrics"
	"github.com/insites-io/module-ai/internal/stream"
)

// QueryHandler handles POST /query: one synchronous agent turn, no stream.
func QueryHandler(agent stream.Agent, c *cache.Cache, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		instanceURL := q.Get("instance_url")
		instanceKey := q.Get("instance_api_key")
		if instanceURL == "" {
			writeDetail(w, http.StatusBadRequest, "instance_url is required")
			return
		}
		if instanceKey == "" {
			writeDetail(w, http.StatusBadRequest, "instance_api_key is required")
			return
		}
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt == "" {
			writeDetail(w, http.StatusBadRequest, "prompt is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		now := time.Now().UTC().Format(time.RFC3339)

		if text, ok := c.Get(ctx, body.Prompt, instanceURL); ok {
			metrics.RecordHTTPRequest("query", true)
			writeJSON(w, http.StatusOK, map[string]any{
				"success":   true,
				"response":  text,
				"prompt":    body.Prompt,
				"timestamp": now,
			})
			return
		}

		creds := backend.Credentials{InstanceURL: instanceURL, InstanceAPIKey: instanceKey}
		text, err := agent.RunAgentTurn(ctx, body.Prompt, creds)
		if err != nil {
			metrics.RecordHTTPRequest("query", false)
			writeJSON(w, http.StatusOK, map[string]any{
				"success":   false,
				"error":     err.Error(),
				"prompt":    body.Prompt,
				"timestamp": now,
			})
			return
		}
		c.Put(ctx, body.Prompt, instanceURL, text)
		metrics.RecordHTTPRequest("query", true)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"response":  text,
			"prompt":    body.Prompt,
			"timestamp": now,
		})
	}
}
