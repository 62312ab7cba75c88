package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insites-io/module-ai/internal/cache"
	"github.com/insites-io/module-ai/internal/config"
	"github.com/insites-io/module-ai/internal/stream"
)

// New constructs the HTTP handler for the gateway.
func New(cfg config.ServerConfig, reg *stream.Registry, sub *stream.Submitter, agent stream.Agent, c *cache.Cache) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range middlewareChain() {
		r.Use(m)
	}

	r.Get("/", StatusHandler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/messages", MessagesHandler(sub))
	r.Get("/sse", SSEHandler(reg, cfg.PingInterval))
	r.Post("/query", QueryHandler(agent, c, cfg.RequestTimeout))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// StatusHandler reports service liveness.
func StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "CRM Assistant Gateway",
		})
	}
}
