// Package router assembles the HTTP surface: public schedule endpoints, the
// portal WebSocket, webhooks, and operational endpoints.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/baxterlabs/pipeline-platform/internal/http/middleware"
	"github.com/baxterlabs/pipeline-platform/internal/pipeline"
	"github.com/baxterlabs/pipeline-platform/internal/portal"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	PipelineHandler    *pipeline.Handler
	PortalHandler      *portal.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)

	// Public endpoints: the confirmation token is the credential.
	if cfg.PipelineHandler != nil {
		cfg.PipelineHandler.Routes(r)
	}
	if cfg.PortalHandler != nil {
		r.Get("/ws/schedule", cfg.PortalHandler.HandleWebSocket)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
