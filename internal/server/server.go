package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/NKRI-78/websockets-rakhsa/internal/config"
	"github.com/NKRI-78/websockets-rakhsa/internal/database"
	"github.com/NKRI-78/websockets-rakhsa/internal/websocket"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	DB        *database.DB
	WSHandler *websocket.Handler
	Logger    *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, deps)

	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health check - essential for docker, k8s, load balancers
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Ready check - verifies DB connectivity
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","error":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// All application traffic flows over the socket.
	mux.Handle("GET /ws", deps.WSHandler)
}
