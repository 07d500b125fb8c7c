package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NKRI-78/websockets-rakhsa/internal/config"
	"github.com/NKRI-78/websockets-rakhsa/internal/database"
	"github.com/NKRI-78/websockets-rakhsa/internal/pubsub"
	"github.com/NKRI-78/websockets-rakhsa/internal/push"
	"github.com/NKRI-78/websockets-rakhsa/internal/server"
	"github.com/NKRI-78/websockets-rakhsa/internal/sos"
	"github.com/NKRI-78/websockets-rakhsa/internal/websocket"
)

func main() {
	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create context for initialization
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := database.EnsureSchema(ctx, db, "migrations"); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := database.NewUserRepository(db)
	chatRepo := database.NewChatRepository(db)
	incidentRepo := database.NewIncidentRepository(db)
	agentRepo := database.NewAgentRepository(db)

	// Initialize PubSub (in-memory for single instance, Redis to link instances)
	var ps pubsub.PubSub
	if cfg.PubSubType == "redis" {
		ps, err = pubsub.NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to redis pubsub")
	} else {
		ps = pubsub.NewMemoryPubSub()
	}
	defer ps.Close()

	// Long-lived context for background workers, cancelled on shutdown
	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	// Initialize push notifications (optional - skip if not configured)
	var notifier push.Notifier
	if cfg.FCMServerKey != "" {
		notifier = push.NewFCMClient(cfg.FCMEndpoint, cfg.FCMServerKey, logger)
		slog.Info("FCM push notifications enabled")
	} else {
		notifier = push.NopNotifier{}
		slog.Warn("FCM_SERVER_KEY not set - push notifications disabled")
	}
	dispatcher := push.NewDispatcher(notifier, 256, logger)
	go dispatcher.Run(runCtx)

	// Initialize SOS lifecycle coordinator
	coordinator := sos.NewCoordinator(incidentRepo, chatRepo, userRepo, agentRepo, dispatcher, logger)

	// Initialize WebSocket hub, liveness monitor and handler
	hub := websocket.NewHub(coordinator, chatRepo, userRepo, dispatcher, ps,
		cfg.SosBroadcast == config.SosBroadcastAll, logger)
	if err := hub.Start(runCtx); err != nil {
		slog.Error("failed to start hub", "error", err)
		os.Exit(1)
	}
	defer hub.Stop()

	monitor := websocket.NewMonitor(hub, cfg.PingInterval, logger)
	go monitor.Run(runCtx)

	wsHandler := websocket.NewHandler(hub, cfg.FramesPerMin, logger)

	// Create and start server
	deps := &server.Dependencies{
		DB:        db,
		WSHandler: wsHandler,
		Logger:    logger,
	}

	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr, "sos_broadcast", cfg.SosBroadcast)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	// Give active connections 10 seconds to finish
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
