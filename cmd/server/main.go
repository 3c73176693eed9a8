package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"room-broker/internal/auth"
	"room-broker/internal/broker"
	"room-broker/internal/config"
	"room-broker/internal/database"
	"room-broker/internal/handlers"
	"room-broker/internal/services"
	"room-broker/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var opts []broker.Option
	if cfg.Database.URL != "" {
		// Initialize database
		db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to apply schema: %v", err)
		}
		if n, err := db.ClearActiveSessions(ctx); err != nil {
			logger.Error("Error clearing stale sessions: %v", err)
		} else if n > 0 {
			logger.Info("Cleared %d stale session(s) from a previous run", n)
		}

		recorder := services.NewRecorder(db, cfg.Database.RecorderQueueSize)
		opts = append(opts,
			broker.WithGate(services.NewRoomService(db)),
			broker.WithRecorder(recorder),
		)
		g.Go(func() error { return recorder.Run(gctx) })
	} else {
		logger.Warn("DATABASE_URL not set, running without room admission or persistence")
	}

	// Initialize services
	authService := auth.NewService(cfg.JWT)
	if !authService.Enabled() {
		logger.Warn("JWT_SECRET not set, identities are taken from join_room frames")
	}
	b := broker.New(cfg.Broker, opts...)

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(b)
	wsHandlers := handlers.NewWebSocketHandlers(authService, b, cfg)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, roomHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error {
		logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
		logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
		printAPIEndpoints()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// Hijacked WebSocket connections are not tracked by Shutdown.
		b.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error: %v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func setupRoutes(mux *http.ServeMux, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers) {
	mux.HandleFunc("/health", roomHandlers.Health)
	mux.HandleFunc("/stats", roomHandlers.Stats)

	// /rooms/{id}/active
	mux.HandleFunc("/rooms/", roomHandlers.GetActiveUsers)

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   GET  /health")
	logger.Info("   GET  /stats")
	logger.Info("   GET  /rooms/{id}/active")
	logger.Info("   GET  /ws?token=...")
}
