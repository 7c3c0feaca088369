package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/raffleworks/raffle-backend/api/routes"
	"github.com/raffleworks/raffle-backend/internal/config"
	"github.com/raffleworks/raffle-backend/internal/handlers"
	mongorepo "github.com/raffleworks/raffle-backend/internal/repositories/mongodb"
	"github.com/raffleworks/raffle-backend/internal/services"
	"github.com/raffleworks/raffle-backend/pkg/events"
	"github.com/raffleworks/raffle-backend/pkg/ledger"
	"github.com/raffleworks/raffle-backend/pkg/mongodb"
	"github.com/raffleworks/raffle-backend/pkg/oracle"
	"golang.org/x/exp/slog"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	// Connect to MongoDB
	mongoClient, err := mongodb.NewClient(cfg.MongoDB.URI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			slog.Error("Error disconnecting from MongoDB", "error", err)
		}
	}()

	db := mongoClient.Database(cfg.MongoDB.Database)

	// Repositories
	roundRepo := mongorepo.NewRoundRepository(db)
	payoutRepo := mongorepo.NewPayoutRepository(db)
	adminUserRepo := mongorepo.NewAdminUserRepository(db)

	// External collaborators
	rngOracle := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.MockOracle)
	ledgerClient := ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey, cfg.Ledger.MockLedger)
	sink := newSink(cfg)

	// Services
	roundManager, err := services.NewRoundManager(context.Background(), cfg, roundRepo, payoutRepo, rngOracle, ledgerClient, sink)
	if err != nil {
		slog.Error("Failed to initialize round manager", "error", err)
		os.Exit(1)
	}
	authService := services.NewAuthService(adminUserRepo, cfg)

	// Handlers and router
	deps := routes.HandlerDependencies{
		AuthHandler:  handlers.NewAuthHandler(authService),
		RoundHandler: handlers.NewRoundHandler(roundManager),
	}
	router := routes.SetupRouter(cfg, deps)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	slog.Info("Server starting", "port", cfg.Server.Port, "entranceFee", cfg.Raffle.EntranceFee, "minInterval", cfg.Raffle.MinInterval)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}

// newSink selects the notification sink implementation from config
func newSink(cfg *config.Config) events.Sink {
	switch cfg.Events.Sink {
	case "webhook":
		return events.NewWebhookSink(cfg.Events.WebhookURL)
	case "mock":
		return events.NewMockSink()
	default:
		return events.NewLogSink()
	}
}

// setupLogger configures the default slog logger
func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
