package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/auth"
	"github.com/xelth-com/commissariat/internal/buildinfo"
	"github.com/xelth-com/commissariat/internal/config"
	"github.com/xelth-com/commissariat/internal/database"
	"github.com/xelth-com/commissariat/internal/handlers"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/metrics"
	"github.com/xelth-com/commissariat/internal/services/accounts"
	"github.com/xelth-com/commissariat/internal/services/declarations"
	"github.com/xelth-com/commissariat/internal/services/stations"
	"github.com/xelth-com/commissariat/internal/services/uploads"
	"github.com/xelth-com/commissariat/internal/store"
	"github.com/xelth-com/commissariat/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	lg := logger.New("commissariat", cfg.LogLevel)
	log := lg.Component("main")

	// 2. Initialize database (embedded or external)
	db, err := database.Connect(cfg.Database, lg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	// Note: db.Close() is called in the shutdown path below

	// 3. Synchronize schema
	if cfg.Database.Alter {
		log.Info("Synchronizing database schema")
		if err := db.Migrate(); err != nil {
			log.WithError(err).Fatal("Migration failed")
		}
	}

	// 4. Token revocation: redis when configured, in-process otherwise
	var revocations auth.RevocationStore = auth.NewMemoryRevocations()
	if cfg.Redis.URL != "" {
		rr, err := auth.NewRedisRevocations(cfg.Redis.URL)
		if err != nil {
			log.WithError(err).Fatal("Invalid REDIS_URL")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rr.Ping(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("Redis unreachable")
		}
		defer rr.Close()
		revocations = rr
		log.Info("Token revocation backed by redis")
	}

	tokens := auth.NewTokenService(cfg.Auth, revocations)
	st := store.NewGorm(db.DB)
	m := metrics.New("commissariat")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	hub := websocket.NewHub(lg)
	go hub.Run(ctx)

	up, err := uploads.New(cfg.Uploads, lg)
	if err != nil {
		log.WithError(err).Fatal("Failed to prepare upload directory")
	}

	accountSvc := accounts.NewService(st, auth.NewHasher(cfg.Auth.BcryptCost), tokens, lg)
	accountSvc.SetSessionCloser(hub)
	router := handlers.NewRouter(handlers.Deps{
		Accounts: accountSvc,
		Stations: stations.NewService(st, lg),
		Declarations: declarations.NewService(st, declarations.Options{
			Notifier:  hub,
			Metrics:   m,
			Logger:    lg,
			PublicURL: cfg.Server.PublicURL,
		}),
		Uploads: up,
		Hub:     hub,
		Tokens:  tokens,
		Metrics: m,
		Logger:  lg,
		DB:      db,
	})

	// 5. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.WithFields(logrus.Fields{
			"port":    cfg.Server.Port,
			"env":     cfg.NodeEnv,
			"version": buildinfo.Version,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	sig := <-shutdown
	log.WithField("signal", sig.String()).Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}
	// Disconnects websocket clients
	stop()

	// Close database (this also stops embedded PostgreSQL)
	if err := db.Close(); err != nil {
		log.WithError(err).Error("Database close error")
	}
	log.Info("Shutdown complete")
}
