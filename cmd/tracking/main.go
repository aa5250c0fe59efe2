package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arkmail/dispatch/internal/config"
	"github.com/arkmail/dispatch/internal/pkg/logger"
	"github.com/arkmail/dispatch/internal/pkg/metrics"
	"github.com/arkmail/dispatch/internal/repository/postgres"
	"github.com/arkmail/dispatch/internal/service/attribution"
	"github.com/arkmail/dispatch/internal/service/suppression"
	"github.com/arkmail/dispatch/internal/tracking"
)

// The tracking daemon runs separately from the API server so recipient
// traffic (pixels, clicks, unsubscribes) never queues behind operator
// requests. It shares nothing with cmd/server except the database.
func main() {
	log.Println("Starting tracking server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())
	log.Println("Database connected")

	rules := attribution.ConversionRules{
		Purchase: cfg.Conversions.Purchase,
		Signup:   cfg.Conversions.Signup,
		Download: cfg.Conversions.Download,
		Contact:  cfg.Conversions.Contact,
	}

	repo := postgres.NewTrackingRepo(db)
	ingestor := attribution.New(repo, nil, rules, nil)
	suppressionSvc := suppression.NewService(postgres.NewSuppressionRepo(db))

	met := metrics.New(prometheus.DefaultRegisterer)
	handler := tracking.NewHandler(ingestor, suppressionSvc, met, cfg.Tracking.FallbackURL)

	addr := fmt.Sprintf(":%d", cfg.Server.TrackingPort)
	srv := tracking.NewServer(addr, handler)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Tracking server listening on %s", addr)
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
