package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/arkmail/dispatch/internal/api"
	"github.com/arkmail/dispatch/internal/config"
	"github.com/arkmail/dispatch/internal/pkg/logger"
	"github.com/arkmail/dispatch/internal/pkg/metrics"
	"github.com/arkmail/dispatch/internal/repository/postgres"
	"github.com/arkmail/dispatch/internal/service/campaign"
	"github.com/arkmail/dispatch/internal/service/compose"
	"github.com/arkmail/dispatch/internal/service/dispatch"
	"github.com/arkmail/dispatch/internal/service/dkim"
	"github.com/arkmail/dispatch/internal/service/inject"
	"github.com/arkmail/dispatch/internal/service/selector"
	"github.com/arkmail/dispatch/internal/service/suppression"
	"github.com/arkmail/dispatch/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use: %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting dispatch API server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	if err := checkPortAvailable(cfg.Server.APIPort); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", cfg.Server.APIPort)

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

	keyPEM, err := os.ReadFile(cfg.DKIM.KeyPath)
	if err != nil {
		log.Fatalf("Failed to read DKIM key %s: %v", cfg.DKIM.KeyPath, err)
	}
	signer, err := dkim.NewSigner(dkim.Options{
		Domain:      cfg.DKIM.Domain,
		Selector:    cfg.DKIM.Selector,
		HeaderCanon: cfg.DKIM.HeaderCanon,
		BodyCanon:   cfg.DKIM.BodyCanon,
	}, keyPEM, nil)
	if err != nil {
		log.Fatalf("Failed to initialize DKIM signer: %v", err)
	}
	log.Printf("DKIM signer ready (d=%s, s=%s)", cfg.DKIM.Domain, cfg.DKIM.Selector)

	pool := selector.New(postgres.NewServerRepo(db))
	if err := pool.Refresh(ctx); err != nil {
		log.Fatalf("Failed to load SMTP server pool: %v", err)
	}
	log.Printf("SMTP server pool loaded (%d servers)", len(pool.Status()))

	suppressionSvc := suppression.NewService(postgres.NewSuppressionRepo(db))
	composer := compose.New(nil, nil)
	injector := inject.New(postgres.NewTrackingRepo(db), cfg.Tracking.BaseURL)

	domainDelays := make(map[string]time.Duration, len(cfg.Dispatch.DomainDelaysMs))
	for d, ms := range cfg.Dispatch.DomainDelaysMs {
		domainDelays[d] = time.Duration(ms) * time.Millisecond
	}

	engine := dispatch.New(dispatch.Deps{
		Repo:        postgres.NewDispatchRepo(db),
		Pool:        pool,
		Transport:   worker.NewSMTPTransport(),
		Composer:    composer,
		Injector:    injector,
		Signer:      signer,
		Suppression: suppressionSvc,
	}, dispatch.Options{
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
		SendTimeout:     cfg.Dispatch.SendTimeout(),
		BaseDelay:       time.Duration(cfg.Dispatch.BaseDelayMs) * time.Millisecond,
		DomainDelays:    domainDelays,
		Jitter:          time.Duration(cfg.Dispatch.JitterMs) * time.Millisecond,
		TrackingBaseURL: cfg.Tracking.BaseURL,
	})

	campaignSvc := campaign.NewService(postgres.NewCampaignRepo(db), composer)

	met := metrics.New(prometheus.DefaultRegisterer)

	// Per-domain throttling needs Redis; without it sends are unthrottled.
	var throttle *worker.Throttle
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — per-domain throttling disabled", cfg.Redis.Addr, err)
			redisClient.Close()
		} else {
			throttle = worker.NewThrottle(redisClient, cfg.Dispatch.DomainPerMinute)
			log.Printf("Redis connected: %s (per-domain throttling enabled, %d/min)", cfg.Redis.Addr, cfg.Dispatch.DomainPerMinute)
		}
		pingCancel()
	}

	dispatchWorker := worker.NewDispatchWorker(db, engine, throttle, met, worker.DispatchConfig{
		Workers:      cfg.Dispatch.Workers,
		BatchSize:    cfg.Dispatch.BatchSize,
		PollInterval: cfg.Dispatch.QueuePoll(),
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
	})
	if err := dispatchWorker.Start(ctx); err != nil {
		log.Printf("Warning: Failed to start dispatch worker: %v", err)
	} else {
		log.Printf("Dispatch worker started (id=%s, loops=%d, batch=%d)",
			dispatchWorker.ID(), cfg.Dispatch.Workers, cfg.Dispatch.BatchSize)
	}

	handlers := api.NewHandlers(engine, campaignSvc, pool, suppressionSvc)
	router := api.SetupRoutes(handlers)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.APIPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("API server listening on :%d", cfg.Server.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	cancel()
	dispatchWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
