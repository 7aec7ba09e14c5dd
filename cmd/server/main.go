package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/revaspay/onboarding/internal/app"
	"github.com/revaspay/onboarding/internal/config"
	"github.com/revaspay/onboarding/internal/handlers"
	"github.com/revaspay/onboarding/internal/jobs"
	"github.com/revaspay/onboarding/internal/middleware"
	"github.com/revaspay/onboarding/internal/queue"
	"github.com/revaspay/onboarding/internal/routes"
	"github.com/revaspay/onboarding/internal/utils"
)

func main() {
	// Initialize configuration (.env is loaded by LoadConfig)
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize onboarding service: %v", err)
	}
	defer a.Close()

	// Vendor configuration failures are not fatal; Start retries them lazily
	if err := a.Orchestrator.ConfigureVendor(ctx); err != nil {
		log.Printf("Verification vendor configuration failed, continuing: %v", err)
	}

	// Webhook queue workers
	var enqueuer handlers.WebhookEnqueuer
	var workerManager *queue.WorkerManager
	if a.QueueEnabled() {
		webhookJob := jobs.NewWebhookJob(a.Processor, queue.New(a.Broker)).WithMaxRetries(cfg.Onboarding.QueueMaxRetries)
		workerManager = queue.NewWorkerManager(a.Broker)
		jobs.RegisterAllJobHandlers(workerManager, webhookJob, cfg.Onboarding.QueueWorkers)
		if err := workerManager.StartAll(ctx); err != nil {
			log.Fatalf("Failed to start queue workers: %v", err)
		}
		enqueuer = webhookJob
	} else {
		log.Println("Redis disabled, verification webhooks are processed inline")
	}

	// Missed-webhook sweeper
	sweeper := jobs.NewStaleSweeper(a.Orchestrator, cfg.Onboarding.SweepInterval, cfg.Onboarding.StaleAfter, cfg.Onboarding.SweepBatch)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("Failed to start stale onboarding sweeper: %v", err)
	}

	apiLimiter := middleware.NewRateLimiter(cfg.Security.IPRateLimit, cfg.Security.IPRateBurst)
	webhookLimiter := middleware.NewRateLimiter(cfg.Security.WebhookRateLimit, cfg.Security.WebhookRateBurst)

	router := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Signer:         utils.NewTokenSigner(cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Hour),
		Gatherer:       a.Registry,
		Webhook:        handlers.NewVerificationWebhookHandler(a.Processor, enqueuer),
		Onboarding:     handlers.NewOnboardingHandler(a.Orchestrator),
		Health:         handlers.NewHealthHandler(healthChecks(a)),
		APILimiter:     apiLimiter,
		WebhookLimiter: webhookLimiter,
	})

	srv := startServer(router, cfg.Server)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	sweeper.Stop()
	if workerManager != nil {
		workerManager.StopAll()
	}
	apiLimiter.Stop()
	webhookLimiter.Stop()
	cancel()

	log.Println("Server exiting")
}

func healthChecks(a *app.App) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if a.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Port)
	return srv
}
