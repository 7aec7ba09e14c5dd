// Package app wires the onboarding engine from configuration. The HTTP
// server and the operator CLI share it.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/revaspay/onboarding/internal/config"
	"github.com/revaspay/onboarding/internal/database"
	"github.com/revaspay/onboarding/internal/lock"
	"github.com/revaspay/onboarding/internal/metrics"
	"github.com/revaspay/onboarding/internal/queue"
	"github.com/revaspay/onboarding/internal/services/kyc/regtank"
	"github.com/revaspay/onboarding/internal/services/onboarding"
	"github.com/revaspay/onboarding/internal/utils"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// App holds the constructed collaborators
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Records  onboarding.RecordStore
	Orgs     onboarding.OrganizationStore
	Mappings onboarding.MappingStore
	Audit    onboarding.AuditSink
	Locker   onboarding.Locker
	// Broker is nil when Redis is disabled
	Broker queue.Broker

	Vendor       *regtank.Client
	Graph        *onboarding.IdentityMappingGraph
	Processor    *onboarding.Processor
	Orchestrator *onboarding.Orchestrator

	// Memory is set when running on the in-memory store
	Memory *onboarding.MemoryStore
}

// New connects to the configured backends and builds the engine
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if err := a.initStores(cfg); err != nil {
		return nil, err
	}
	if err := a.initRedis(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	a.Vendor = regtank.NewClient(regtank.Config{
		BaseURL:           cfg.Regtank.BaseURL,
		TokenURL:          cfg.Regtank.TokenURL,
		ClientID:          cfg.Regtank.ClientID,
		ClientSecret:      cfg.Regtank.ClientSecret,
		Timeout:           cfg.Onboarding.VendorTimeout,
		RequestsPerSecond: cfg.Regtank.RequestsPerSecond,
		Burst:             cfg.Regtank.Burst,
	}, regtank.WithObserver(a.Metrics.ObserveVendorCall))

	a.Graph = onboarding.NewIdentityMappingGraph(a.Mappings)
	applier := onboarding.NewEffectApplier(a.Orgs, a.Audit, a.Graph)
	a.Processor = onboarding.NewProcessor(a.Records, onboarding.NewCorrelator(a.Records, a.Mappings), applier, a.Graph, a.Locker, a.Metrics)
	a.Orchestrator = onboarding.NewOrchestrator(onboarding.Deps{
		Records:   a.Records,
		Orgs:      a.Orgs,
		Graph:     a.Graph,
		Processor: a.Processor,
		Vendor:    a.Vendor,
		Audit:     a.Audit,
		Locker:    a.Locker,
		Metrics:   a.Metrics,
	}, onboarding.OrchestratorConfig{
		VendorTimeout:      cfg.Onboarding.VendorTimeout,
		LinkTTL:            cfg.Onboarding.LinkTTL,
		WebhookURL:         cfg.Onboarding.WebhookBaseURL,
		LivenessConfidence: cfg.Onboarding.LivenessConfidence,
		ApprovalMode:       cfg.Onboarding.ApprovalMode,
		SyncConcurrency:    cfg.Onboarding.SyncConcurrency,
	})
	return a, nil
}

func (a *App) initStores(cfg *config.Config) error {
	switch strings.ToLower(cfg.Server.Store) {
	case StoreMemory:
		log.Println("Using in-memory onboarding store; data is lost on restart")
		a.Memory = onboarding.NewMemoryStore()
		a.Records, a.Orgs, a.Mappings, a.Audit = a.Memory, a.Memory, a.Memory, a.Memory
		return nil
	case StorePostgres, "":
		db, err := database.InitDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.DB = db
		stores := database.NewStores(db)
		a.Records, a.Orgs, a.Mappings = stores.Records, stores.Orgs, stores.Mappings
		a.Audit = utils.NewAuditLogger(db)
		return nil
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Server.Store)
	}
}

// initRedis sets up the distributed lock and job broker. Without Redis the
// process uses an in-process lock and no broker, suitable for one replica.
func (a *App) initRedis(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled {
		a.Locker = lock.NewLocal()
		return nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	a.Redis = client
	a.Locker = lock.NewRedis(client, cfg.Onboarding.LockTTL)
	a.Broker = queue.NewRedisBroker(client)
	return nil
}

// QueueEnabled reports whether webhooks are handed to queue workers
func (a *App) QueueEnabled() bool {
	return a.Broker != nil
}

// Close releases connections
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("Failed to close Redis client: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Printf("Failed to close database: %v", err)
			}
		}
	}
}
