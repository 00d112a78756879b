package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"pollwatch/internal/audit"
	auditstore "pollwatch/internal/audit/store"
	"pollwatch/internal/platform/config"
	"pollwatch/internal/platform/kafka/producer"
	"pollwatch/internal/platform/postgres"
	redisclient "pollwatch/internal/platform/redis"
	"pollwatch/internal/registry"
	"pollwatch/internal/results/service"
	resultstore "pollwatch/internal/results/store"
	httptransport "pollwatch/internal/transport/http"
	"pollwatch/pkg/platform/tx"
)

// infra holds the backing connections and the stores built on them.
type infra struct {
	db       *sql.DB
	redis    *redisclient.Client
	producer *producer.Producer

	catalog      *registry.Catalog
	seedRegistry bool
	resultStore  service.Store
	auditStore   audit.Store
	checks       map[string]httptransport.HealthCheck
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{checks: map[string]httptransport.HealthCheck{}}
	ok := false
	defer func() {
		if !ok {
			in.Close(log)
		}
	}()

	catalog, fromFile, err := loadFileOrSeed(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Store {
	case config.StoreMemory:
		in.catalog = catalog
		in.seedRegistry = !fromFile
		in.resultStore = resultstore.NewInMemoryStore()
		in.auditStore = auditstore.NewInMemoryStore(auditstore.DefaultMemoryCapacity)

	case config.StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("RESULT_STORE=postgres requires DATABASE_URL")
		}
		in.db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		in.checks["postgres"] = in.db.PingContext
		if err := in.bootstrapPostgres(ctx, catalog, fromFile, log); err != nil {
			return nil, err
		}
		in.resultStore = resultstore.NewPostgresStore(in.db)
		in.auditStore = auditstore.NewPostgresStore(in.db)

	case config.StoreRedis:
		in.redis, err = redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		if in.redis == nil {
			return nil, fmt.Errorf("RESULT_STORE=redis requires REDIS_URL")
		}
		in.checks["redis"] = in.redis.Health
		in.catalog = catalog
		in.seedRegistry = !fromFile
		in.resultStore = resultstore.NewRedisStore(in.redis.Client, resultstore.DefaultRedisKey)
		in.auditStore = auditstore.NewInMemoryStore(auditstore.DefaultMemoryCapacity)

	default:
		return nil, fmt.Errorf("unknown result store %q", cfg.Store)
	}

	if cfg.Kafka.Enabled() {
		in.producer, err = producer.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return nil, err
		}
		log.Info("notification fan-out enabled", "topic", cfg.Kafka.Topic)
	}

	ok = true
	return in, nil
}

// loadFileOrSeed returns the configured YAML registry, or the seed catalog
// when no file is set.
func loadFileOrSeed(cfg config.Server) (*registry.Catalog, bool, error) {
	if cfg.RegistryFile == "" {
		return registry.NewSeedCatalog(), false, nil
	}
	c, err := registry.LoadFile(cfg.RegistryFile)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// bootstrapPostgres applies the schema and settles the catalog in one
// transaction. A registry file always overwrites stored units; otherwise
// stored units win and an empty table is filled from the seed.
func (in *infra) bootstrapPostgres(ctx context.Context, fallback *registry.Catalog, fromFile bool, log *slog.Logger) error {
	source := registry.NewPostgresSource(in.db)
	return tx.Run(ctx, in.db, func(ctx context.Context) error {
		if err := postgres.Migrate(ctx, in.db); err != nil {
			return err
		}
		if !fromFile {
			stored, err := source.LoadCatalog(ctx, registry.SeedCandidates)
			if err != nil {
				return err
			}
			if stored.Len() > 0 {
				in.catalog = stored
				log.Info("registry loaded from postgres", "units", stored.Len())
				return nil
			}
			in.seedRegistry = true
		}
		in.catalog = fallback
		return source.Save(ctx, fallback.Units())
	})
}

// Close releases connections, flushing the Kafka producer first.
func (in *infra) Close(log *slog.Logger) {
	if in.producer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := in.producer.Close(ctx); err != nil {
			log.Warn("kafka producer close failed", "error", err)
		}
		cancel()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
