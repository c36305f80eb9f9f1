package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/retailstock/internal/adjustment"
	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/observability"
	"github.com/odyssey-erp/retailstock/internal/platform/cache"
	"github.com/odyssey-erp/retailstock/internal/platform/db"
	"github.com/odyssey-erp/retailstock/internal/procurement"
	"github.com/odyssey-erp/retailstock/internal/shared"
	"github.com/odyssey-erp/retailstock/internal/store/memory"
	"github.com/odyssey-erp/retailstock/internal/transfer"
)

// KeyStore is an idempotency store that can also purge old keys.
type KeyStore interface {
	shared.Idempotency
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Container holds the wired services shared by the API server and the worker.
type Container struct {
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Inventory   *inventory.Service
	Procurement *procurement.Service
	Adjustments *adjustment.Service
	Transfers   *transfer.Service
	Keys        KeyStore

	closers []func()
}

// Build connects the configured backends and wires every service. Without
// PG_DSN the services run on a seeded in-memory store; without REDIS_ADDR
// workflow commands run without document locks.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	c := &Container{Logger: logger, Metrics: metrics}

	var locker shared.Locker
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		c.Redis = client
		c.closers = append(c.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		locker = shared.NewRedisLocker(cache.NewLocker(client), cfg.LockTTL)
	}

	var (
		invRepo   inventory.RepositoryPort
		poRepo    procurement.RepositoryPort
		adjRepo   adjustment.RepositoryPort
		trfRepo   transfer.RepositoryPort
		audit     shared.AuditRecorder
		approvals shared.Approvals
	)
	if cfg.UsesMemoryStore() {
		logger.Warn("PG_DSN not set, using seeded in-memory store")
		store := memory.NewSeeded()
		invRepo, poRepo, adjRepo, trfRepo = store.Inventory(), store.Procurement(), store.Adjustments(), store.Transfers()
		audit = &shared.MemoryAudit{}
		approvals = &shared.MemoryApprovals{}
		c.Keys = shared.NewMemoryIdempotency()
	} else {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Pool = pool
		c.closers = append(c.closers, pool.Close)
		invRepo = inventory.NewRepository(pool)
		poRepo = procurement.NewRepository(pool)
		adjRepo = adjustment.NewRepository(pool)
		trfRepo = transfer.NewRepository(pool)
		audit = shared.NewAuditLogger(pool)
		approvals = shared.NewApprovalRecorder(pool, logger)
		c.Keys = shared.NewIdempotencyStore(pool)
	}

	var stockMetrics inventory.MetricsPort
	if metrics != nil {
		stockMetrics = metrics
	}
	c.Inventory = inventory.NewService(invRepo, audit, stockMetrics, logger)
	c.Procurement = procurement.NewService(poRepo, c.Inventory, procurement.Options{
		Approvals:   approvals,
		Audit:       audit,
		Idempotency: c.Keys,
		Locker:      locker,
		Logger:      logger,
	})
	c.Adjustments = adjustment.NewService(adjRepo, c.Inventory, adjustment.Options{
		CostFallback: cfg.AdjustmentCostFallback,
		Approvals:    approvals,
		Audit:        audit,
		Locker:       locker,
		Logger:       logger,
	})
	c.Transfers = transfer.NewService(trfRepo, c.Inventory, transfer.Options{
		Approvals:   approvals,
		Audit:       audit,
		Idempotency: c.Keys,
		Locker:      locker,
		Logger:      logger,
	})
	return c, nil
}

// Close releases backends in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
