package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-engine/internal/adapters/memory"
	"github.com/kevin07696/payment-engine/internal/adapters/postgres"
	"github.com/kevin07696/payment-engine/internal/adapters/redis"
	"github.com/kevin07696/payment-engine/internal/config"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/pkg/observability"
)

type statusListener = func(ctx context.Context, orderID string, from, to domain.OrderStatus)

// stores groups the persistence ports for the selected storage driver.
type stores struct {
	tokens         ports.TokenStore
	legacy         ports.LegacyTokenStore
	customers      ports.CustomerStore
	orders         ports.OrderRepository
	subscriptions  ports.SubscriptionStore
	onStatusChange func(statusListener)
	close          func()
}

func initStores(ctx context.Context, cfg *config.Config, health *observability.HealthChecker, logger *zap.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory storage - NOT for production use!")
		tokenStore := memory.NewTokenStore()
		orders := memory.NewOrderRepository()
		return &stores{
			tokens:         tokenStore,
			legacy:         tokenStore,
			customers:      tokenStore,
			orders:         orders,
			subscriptions:  memory.NewSubscriptionStore(),
			onStatusChange: func(l statusListener) { orders.OnStatusChange(l) },
			close:          func() {},
		}, nil

	case config.DriverPostgres:
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := postgres.NewPool(dbCtx, postgres.PoolConfig{
			DatabaseURL: cfg.Database.ConnectionString(),
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		health.Register("postgres", pool.Ping)
		postgres.StartPoolMonitoring(ctx, pool, time.Minute, logger)

		tokenStore := postgres.NewTokenStore(pool)
		orders := postgres.NewOrderRepository(pool, logger)
		return &stores{
			tokens:         tokenStore,
			legacy:         tokenStore,
			customers:      tokenStore,
			orders:         orders,
			subscriptions:  postgres.NewSubscriptionStore(pool),
			onStatusChange: func(l statusListener) { orders.OnStatusChange(l) },
			close:          pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func initTokenCache(cfg *config.Config, health *observability.HealthChecker, logger *zap.Logger) (ports.TokenCache, error) {
	switch cfg.Storage.CacheDriver {
	case config.DriverMemory:
		return memory.NewTokenCache(logger, cfg.Storage.CacheSize), nil

	case config.DriverRedis:
		client := redis.NewClient(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache := redis.NewTokenCache(client, cfg.Redis.KeyPrefix, logger)
		health.Register("redis", cache.HealthCheck)
		logger.Info("Redis token cache configured", zap.String("addr", cfg.Redis.Addr))
		return cache, nil

	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Storage.CacheDriver)
	}
}
