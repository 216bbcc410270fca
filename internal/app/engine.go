package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/container-inventory/internal/adapter/lock"
	"github.com/rl1809/container-inventory/internal/adapter/storage"
	"github.com/rl1809/container-inventory/internal/config"
	"github.com/rl1809/container-inventory/internal/core/service"
	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

// Engine is a wired InventoryService together with the connections it owns.
type Engine struct {
	Service *service.InventoryService
	Redis   *redis.Client // nil unless the store or the locker uses redis
	DB      *sql.DB       // nil unless the store is mysql
	log     *logger.Logger
}

// Build connects the configured backends and assembles the service.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Engine, error) {
	e := &Engine{log: log.Component("engine")}

	if cfg.Store.Backend == config.BackendRedis || cfg.Lock.Mode == config.LockRedis {
		e.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := e.Redis.Ping(ctx).Err(); err != nil {
			e.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		e.log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}

	var store port.Store
	switch cfg.Store.Backend {
	case config.BackendRedis:
		store = storage.NewRedisAdapter(e.Redis, log)
	case config.BackendMySQL:
		db, err := storage.OpenMySQL(cfg.MySQL)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.DB = db
		if err := db.PingContext(ctx); err != nil {
			e.Close()
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db, log)
		if err := adapter.Migrate(ctx); err != nil {
			e.Close()
			return nil, err
		}
		e.log.Info().Msg("connected to mysql")
		store = adapter
	default:
		e.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	var locker port.Locker = lock.NewLocalLocker()
	if cfg.Lock.Mode == config.LockRedis {
		locker = lock.NewRedisLocker(e.Redis, cfg.Lock.TTL, cfg.Lock.RetryInterval, cfg.Lock.RetryLimit, log)
	}

	svc, err := service.NewInventoryService(store, locker, cfg.Batch, log)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Service = svc
	e.log.Info().
		Str("store", cfg.Store.Backend).
		Str("lock", cfg.Lock.Mode).
		Int("tx_ceiling", cfg.Batch.TransactionItemCeiling).
		Msg("inventory engine ready")
	return e, nil
}

func (e *Engine) Close() error {
	var errs []error
	if e.Redis != nil {
		errs = append(errs, e.Redis.Close())
	}
	if e.DB != nil {
		errs = append(errs, e.DB.Close())
	}
	return errors.Join(errs...)
}
