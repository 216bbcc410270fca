package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rl1809/container-inventory/internal/core/domain"
)

const (
	BackendRedis = "redis"
	BackendMySQL = "mysql"

	LockLocal = "local"
	LockRedis = "redis"
)

// Config groups the engine configuration. Values come from environment variables,
// optionally seeded from a config.env file in the working directory or ./config.
type Config struct {
	App   AppConfig
	Store StoreConfig
	Redis RedisConfig
	MySQL MySQLConfig
	Lock  LockConfig
	Batch domain.BatchLimits
}

type AppConfig struct {
	Env      string // development, staging, production
	LogLevel string
}

type StoreConfig struct {
	Backend string // redis or mysql
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LockConfig struct {
	Mode string // local or redis
	TTL  time.Duration
	// RetryInterval and RetryLimit bound how long a redis lock waits.
	RetryInterval time.Duration
	RetryLimit    int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_BACKEND", BackendRedis)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)

	v.SetDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/inventory?parseTime=true")
	v.SetDefault("MYSQL_MAX_OPEN_CONNS", 50)
	v.SetDefault("MYSQL_MAX_IDLE_CONNS", 25)
	v.SetDefault("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute)

	v.SetDefault("LOCK_MODE", LockLocal)
	v.SetDefault("LOCK_TTL", 10*time.Second)
	v.SetDefault("LOCK_RETRY_INTERVAL", 50*time.Millisecond)
	v.SetDefault("LOCK_RETRY_LIMIT", 100)

	v.SetDefault("TX_ITEM_CEILING", domain.DefaultTransactionItemCeiling)
	v.SetDefault("ADD_BATCH_SIZE", domain.DefaultAddBatchSize)
	v.SetDefault("TRANSITION_BATCH_SIZE", domain.DefaultTransitionBatchSize)
	v.SetDefault("MOVE_BATCH_SIZE", domain.DefaultMoveBatchSize)
}

// Load reads the configuration. Environment variables take precedence over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("STORE_BACKEND")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		},
		MySQL: MySQLConfig{
			DSN:             v.GetString("MYSQL_DSN"),
			MaxOpenConns:    v.GetInt("MYSQL_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("MYSQL_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("MYSQL_CONN_MAX_LIFETIME"),
		},
		Lock: LockConfig{
			Mode:          strings.ToLower(v.GetString("LOCK_MODE")),
			TTL:           v.GetDuration("LOCK_TTL"),
			RetryInterval: v.GetDuration("LOCK_RETRY_INTERVAL"),
			RetryLimit:    v.GetInt("LOCK_RETRY_LIMIT"),
		},
		Batch: domain.BatchLimits{
			TransactionItemCeiling: v.GetInt("TX_ITEM_CEILING"),
			AddBatchSize:           v.GetInt("ADD_BATCH_SIZE"),
			TransitionBatchSize:    v.GetInt("TRANSITION_BATCH_SIZE"),
			MoveBatchSize:          v.GetInt("MOVE_BATCH_SIZE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendRedis, BackendMySQL:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Lock.Mode {
	case LockLocal:
	case LockRedis:
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("lock ttl must be positive, got %s", c.Lock.TTL)
		}
	default:
		return fmt.Errorf("unknown lock mode %q", c.Lock.Mode)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch limits: %w", err)
	}
	return nil
}
