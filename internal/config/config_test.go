package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/container-inventory/internal/core/domain"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, LockLocal, cfg.Lock.Mode)
	assert.Equal(t, 10*time.Second, cfg.Lock.TTL)
	assert.Equal(t, domain.DefaultBatchLimits(), cfg.Batch)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("STORE_BACKEND", "MySQL")
	v.Set("LOCK_MODE", "redis")
	v.Set("LOCK_TTL", "3s")
	v.Set("TX_ITEM_CEILING", 100)
	v.Set("TRANSITION_BATCH_SIZE", 99)
	v.Set("MOVE_BATCH_SIZE", 98)

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, BackendMySQL, cfg.Store.Backend)
	assert.Equal(t, LockRedis, cfg.Lock.Mode)
	assert.Equal(t, 3*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 100, cfg.Batch.TransactionItemCeiling)
	assert.Equal(t, 99, cfg.Batch.TransitionBatchSize)
	assert.Equal(t, 98, cfg.Batch.MoveBatchSize)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown backend", "STORE_BACKEND", "dynamo"},
		{"unknown lock mode", "LOCK_MODE", "zookeeper"},
		{"transition batch leaves no room for capacity", "TRANSITION_BATCH_SIZE", domain.DefaultTransactionItemCeiling},
		{"move batch leaves no room for two capacities", "MOVE_BATCH_SIZE", domain.DefaultTransactionItemCeiling - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}
