package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StorePostgres, cfg.Database.Driver)
	assert.Equal(t, TransportKafka, cfg.Kafka.Transport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Business.IdempotencyLockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Redis.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("EVENT_TRANSPORT", "inprocess")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("IDEMPOTENCY_LOCK_SECONDS", "30")
	t.Setenv("TRACING_ENABLED", "not-a-bool")

	cfg := Load()
	assert.Equal(t, StoreMemory, cfg.Database.Driver)
	assert.Equal(t, TransportInProcess, cfg.Kafka.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Business.IdempotencyLockTTL)
	assert.True(t, cfg.Observ.TracingEnabled)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown store", func(c *Config) { c.Database.Driver = "sqlite" }, "STORE_DRIVER"},
		{"unknown transport", func(c *Config) { c.Kafka.Transport = "nats" }, "EVENT_TRANSPORT"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Brokers = nil }, "KAFKA_BROKERS"},
		{"no workers", func(c *Config) { c.Business.EventWorkers = 0 }, "EVENT_WORKERS"},
		{"production default secret", func(c *Config) { c.Server.Env = "production" }, "JWT_SECRET"},
		{"production memory store", func(c *Config) {
			c.Server.Env = "production"
			c.Auth.JWTSecret = "s3cret"
			c.Database.Driver = StoreMemory
		}, "memory store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
