package config_test

import (
	"testing"

	"shelterchat/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SEQ_STRATEGY", "lock")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, config.BackendMemory, cfg.StoreBackend)
	assert.Equal(t, config.SeqLock, cfg.SeqStrategy)
	assert.Equal(t, config.DefaultMaxGroupSize, cfg.MaxGroupSize)
	assert.True(t, cfg.PurgeMessagesOnDelete)
	assert.Equal(t, "chat.message.sent", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.UsesRedis())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "POSTGRES")
	t.Setenv("DATABASE_DSN", "host=db user=chat dbname=chat")
	t.Setenv("SEQ_STRATEGY", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CHAT_MAX_GROUP_SIZE", "10")
	t.Setenv("CHAT_PURGE_MESSAGES_ON_DELETE", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "host=db user=chat dbname=chat", cfg.DatabaseDSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.MaxGroupSize)
	assert.False(t, cfg.PurgeMessagesOnDelete)
	assert.True(t, cfg.UsesRedis())
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			StoreBackend: config.BackendMemory,
			SeqStrategy:  config.SeqLock,
			JWTSecret:    "x",
			MaxGroupSize: 50,
			WSRateLimit:  20,
			WSRateBurst:  40,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		ok     bool
	}{
		{"valid memory", func(c *config.Config) {}, true},
		{"postgres without dsn", func(c *config.Config) { c.StoreBackend = config.BackendPostgres }, false},
		{"mongo without uri", func(c *config.Config) { c.StoreBackend = config.BackendMongo; c.DatabaseDSN = "dsn" }, false},
		{"unknown backend", func(c *config.Config) { c.StoreBackend = "cassandra" }, false},
		{"redis strategy without addr", func(c *config.Config) { c.SeqStrategy = config.SeqRedis }, false},
		{"missing secret", func(c *config.Config) { c.JWTSecret = "" }, false},
		{"group cap too small", func(c *config.Config) { c.MaxGroupSize = 1 }, false},
		{"zero rate", func(c *config.Config) { c.WSRateLimit = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
