// Package config loads the service configuration from the environment.
// A .env file is honoured in development.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backends selectable through STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Strategies selectable through SEQ_STRATEGY.
const (
	SeqRedis = "redis"
	SeqLock  = "lock"
)

// Config holds all configuration for the service.
type Config struct {
	Env      string `mapstructure:"env"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`

	StoreBackend string `mapstructure:"store_backend"`
	SeqStrategy  string `mapstructure:"seq_strategy"`

	DatabaseDSN   string `mapstructure:"database_dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	NatsURL      string   `mapstructure:"nats_url"`

	MaxGroupSize          int      `mapstructure:"chat_max_group_size"`
	PurgeMessagesOnDelete bool     `mapstructure:"chat_purge_messages_on_delete"`
	DefaultLocale         string   `mapstructure:"chat_default_locale"`
	WSRateLimit           float64  `mapstructure:"chat_ws_rate_limit"`
	WSRateBurst           int      `mapstructure:"chat_ws_rate_burst"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from the environment (and .env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	// Unmarshal only sees keys viper already knows about.
	for _, key := range []string{"database_dsn", "mongo_uri", "redis_password", "jwt_secret", "nats_url"} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.SeqStrategy = strings.ToLower(cfg.SeqStrategy)
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.AllowedOrigins = compact(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store_backend", BackendPostgres)
	v.SetDefault("seq_strategy", SeqRedis)
	v.SetDefault("mongo_database", "chat")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("jwt_issuer", "munglog")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "chat.message.sent")
	v.SetDefault("chat_max_group_size", DefaultMaxGroupSize)
	v.SetDefault("chat_purge_messages_on_delete", true)
	v.SetDefault("chat_default_locale", "en")
	v.SetDefault("chat_ws_rate_limit", DefaultWSRate)
	v.SetDefault("chat_ws_rate_burst", DefaultWSBurst)
	v.SetDefault("allowed_origins", "*")
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the %s backend", c.StoreBackend)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the %s backend", c.StoreBackend)
		}
		if c.DatabaseDSN == "" {
			// rooms and memberships stay relational
			return fmt.Errorf("DATABASE_DSN is required for the %s backend", c.StoreBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.SeqStrategy {
	case SeqRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s sequence strategy", c.SeqStrategy)
		}
	case SeqLock:
	default:
		return fmt.Errorf("unknown SEQ_STRATEGY %q", c.SeqStrategy)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxGroupSize < 2 {
		return fmt.Errorf("CHAT_MAX_GROUP_SIZE must be at least 2, got %d", c.MaxGroupSize)
	}
	if c.WSRateLimit <= 0 || c.WSRateBurst <= 0 {
		return fmt.Errorf("CHAT_WS_RATE_LIMIT and CHAT_WS_RATE_BURST must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesRedis reports whether a Redis connection is configured. The fan-out
// relay uses it whenever it is present.
func (c *Config) UsesRedis() bool {
	return c.RedisAddr != ""
}

func compact(list []string) []string {
	var out []string
	for _, entry := range list {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
