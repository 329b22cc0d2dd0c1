package domain

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the complete Shrike configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier determines feature availability.
	Tier Tier `json:"tier" env:"SHRIKE_TIER" env-default:"community"`

	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Scoring    ScoringConfig    `json:"scoring"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" env:"SHRIKE_HOST" env-default:"0.0.0.0"`
	Port         int    `json:"port" env:"SHRIKE_PORT" env-default:"8080"`
	ReadTimeout  int    `json:"readTimeout" env:"SHRIKE_READ_TIMEOUT" env-default:"30"`   // seconds
	WriteTimeout int    `json:"writeTimeout" env:"SHRIKE_WRITE_TIMEOUT" env-default:"30"` // seconds
}

// ScoringConfig holds the scoring thresholds. It is immutable after
// construction: the rule engine copies it at construction time and never
// reads global state per request. Monetary limits are whole currency units.
type ScoringConfig struct {
	VelocityWindow          time.Duration `json:"velocityWindow" env:"SHRIKE_VELOCITY_WINDOW" env-default:"5m"`
	VelocityThresholdMedium int64         `json:"velocityThresholdMedium" env:"SHRIKE_VELOCITY_THRESHOLD_MEDIUM" env-default:"3"`
	VelocityThresholdHigh   int64         `json:"velocityThresholdHigh" env:"SHRIKE_VELOCITY_THRESHOLD_HIGH" env-default:"6"`
	VelocityRiskMedium      int           `json:"velocityRiskMedium" env:"SHRIKE_VELOCITY_RISK_MEDIUM" env-default:"40"`
	VelocityRiskHigh        int           `json:"velocityRiskHigh" env:"SHRIKE_VELOCITY_RISK_HIGH" env-default:"80"`
	DailyLimitMedium        int64         `json:"dailyLimitMedium" env:"SHRIKE_DAILY_LIMIT_MEDIUM" env-default:"1000000"`
	DailyLimitHigh          int64         `json:"dailyLimitHigh" env:"SHRIKE_DAILY_LIMIT_HIGH" env-default:"2000000"`
	DailyLimitRiskMedium    int           `json:"dailyLimitRiskMedium" env:"SHRIKE_DAILY_LIMIT_RISK_MEDIUM" env-default:"30"`
	DailyLimitRiskHigh      int           `json:"dailyLimitRiskHigh" env:"SHRIKE_DAILY_LIMIT_RISK_HIGH" env-default:"70"`
	ReviewThreshold         int           `json:"reviewThreshold" env:"SHRIKE_REVIEW_THRESHOLD" env-default:"50"`
	DeclineThreshold        int           `json:"declineThreshold" env:"SHRIKE_DECLINE_THRESHOLD" env-default:"80"`
}

// Validate checks threshold sanity. Called once at startup so that
// misconfiguration fails fast instead of per-request.
func (c ScoringConfig) Validate() error {
	if c.VelocityWindow <= 0 {
		return fmt.Errorf("velocity window must be positive, got %s", c.VelocityWindow)
	}
	if c.VelocityThresholdMedium < 0 || c.VelocityThresholdHigh <= c.VelocityThresholdMedium {
		return fmt.Errorf("velocity thresholds must satisfy 0 <= medium < high, got %d/%d",
			c.VelocityThresholdMedium, c.VelocityThresholdHigh)
	}
	if c.DailyLimitMedium <= 0 || c.DailyLimitHigh <= c.DailyLimitMedium {
		return fmt.Errorf("daily limits must satisfy 0 < medium < high, got %d/%d",
			c.DailyLimitMedium, c.DailyLimitHigh)
	}
	if c.VelocityRiskMedium < 0 || c.VelocityRiskHigh < 0 || c.DailyLimitRiskMedium < 0 || c.DailyLimitRiskHigh < 0 {
		return fmt.Errorf("risk increments must be non-negative")
	}
	if c.ReviewThreshold <= 0 || c.DeclineThreshold <= c.ReviewThreshold {
		return fmt.Errorf("decision thresholds must satisfy 0 < review < decline, got %d/%d",
			c.ReviewThreshold, c.DeclineThreshold)
	}
	return nil
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres".
	Driver string `json:"driver" env:"SHRIKE_DB_DRIVER" env-default:"sqlite"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" env:"SHRIKE_SQLITE_PATH" env-default:"./shrike.db"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" env:"SHRIKE_PG_HOST" env-default:"localhost"`
	PostgresPort     int    `json:"postgresPort" env:"SHRIKE_PG_PORT" env-default:"5432"`
	PostgresUser     string `json:"postgresUser" env:"SHRIKE_PG_USER"`
	PostgresPassword string `json:"postgresPassword" env:"SHRIKE_PG_PASSWORD"`
	PostgresDB       string `json:"postgresDb" env:"SHRIKE_PG_DB" env-default:"shrike"`
	PostgresSSLMode  string `json:"postgresSslMode" env:"SHRIKE_PG_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" env:"SHRIKE_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"maxIdleConns" env:"SHRIKE_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" env:"SHRIKE_DB_CONN_MAX_LIFETIME"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis".
	Type string `json:"type" env:"SHRIKE_CACHE_TYPE" env-default:"memory"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" env:"SHRIKE_CACHE_LOCAL_MAX_SIZE" env-default:"10000"`
	LocalTTL     time.Duration `json:"localTtl" env:"SHRIKE_CACHE_LOCAL_TTL" env-default:"5m"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" env:"SHRIKE_REDIS_ADDR"`
	RedisPassword string `json:"redisPassword" env:"SHRIKE_REDIS_PASSWORD"`
	RedisDB       int    `json:"redisDb" env:"SHRIKE_REDIS_DB"`

	// Two-phase settings: check local first, then Redis.
	EnableTwoPhase bool `json:"enableTwoPhase" env:"SHRIKE_CACHE_TWO_PHASE"`
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats".
	Type string `json:"type" env:"SHRIKE_BUS_TYPE" env-default:"channel"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" env:"SHRIKE_BUS_BUFFER" env-default:"1000"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" env:"SHRIKE_NATS_URL"`
	NATSToken         string `json:"natsToken" env:"SHRIKE_NATS_TOKEN"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" env:"SHRIKE_NATS_MAX_RECONNECTS" env-default:"10"`
	NATSReconnectWait int    `json:"natsReconnectWait" env:"SHRIKE_NATS_RECONNECT_WAIT" env-default:"5"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"SHRIKE_LOG_LEVEL" env-default:"info"`
	Format string `json:"format" env:"SHRIKE_LOG_FORMAT" env-default:"json"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" env:"SHRIKE_TRACING_ENABLED"`
	ServiceName string `json:"serviceName" env:"SHRIKE_TRACING_SERVICE" env-default:"shrike"`
	Endpoint    string `json:"endpoint" env:"SHRIKE_TRACING_ENDPOINT"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels.
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns the Community tier defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		// env-default tags make ReadEnv infallible on a zero environment
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// LoadConfig reads configuration from the environment on top of the
// defaults and switches component defaults when the Pro tier is selected.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.Tier == TierPro {
		if cfg.Repository.Driver == "sqlite" {
			cfg.Repository.Driver = "postgres"
		}
		if cfg.Cache.Type == "memory" {
			cfg.Cache.Type = "redis"
			cfg.Cache.EnableTwoPhase = true
			cfg.Cache.LocalMaxSize = 1000
		}
		if cfg.EventBus.Type == "channel" {
			cfg.EventBus.Type = "nats"
		}
		cfg.Tracing.Enabled = true
	}

	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}

	return cfg, nil
}
