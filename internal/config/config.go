package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Environment string
	StoreDriver string
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Services    ServicesConfig
	Kafka       KafkaConfig
	WorkerPool  WorkerPoolConfig
	Engine      EngineConfig
	Tracing     TracingConfig
	Server      ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// RedisConfig holds the address shared by the job queue, the distribution
// lock and the live ranking ticker. An empty Addr disables Redis features.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	ResendAPIKey        string
	DefaultEmailSender  string
	WebAppURI           string
}

// KafkaConfig holds Kafka/event streaming configuration
type KafkaConfig struct {
	Brokers       string
	PaymentTopic  string
	EventsTopic   string
	ConsumerGroup string
}

// WorkerPoolConfig holds worker pool configuration for event processing
type WorkerPoolConfig struct {
	PaymentWorkers int
	JobConcurrency int
}

// EngineConfig holds commission engine tunables
type EngineConfig struct {
	LotteryActivationYear int
	MinPayout             decimal.Decimal
	PayoutCurrency        string
	SnapshotTopN          int
	SnapshotLookback      time.Duration
	SnapshotRetention     time.Duration
	ReconcileInterval     time.Duration
}

// TracingConfig holds Jaeger settings
type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{
		Environment: getEnvWithDefault("GO_ENV", "development"),
		StoreDriver: getEnvWithDefault("STORE_DRIVER", StoreDriverPostgres),
	}

	var err error

	// Database configuration
	if cfg.StoreDriver == StoreDriverPostgres {
		if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
			return nil, err
		}
		if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
			return nil, err
		}
		if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
			return nil, err
		}
		if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
			return nil, err
		}
	} else if cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	// Redis configuration
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getIntWithDefault("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}

	// Services configuration, all optional so the engine runs without them
	cfg.Services.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Services.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Services.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Services.DefaultEmailSender = getEnvWithDefault("DEFAULT_EMAIL_SENDER_ADDRESS", "payouts@example.com")
	cfg.Services.WebAppURI = getEnvWithDefault("WEBAPP_URI", "http://localhost:3000")

	// Kafka configuration
	cfg.Kafka.Brokers = os.Getenv("KAFKA_BROKERS")
	cfg.Kafka.PaymentTopic = getEnvWithDefault("KAFKA_PAYMENT_TOPIC", "payment-events")
	cfg.Kafka.EventsTopic = getEnvWithDefault("KAFKA_EVENTS_TOPIC", "commission-events")
	cfg.Kafka.ConsumerGroup = getEnvWithDefault("KAFKA_CONSUMER_GROUP", "commission-engine")

	// Worker pool configuration
	if cfg.WorkerPool.PaymentWorkers, err = getIntWithDefault("PAYMENT_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.WorkerPool.JobConcurrency, err = getIntWithDefault("JOB_CONCURRENCY", 5); err != nil {
		return nil, err
	}

	// Engine configuration
	if cfg.Engine.LotteryActivationYear, err = getIntWithDefault("LOTTERY_ACTIVATION_YEAR", 2026); err != nil {
		return nil, err
	}
	if cfg.Engine.MinPayout, err = decimal.NewFromString(getEnvWithDefault("MIN_PAYOUT", "10.00")); err != nil {
		return nil, fmt.Errorf("failed to parse MIN_PAYOUT: %w", err)
	}
	cfg.Engine.PayoutCurrency = getEnvWithDefault("PAYOUT_CURRENCY", "USD")
	if cfg.Engine.SnapshotTopN, err = getIntWithDefault("SNAPSHOT_TOP_N", 10); err != nil {
		return nil, err
	}
	if cfg.Engine.SnapshotLookback, err = getDurationWithDefault("SNAPSHOT_LOOKBACK", "65m"); err != nil {
		return nil, err
	}
	if cfg.Engine.SnapshotRetention, err = getDurationWithDefault("SNAPSHOT_RETENTION", "168h"); err != nil {
		return nil, err
	}
	if cfg.Engine.ReconcileInterval, err = getDurationWithDefault("RECONCILE_INTERVAL", "6h"); err != nil {
		return nil, err
	}

	// Tracing configuration
	cfg.Tracing.Endpoint = os.Getenv("JAEGER_ENDPOINT")
	cfg.Tracing.Enabled = cfg.Tracing.Endpoint != ""

	// Server configuration
	if cfg.Server.Port, err = getIntWithDefault("SERVER_PORT", 8080); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return n, nil
}

func getDurationWithDefault(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvWithDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
