package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read here and nowhere else.
type Config struct {
	Env string // development, staging, production

	// Quote provider (Polygon-style REST API)
	Provider ProviderConfig

	// Durable blob store for datasets, universes and gainer lists
	Store StoreConfig

	// Operator notifications
	Notify NotifyConfig

	// Database (only used when Store.Backend == "postgres")
	Database DatabaseConfig

	// Redis (optional, shared provider rate budget)
	Redis RedisConfig

	// Workflow scheduling
	Workflow WorkflowConfig

	// Status API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// ProviderConfig holds quote provider API configuration.
type ProviderConfig struct {
	APIKey            string
	BaseURL           string
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond int
}

// StoreConfig selects and configures the blob store backend.
type StoreConfig struct {
	Backend  string // s3, fs, postgres
	Bucket   string // s3 bucket name
	Region   string // aws region
	Prefix   string // key prefix for all objects
	LocalDir string // fs backend root directory
}

// NotifyConfig holds SNS notification configuration.
type NotifyConfig struct {
	Enabled  bool
	TopicARN string
	Region   string
}

// DatabaseConfig holds PostgreSQL configuration for the postgres store backend.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// WorkflowConfig holds scheduler loop settings.
type WorkflowConfig struct {
	Timezone      string // trading timezone, drives phase checkpoints
	PollInterval  time.Duration
	PhaseConfig   string // optional path to the phase YAML; defaults compiled in
	RetentionDays int    // dated snapshots older than this are pruned
}

// APIConfig holds the read-only status API settings.
type APIConfig struct {
	Enabled bool
	Port    string
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Provider: ProviderConfig{
			APIKey:            getEnv("POLYGON_API_KEY", ""),
			BaseURL:           getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),
			RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", "18s"),
			MaxRetries:        getEnvAsInt("MAX_RETRIES", 3),
			RetryDelay:        getEnvAsDuration("RETRY_DELAY", "300ms"),
			RequestsPerSecond: getEnvAsInt("PROVIDER_RPS", 80),
		},

		Store: StoreConfig{
			Backend:  getEnv("STORE_BACKEND", "s3"),
			Bucket:   getEnv("BUCKET_NAME", ""),
			Region:   getEnv("AWS_REGION", "us-east-1"),
			Prefix:   getEnv("STORE_PREFIX", "stock_data"),
			LocalDir: getEnv("STORE_LOCAL_DIR", "./data"),
		},

		Notify: NotifyConfig{
			Enabled:  getEnvAsBool("SNS_ENABLED", true),
			TopicARN: getEnv("SNS_TOPIC_ARN", ""),
			Region:   getEnv("AWS_REGION", "us-east-1"),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Workflow: WorkflowConfig{
			Timezone:      getEnv("TRADING_TIMEZONE", "America/Chicago"),
			PollInterval:  getEnvAsDuration("POLL_INTERVAL", "30s"),
			PhaseConfig:   getEnv("PHASE_CONFIG", ""),
			RetentionDays: getEnvAsInt("RETENTION_DAYS", 30),
		},

		API: APIConfig{
			Enabled: getEnvAsBool("API_ENABLED", true),
			Port:    getEnv("API_PORT", "8089"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("POLYGON_API_KEY is required")
	}

	switch c.Store.Backend {
	case "s3":
		if c.Store.Bucket == "" {
			return fmt.Errorf("BUCKET_NAME is required for the s3 store backend")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	case "fs":
		// LocalDir always has a default
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: s3, fs, postgres")
	}

	if c.Notify.Enabled && c.Notify.TopicARN == "" {
		return fmt.Errorf("SNS_TOPIC_ARN is required when SNS_ENABLED is true")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if _, err := time.LoadLocation(c.Workflow.Timezone); err != nil {
		return fmt.Errorf("invalid TRADING_TIMEZONE %q: %w", c.Workflow.Timezone, err)
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
