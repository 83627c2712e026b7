package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "leaseforge.yaml"

// DefaultEnvFile is the dotenv file loaded before the environment overlay.
const DefaultEnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < .env < ENV.
// Both files are optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < .env < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadDotEnv populates the process environment from a dotenv file. Variables
// already present in the environment are never overwritten.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "LEASEFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "LEASEFORGE_CORS_ORIGIN")
	setDuration(&cfg.Server.ReadTimeout, "LEASEFORGE_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "LEASEFORGE_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "LEASEFORGE_SHUTDOWN_TIMEOUT")
	setInt64(&cfg.Server.MaxBodyBytes, "LEASEFORGE_MAX_BODY_BYTES")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "LEASEFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "LEASEFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "LEASEFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "LEASEFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "LEASEFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "LEASEFORGE_NATS_STREAM")

	setString(&cfg.Logging.Level, "LEASEFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "LEASEFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "LEASEFORGE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "LEASEFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "LEASEFORGE_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "LEASEFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "LEASEFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "LEASEFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "LEASEFORGE_RATE_MAX_IDLE_TIME")

	// Auth
	setBool(&cfg.Auth.Enabled, "LEASEFORGE_AUTH_ENABLED")
	setString(&cfg.Auth.JWTSecret, "LEASEFORGE_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "LEASEFORGE_JWT_ISSUER")

	// SMTP
	setString(&cfg.SMTP.Host, "LEASEFORGE_SMTP_HOST")
	setInt(&cfg.SMTP.Port, "LEASEFORGE_SMTP_PORT")
	setString(&cfg.SMTP.Username, "LEASEFORGE_SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "LEASEFORGE_SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "LEASEFORGE_SMTP_FROM")

	setString(&cfg.Slack.WebhookURL, "LEASEFORGE_SLACK_WEBHOOK_URL")

	// Cache
	setBool(&cfg.Cache.Enabled, "LEASEFORGE_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "LEASEFORGE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "LEASEFORGE_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "LEASEFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "LEASEFORGE_CACHE_L2_TTL")

	// Idempotency
	setBool(&cfg.Idempotency.Enabled, "LEASEFORGE_IDEMPOTENCY_ENABLED")
	setString(&cfg.Idempotency.Bucket, "LEASEFORGE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "LEASEFORGE_IDEMPOTENCY_TTL")

	// Expiry sweep
	setBool(&cfg.Expiry.Enabled, "LEASEFORGE_EXPIRY_ENABLED")
	setDuration(&cfg.Expiry.Interval, "LEASEFORGE_EXPIRY_INTERVAL")
	setInt(&cfg.Expiry.BatchSize, "LEASEFORGE_EXPIRY_BATCH_SIZE")
	setInt(&cfg.Expiry.Concurrency, "LEASEFORGE_EXPIRY_CONCURRENCY")

	// Blob store
	setString(&cfg.Blob.Bucket, "LEASEFORGE_BLOB_BUCKET")
	setInt64(&cfg.Blob.MaxBytes, "LEASEFORGE_BLOB_MAX_BYTES")

	// OpenTelemetry
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "LEASEFORGE_OTEL_INSECURE")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setFloat64(&cfg.OTEL.SampleRate, "LEASEFORGE_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes when auth is enabled")
	}
	if cfg.Expiry.Enabled && cfg.Expiry.Interval < time.Second {
		return errors.New("expiry.interval must be >= 1s")
	}
	if cfg.Expiry.BatchSize < 1 || cfg.Expiry.Concurrency < 1 {
		return errors.New("expiry.batch_size and expiry.concurrency must be >= 1")
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.From == "" {
		return errors.New("smtp.from is required when smtp.host is set")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be within [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
