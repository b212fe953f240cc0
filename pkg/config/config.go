package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/cache"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/webhooks"
)

// ConfigFileEnv names the variable pointing at an optional YAML file
const ConfigFileEnv = "BEACON_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig          `yaml:"server"`
	Storage       storage.Config        `yaml:"storage"`
	Cache         cache.Config          `yaml:"cache"`
	Observability ObservabilityConfig   `yaml:"observability"`
	Anomaly       analytics.AlertConfig `yaml:"anomaly"`
	Monitor       MonitorConfig         `yaml:"monitor"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Ingest rate limiting; the redis backend shares the cache's Redis
	RateLimit middleware.RateLimitConfig `yaml:"rate_limit"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// Addr returns the API listen address
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// HealthAddr returns the health and metrics listen address
func (c ServerConfig) HealthAddr() string {
	return c.Host + ":" + c.HealthPort
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string                   `yaml:"log_level"`
	LogFormat      string                   `yaml:"log_format"` // "json" or "text"
	Environment    string                   `yaml:"environment"`
	MetricsEnabled bool                     `yaml:"metrics_enabled"`
	OTel           observability.OTelConfig `yaml:"otel"`
}

// Level returns the parsed log level
func (c ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(c.LogLevel)
}

// MonitorConfig configures the scheduled anomaly monitor
type MonitorConfig struct {
	Schedule   string          `yaml:"schedule"`
	RunOnStart bool            `yaml:"run_on_start"`
	Timeout    time.Duration   `yaml:"timeout"`
	Webhooks   webhooks.Config `yaml:"webhooks"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "9999",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateLimit:       middleware.DefaultRateLimitConfig(),
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Cache:   cache.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			Environment:    "production",
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "beacon",
				ServiceVersion: "1.0.0",
				Insecure:       true,
				SampleRatio:    1.0,
			},
		},
		Anomaly: analytics.DefaultAlertConfig(),
		Monitor: MonitorConfig{
			Schedule: "*/15 * * * *",
			Timeout:  2 * time.Minute,
			Webhooks: webhooks.DefaultConfig(),
		},
	}
}

// LoadConfig loads configuration from the file named by BEACON_CONFIG_FILE
// (if any) and environment variables
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load builds configuration from defaults, then the YAML file at path (if
// non-empty), then environment variables, and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays YAML values onto cfg
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server = loadServerConfig(c.Server)
	c.Storage = loadStorageConfig(c.Storage)
	c.Cache = loadCacheConfig(c.Cache)
	c.Observability = loadObservabilityConfig(c.Observability)
	c.Anomaly = loadAnomalyConfig(c.Anomaly)
	c.Monitor = loadMonitorConfig(c.Monitor)
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(cfg ServerConfig) ServerConfig {
	cfg.Host = getEnv("BEACON_HOST", cfg.Host)
	cfg.Port = getEnv("BEACON_PORT", cfg.Port)
	cfg.ReadTimeout = getEnvDuration("BEACON_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvDuration("BEACON_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = getEnvDuration("BEACON_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ShutdownTimeout = getEnvDuration("BEACON_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.HealthPort = getEnv("BEACON_HEALTH_PORT", cfg.HealthPort)
	cfg.MaxBodyBytes = getEnvInt64("BEACON_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.CORSOrigins = getEnvList("BEACON_CORS_ORIGINS", cfg.CORSOrigins)

	cfg.RateLimit.Enabled = getEnvBool("BEACON_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Backend = getEnv("BEACON_RATE_LIMIT_BACKEND", cfg.RateLimit.Backend)
	cfg.RateLimit.RequestsPerWindow = getEnvInt("BEACON_RATE_LIMIT_REQUESTS", cfg.RateLimit.RequestsPerWindow)
	cfg.RateLimit.WindowDuration = getEnvDuration("BEACON_RATE_LIMIT_WINDOW", cfg.RateLimit.WindowDuration)
	cfg.RateLimit.BurstSize = getEnvInt("BEACON_RATE_LIMIT_BURST", cfg.RateLimit.BurstSize)
	return cfg
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig(cfg storage.Config) storage.Config {
	cfg.Type = getEnv("BEACON_STORAGE_TYPE", cfg.Type)

	// Filesystem config
	cfg.FilesystemRoot = getEnv("BEACON_FILESYSTEM_ROOT", cfg.FilesystemRoot)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("BEACON_POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresReplicaURLs = getEnv("BEACON_POSTGRES_REPLICA_URLS", cfg.PostgresReplicaURLs)
	if maxConns := getEnvInt("BEACON_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("BEACON_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("BEACON_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// SQLite config
	cfg.SQLitePath = getEnv("BEACON_SQLITE_PATH", cfg.SQLitePath)

	return cfg
}

// loadCacheConfig loads report cache configuration from environment
func loadCacheConfig(cfg cache.Config) cache.Config {
	cfg.Enabled = getEnvBool("BEACON_CACHE_ENABLED", cfg.Enabled)
	cfg.Backend = getEnv("BEACON_CACHE_BACKEND", cfg.Backend)
	cfg.TTL = getEnvDuration("BEACON_CACHE_TTL", cfg.TTL)
	if size := getEnvInt("BEACON_CACHE_SIZE", 0); size > 0 {
		cfg.Size = size
	}

	// Redis config
	cfg.RedisURL = getEnv("BEACON_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("BEACON_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("BEACON_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("BEACON_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("BEACON_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	cfg.KeyPrefix = getEnv("BEACON_CACHE_KEY_PREFIX", cfg.KeyPrefix)

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig(cfg ObservabilityConfig) ObservabilityConfig {
	cfg.LogLevel = getEnv("BEACON_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("BEACON_LOG_FORMAT", cfg.LogFormat)
	cfg.Environment = getEnv("BEACON_ENVIRONMENT", cfg.Environment)
	cfg.MetricsEnabled = getEnvBool("BEACON_METRICS_ENABLED", cfg.MetricsEnabled)

	// Development always logs at debug
	if strings.EqualFold(cfg.Environment, "development") {
		cfg.LogLevel = "debug"
	}

	cfg.OTel.Enabled = getEnvBool("BEACON_OTEL_ENABLED", cfg.OTel.Enabled)
	cfg.OTel.Endpoint = getEnv("BEACON_OTEL_ENDPOINT", cfg.OTel.Endpoint)
	cfg.OTel.ServiceName = getEnv("BEACON_OTEL_SERVICE_NAME", cfg.OTel.ServiceName)
	cfg.OTel.ServiceVersion = getEnv("BEACON_OTEL_SERVICE_VERSION", cfg.OTel.ServiceVersion)
	cfg.OTel.Insecure = getEnvBool("BEACON_OTEL_INSECURE", cfg.OTel.Insecure)
	cfg.OTel.SampleRatio = getEnvFloat("BEACON_OTEL_SAMPLE_RATIO", cfg.OTel.SampleRatio)

	return cfg
}

// loadAnomalyConfig loads anomaly detection thresholds from environment
func loadAnomalyConfig(cfg analytics.AlertConfig) analytics.AlertConfig {
	cfg.Window = getEnvDuration("BEACON_ANOMALY_WINDOW", cfg.Window)
	cfg.FailureRateThreshold = getEnvFloat("BEACON_ANOMALY_FAILURE_RATE_THRESHOLD", cfg.FailureRateThreshold)
	cfg.MinInstalls = getEnvInt64("BEACON_ANOMALY_MIN_INSTALLS", cfg.MinInstalls)
	return cfg
}

// loadMonitorConfig loads the monitor schedule and webhook endpoints.
// BEACON_WEBHOOK_URLS adds endpoints after any defined in the config file;
// the shared secret and format apply to those added endpoints.
func loadMonitorConfig(cfg MonitorConfig) MonitorConfig {
	cfg.Schedule = getEnv("BEACON_MONITOR_SCHEDULE", cfg.Schedule)
	cfg.RunOnStart = getEnvBool("BEACON_MONITOR_RUN_ON_START", cfg.RunOnStart)
	cfg.Timeout = getEnvDuration("BEACON_MONITOR_TIMEOUT", cfg.Timeout)

	wh := &cfg.Webhooks
	wh.Timeout = getEnvDuration("BEACON_WEBHOOK_TIMEOUT", wh.Timeout)
	wh.Concurrency = getEnvInt("BEACON_WEBHOOK_CONCURRENCY", wh.Concurrency)
	wh.Retry.MaxAttempts = getEnvInt("BEACON_WEBHOOK_MAX_ATTEMPTS", wh.Retry.MaxAttempts)

	secret := getEnv("BEACON_WEBHOOK_SECRET", "")
	format := webhooks.Format(getEnv("BEACON_WEBHOOK_FORMAT", ""))
	for _, url := range getEnvList("BEACON_WEBHOOK_URLS", nil) {
		wh.Endpoints = append(wh.Endpoints, webhooks.Endpoint{
			URL:    url,
			Secret: secret,
			Format: format,
		})
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	if rl := c.Server.RateLimit; rl.Enabled {
		switch rl.Backend {
		case "memory":
		case "redis":
			if c.Cache.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis rate limit backend")
			}
		default:
			return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", rl.Backend)
		}
		if rl.RequestsPerWindow <= 0 || rl.WindowDuration <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, filesystem, postgres, or sqlite)", c.Storage.Type)
	}

	// Validate cache config
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory":
		case "redis":
			if c.Cache.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis cache backend")
			}
		default:
			return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache TTL must be positive")
		}
	}

	// Validate log format
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	// Validate anomaly thresholds
	if c.Anomaly.Window <= 0 {
		return fmt.Errorf("anomaly window must be positive")
	}
	if t := c.Anomaly.FailureRateThreshold; t < 0 || t > 1 {
		return fmt.Errorf("anomaly failure rate threshold must be between 0 and 1")
	}
	if c.Anomaly.MinInstalls < 0 {
		return fmt.Errorf("anomaly min installs must not be negative")
	}

	// Validate monitor config
	if _, err := cron.ParseStandard(c.Monitor.Schedule); err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", c.Monitor.Schedule, err)
	}
	if err := c.Monitor.Webhooks.Validate(); err != nil {
		return err
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
