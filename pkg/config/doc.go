// Package config loads Beacon configuration from an optional YAML file and
// environment variables.
//
// # Overview
//
// Values start from Default(), are overlaid by the YAML file named in
// BEACON_CONFIG_FILE, then by BEACON_* environment variables, and are
// validated last.
//
// # Configuration Structure
//
// Server settings:
//
//	BEACON_HOST="0.0.0.0"
//	BEACON_PORT="9999"
//	BEACON_HEALTH_PORT="9090"
//	BEACON_READ_TIMEOUT="15s"
//	BEACON_CORS_ORIGINS="https://dashboard.example.com"
//	BEACON_MAX_BODY_BYTES="1048576"
//
// Storage settings:
//
//	BEACON_STORAGE_TYPE="postgres"  # memory, filesystem, postgres, sqlite
//	BEACON_FILESYSTEM_ROOT="/var/lib/beacon"
//	BEACON_POSTGRES_URL="postgres://localhost/beacon?sslmode=disable"
//	BEACON_SQLITE_PATH="beacon.db"
//
// Report cache settings:
//
//	BEACON_CACHE_ENABLED="true"
//	BEACON_CACHE_BACKEND="redis"  # memory, redis
//	BEACON_CACHE_TTL="1m"
//	BEACON_REDIS_URL="redis://localhost:6379/0"
//
// Observability settings:
//
//	BEACON_LOG_LEVEL="info"  # debug, info, warn, error
//	BEACON_ENVIRONMENT="development"  # forces debug logging
//	BEACON_OTEL_ENABLED="true"
//	BEACON_OTEL_ENDPOINT="otel-collector:4317"
//
// Anomaly monitor settings:
//
//	BEACON_ANOMALY_FAILURE_RATE_THRESHOLD="0.3"
//	BEACON_ANOMALY_MIN_INSTALLS="5"
//	BEACON_MONITOR_SCHEDULE="*/15 * * * *"
//	BEACON_WEBHOOK_URLS="https://hooks.example.com/a,https://hooks.example.com/b"
//	BEACON_WEBHOOK_SECRET="s3cret"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s, storage %s\n", cfg.Server.Addr(), cfg.Storage.Type)
package config
