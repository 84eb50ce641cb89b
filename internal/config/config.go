package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the engine's runtime configuration, loaded from the environment
type Config struct {
	// Logging level ( debug | info | warn | error )
	LogLevel string

	// Port for the observability HTTP API
	APIPort int

	// Audit trail backend ( postgres | sqlite | memory )
	StorageBackend string
	DatabaseURL    string
	SQLitePath     string

	// Ledger deposit bounds ( 0 disables a bound )
	MinDeposit int64
	MaxDeposit int64

	// Unit price bounds accepted at submission
	MinUnitPrice int64
	MaxUnitPrice int64

	// Queue configuration
	MaxQueueSize int
	QueueTimeout time.Duration

	// Execution throttle and batching
	MinExecutionInterval time.Duration
	MaxBatchSize         int
	ExecutionTimeout     time.Duration

	// Fee split in basis points plus the fee-collecting accounts
	OrchestratorFeeBps  uint32
	PlatformFeeBps      uint32
	ProviderFeeBps      uint32
	OrchestratorAccount string
	PlatformAccount     string
	ProviderAccount     string

	// Background loops
	CleanupInterval time.Duration
	DrainInterval   time.Duration
	WorkerCount     int

	// Retention of terminal operations in memory
	RetentionWindow time.Duration

	// Coarse executions-per-second estimate for wait hints
	ThroughputEstimate float64
}

// Load returns the configuration from environment variables with local-run
// defaults
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		APIPort:  getEnvAsInt("API_PORT", 8080),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "txengine.db"),

		MinDeposit: getEnvAsInt64("MIN_DEPOSIT", 1),
		MaxDeposit: getEnvAsInt64("MAX_DEPOSIT", 0),

		MinUnitPrice: getEnvAsInt64("MIN_UNIT_PRICE", 1),
		MaxUnitPrice: getEnvAsInt64("MAX_UNIT_PRICE", 1_000_000),

		MaxQueueSize: getEnvAsInt("MAX_QUEUE_SIZE", 1000),
		QueueTimeout: getEnvAsDuration("QUEUE_TIMEOUT", time.Minute),

		MinExecutionInterval: getEnvAsDuration("MIN_EXECUTION_INTERVAL", 0),
		MaxBatchSize:         getEnvAsInt("MAX_BATCH_SIZE", 50),
		ExecutionTimeout:     getEnvAsDuration("EXECUTION_TIMEOUT", 30*time.Second),

		OrchestratorFeeBps:  uint32(getEnvAsInt("ORCHESTRATOR_FEE_BPS", 0)),
		PlatformFeeBps:      uint32(getEnvAsInt("PLATFORM_FEE_BPS", 250)),
		ProviderFeeBps:      uint32(getEnvAsInt("PROVIDER_FEE_BPS", 0)),
		OrchestratorAccount: getEnv("ORCHESTRATOR_ACCOUNT", ""),
		PlatformAccount:     getEnv("PLATFORM_ACCOUNT", "platform-fees"),
		ProviderAccount:     getEnv("PROVIDER_ACCOUNT", "provider-fees"),

		CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Second),
		DrainInterval:   getEnvAsDuration("DRAIN_INTERVAL", 100*time.Millisecond),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 4),

		RetentionWindow: getEnvAsDuration("RETENTION_WINDOW", time.Hour),

		ThroughputEstimate: getEnvAsFloat("THROUGHPUT_ESTIMATE", 10),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be positive")
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("QUEUE_TIMEOUT must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.OrchestratorFeeBps+c.PlatformFeeBps+c.ProviderFeeBps > 10000 {
		return fmt.Errorf("fee shares exceed 10000 bps")
	}
	if c.PlatformAccount == "" || c.ProviderAccount == "" {
		return fmt.Errorf("PLATFORM_ACCOUNT and PROVIDER_ACCOUNT are required")
	}
	return nil
}

// Helper: get string from env
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get int64 from env
func getEnvAsInt64(key string, defaultVal int64) int64 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get float from env
func getEnvAsFloat(key string, defaultVal float64) float64 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get duration from env ( Go duration syntax, e.g. "500ms", "1m" )
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
