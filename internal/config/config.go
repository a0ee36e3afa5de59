package config

// Config holds all application configuration loaded from environment
// variables, parsed with github.com/caarlos0/env.
type Config struct {
	// Server configuration
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"playback-trigger-engine"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Scenario configuration
	ScenarioPath string `env:"SCENARIO_PATH" envDefault:"config/scenarios.yaml"`

	// StrictVersioning keys persisted state on the scenario's modification
	// timestamp alone; when disabled the loader also folds the throttle
	// settings into the version stamp, so editing them resets counters.
	StrictVersioning bool `env:"SCENARIO_STRICT_VERSIONING" envDefault:"true"`

	// Store configuration. Backend "memory" runs without Redis, losing
	// durability across restarts.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`

	// Redis configuration
	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`

	// Telemetry configuration
	OtelEnabled    bool   `env:"OTEL_ENABLED" envDefault:"true"`
	ZipkinEndpoint string `env:"ZIPKIN_ENDPOINT" envDefault:"http://localhost:9411/api/v2/spans"`
}
