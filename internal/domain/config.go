package domain

import "time"

// Config holds the complete Sentinel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier" validate:"oneof=community pro"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Risk pipeline
	Assessment AssessmentConfig `json:"assessment"`
	Pipeline   PipelineConfig   `json:"pipeline"`

	// CatalogPath optionally replaces the built-in rule book with a JSON file.
	CatalogPath string `json:"catalogPath,omitempty"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port" validate:"min=1,max=65535"`
	ReadTimeout  int    `json:"readTimeout" validate:"min=1"`  // seconds
	WriteTimeout int    `json:"writeTimeout" validate:"min=1"` // seconds
}

// AssessmentConfig selects and tunes the qualitative assessment provider.
type AssessmentConfig struct {
	// Provider is "heuristic", "http" or "bus".
	Provider string `json:"provider" validate:"oneof=heuristic http bus"`

	// Timeout bounds a single assessment call.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`

	// HTTP provider settings
	Endpoint        string        `json:"endpoint" validate:"required_if=Provider http,omitempty,url"`
	APIKey          string        `json:"-"`
	MaxRetries      int           `json:"maxRetries" validate:"gte=0,lte=5"`
	BaseBackoff     time.Duration `json:"baseBackoff"`
	MaxBackoff      time.Duration `json:"maxBackoff"`
	RateLimitPerSec int           `json:"rateLimitPerSec" validate:"min=1"`
	RateBurst       int           `json:"rateBurst" validate:"min=1"`
	MaxThrottleWait time.Duration `json:"maxThrottleWait"`

	// Respond makes this process answer bus assessment requests with the
	// heuristic provider.
	Respond bool `json:"respond"`
}

// PipelineConfig tunes run bookkeeping.
type PipelineConfig struct {
	// CheckpointTTL is how long stage checkpoints stay readable.
	CheckpointTTL time.Duration `json:"checkpointTTL"`

	// Workers is the number of concurrent async consumers.
	Workers int `json:"workers" validate:"min=1"`

	// AsyncWorker consumes the ingest topic in this process.
	AsyncWorker bool `json:"asyncWorker"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=json text"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and an in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./sentinel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Assessment: AssessmentConfig{
			Provider:        "heuristic",
			Timeout:         10 * time.Second,
			MaxRetries:      2,
			BaseBackoff:     200 * time.Millisecond,
			MaxBackoff:      2 * time.Second,
			RateLimitPerSec: 20,
			RateBurst:       5,
			MaxThrottleWait: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			CheckpointTTL: time.Hour,
			Workers:       4,
			AsyncWorker:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "sentinel",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "sentinel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "sentinel",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
