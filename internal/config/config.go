// Package config loads the Sentinel configuration from the environment.
//
// Every setting is read from a SENTINEL_-prefixed variable, for example
// SENTINEL_SERVER_PORT or SENTINEL_ASSESSMENT_TIMEOUT. SENTINEL_TIER picks
// the base configuration ("community" or "pro") the variables overlay.
// SENTINEL_CONFIG_FILE may point at a YAML, JSON or TOML file using the
// same keys in lower case.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/validation"
)

// EnvPrefix is prepended to every configuration key.
const EnvPrefix = "SENTINEL"

// Load builds the configuration from the process environment and validates it.
func Load() (*domain.Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*domain.Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	v.SetDefault("tier", string(domain.TierCommunity))
	tier := domain.Tier(strings.ToLower(v.GetString("tier")))

	cfg := domain.DefaultConfig()
	if tier == domain.TierPro {
		cfg = domain.ProConfig()
	}
	cfg.Tier = tier

	r := reader{v: v}

	r.str("server_host", &cfg.Server.Host)
	r.int("server_port", &cfg.Server.Port)
	r.int("server_read_timeout", &cfg.Server.ReadTimeout)
	r.int("server_write_timeout", &cfg.Server.WriteTimeout)

	r.str("db_driver", &cfg.Repository.Driver)
	r.str("sqlite_path", &cfg.Repository.SQLitePath)
	r.str("postgres_host", &cfg.Repository.PostgresHost)
	r.int("postgres_port", &cfg.Repository.PostgresPort)
	r.str("postgres_user", &cfg.Repository.PostgresUser)
	r.str("postgres_password", &cfg.Repository.PostgresPassword)
	r.str("postgres_db", &cfg.Repository.PostgresDB)
	r.str("postgres_sslmode", &cfg.Repository.PostgresSSLMode)
	r.int("db_max_open_conns", &cfg.Repository.MaxOpenConns)
	r.int("db_max_idle_conns", &cfg.Repository.MaxIdleConns)
	r.duration("db_conn_max_lifetime", &cfg.Repository.ConnMaxLifetime)

	r.str("cache_type", &cfg.Cache.Type)
	r.int("cache_local_max_size", &cfg.Cache.LocalMaxSize)
	r.duration("cache_local_ttl", &cfg.Cache.LocalTTL)
	r.str("redis_addr", &cfg.Cache.RedisAddr)
	r.str("redis_password", &cfg.Cache.RedisPassword)
	r.int("redis_db", &cfg.Cache.RedisDB)
	r.bool("cache_two_phase", &cfg.Cache.EnableTwoPhase)

	r.str("bus_type", &cfg.EventBus.Type)
	r.int("bus_buffer_size", &cfg.EventBus.ChannelBufferSize)
	r.str("nats_url", &cfg.EventBus.NATSUrl)
	r.str("nats_token", &cfg.EventBus.NATSToken)
	r.int("nats_max_reconnects", &cfg.EventBus.NATSMaxReconnects)
	r.int("nats_reconnect_wait", &cfg.EventBus.NATSReconnectWait)
	r.str("nats_queue_group", &cfg.EventBus.NATSQueueGroup)

	r.str("assessment_provider", &cfg.Assessment.Provider)
	r.duration("assessment_timeout", &cfg.Assessment.Timeout)
	r.str("assessment_endpoint", &cfg.Assessment.Endpoint)
	r.str("assessment_api_key", &cfg.Assessment.APIKey)
	r.int("assessment_max_retries", &cfg.Assessment.MaxRetries)
	r.duration("assessment_base_backoff", &cfg.Assessment.BaseBackoff)
	r.duration("assessment_max_backoff", &cfg.Assessment.MaxBackoff)
	r.int("assessment_rate_limit", &cfg.Assessment.RateLimitPerSec)
	r.int("assessment_rate_burst", &cfg.Assessment.RateBurst)
	r.duration("assessment_max_throttle_wait", &cfg.Assessment.MaxThrottleWait)
	r.bool("assessment_respond", &cfg.Assessment.Respond)

	r.duration("pipeline_checkpoint_ttl", &cfg.Pipeline.CheckpointTTL)
	r.int("pipeline_workers", &cfg.Pipeline.Workers)
	r.bool("pipeline_async_worker", &cfg.Pipeline.AsyncWorker)

	r.str("catalog_path", &cfg.CatalogPath)

	r.str("log_level", &cfg.Logging.Level)
	r.str("log_format", &cfg.Logging.Format)
	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}

	r.bool("tracing_enabled", &cfg.Tracing.Enabled)
	r.str("tracing_service_name", &cfg.Tracing.ServiceName)
	r.bool("metrics_enabled", &cfg.Metrics.Enabled)
	r.str("metrics_path", &cfg.Metrics.Path)

	if r.err != nil {
		return nil, r.err
	}

	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// reader overlays viper values onto existing defaults. The first value
// that fails to parse is kept in err.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) str(key string, dst *string) {
	r.v.SetDefault(key, *dst)
	*dst = r.v.GetString(key)
}

func (r *reader) int(key string, dst *int) {
	r.v.SetDefault(key, *dst)
	raw := r.v.GetString(key)
	n := r.v.GetInt(key)
	if n == 0 && raw != "" && raw != "0" {
		r.fail(key, raw, "an integer")
		return
	}
	*dst = n
}

func (r *reader) bool(key string, dst *bool) {
	r.v.SetDefault(key, *dst)
	*dst = r.v.GetBool(key)
}

func (r *reader) duration(key string, dst *time.Duration) {
	r.v.SetDefault(key, *dst)
	raw := r.v.GetString(key)
	d := r.v.GetDuration(key)
	if d == 0 && raw != "" && raw != "0" && raw != "0s" {
		r.fail(key, raw, "a duration such as 500ms or 10s")
		return
	}
	*dst = d
}

func (r *reader) fail(key, raw, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("%s_%s=%q: must be %s", EnvPrefix, strings.ToUpper(key), raw, want)
	}
}
