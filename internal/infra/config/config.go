package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Audit     AuditSettings     `mapstructure:"audit"`
	Session   SessionSettings   `mapstructure:"session"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and key namespaces.
type RedisSettings struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	DB               int           `mapstructure:"db"`
	Password         string        `mapstructure:"password"`
	TLSEnabled       bool          `mapstructure:"tls_enabled"`
	RevocationPrefix string        `mapstructure:"revocation_prefix"`
	RevocationTTL    time.Duration `mapstructure:"revocation_ttl"`
	RateLimitPrefix  string        `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the event bus producer and consumer group.
type KafkaSettings struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Async         bool     `mapstructure:"async"`
}

// AuthSettings configures bearer token verification and the base roles
// permitted to use administrative endpoints.
type AuthSettings struct {
	KeyDirectory string   `mapstructure:"key_directory"`
	Issuer       string   `mapstructure:"issuer"`
	Audience     string   `mapstructure:"audience"`
	AdminRoles   []string `mapstructure:"admin_roles"`
}

// AuditSettings configures the audit recorder's buffering and the
// sensitivity level at which denials require synchronous durability.
type AuditSettings struct {
	BufferSize               int           `mapstructure:"buffer_size"`
	RetryInitial             time.Duration `mapstructure:"retry_initial"`
	RetryMax                 time.Duration `mapstructure:"retry_max"`
	SyncTimeout              time.Duration `mapstructure:"sync_timeout"`
	SyncSensitivityThreshold int           `mapstructure:"sync_sensitivity_threshold"`
}

// SessionSettings configures session lifetime and role-dependent idle
// timeouts. Idle timeouts are policy data, not constants.
type SessionSettings struct {
	DefaultTTL         time.Duration            `mapstructure:"default_ttl"`
	DefaultIdleTimeout time.Duration            `mapstructure:"default_idle_timeout"`
	IdleTimeouts       map[string]time.Duration `mapstructure:"idle_timeouts"`
}

// RateLimitSettings configures sliding-window limits for the HTTP surface.
type RateLimitSettings struct {
	WindowDuration       time.Duration `mapstructure:"window_duration"`
	AuthorizeMaxAttempts int           `mapstructure:"authorize_max_attempts"`
	SessionMaxAttempts   int           `mapstructure:"session_max_attempts"`
	EventsMaxAttempts    int           `mapstructure:"events_max_attempts"`
}

type TelemetrySettings struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	ServiceName string `mapstructure:"service_name"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("THORBIS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.revocation_prefix",
		"redis.revocation_ttl",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.consumer_group",
		"kafka.async",
		"auth.key_directory",
		"auth.issuer",
		"auth.audience",
		"auth.admin_roles",
		"audit.buffer_size",
		"audit.retry_initial",
		"audit.retry_max",
		"audit.sync_timeout",
		"audit.sync_sensitivity_threshold",
		"session.default_ttl",
		"session.default_idle_timeout",
		"rate_limit.window_duration",
		"rate_limit.authorize_max_attempts",
		"rate_limit.session_max_attempts",
		"rate_limit.events_max_attempts",
		"telemetry.metrics_port",
		"telemetry.service_name",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "platform-access")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "access")
	v.SetDefault("postgres.password", "access_password")
	v.SetDefault("postgres.database", "access")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.revocation_prefix", "access:revoked")
	v.SetDefault("redis.revocation_ttl", "24h")
	v.SetDefault("redis.rate_limit_prefix", "access:rate-limit")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "access")
	v.SetDefault("kafka.consumer_group", "platform-access")
	v.SetDefault("kafka.async", true)

	v.SetDefault("auth.key_directory", "./secrets")
	v.SetDefault("auth.issuer", "thorbis-auth")
	v.SetDefault("auth.audience", "platform-access")
	v.SetDefault("auth.admin_roles", []string{"owner", "admin"})

	v.SetDefault("audit.buffer_size", 4096)
	v.SetDefault("audit.retry_initial", "250ms")
	v.SetDefault("audit.retry_max", "30s")
	v.SetDefault("audit.sync_timeout", "5s")
	v.SetDefault("audit.sync_sensitivity_threshold", 5)

	v.SetDefault("session.default_ttl", "8h")
	v.SetDefault("session.default_idle_timeout", "30m")
	v.SetDefault("session.idle_timeouts", map[string]string{
		"viewer":  "30m",
		"staff":   "1h",
		"manager": "2h",
		"owner":   "4h",
	})

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.authorize_max_attempts", 600)
	v.SetDefault("rate_limit.session_max_attempts", 60)
	v.SetDefault("rate_limit.events_max_attempts", 300)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.service_name", "platform-access")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "THORBIS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
