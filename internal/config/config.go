package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Directory DirectoryConfig `mapstructure:"directory"`
	SDK       SDKConfig       `mapstructure:"sdk"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// StreamHeartbeat is the keep-alive interval of the refresh stream.
	StreamHeartbeat time.Duration `mapstructure:"stream_heartbeat"`
}

// PostgresConfig is optional; an empty host disables call history.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ScyllaConfig is optional; no hosts disables the event log.
type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	SDKTopic        string        `mapstructure:"sdk_topic"`
	EventTopic      string        `mapstructure:"event_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
	Partitions      int           `mapstructure:"partitions"`
}

// RedisConfig is optional; an empty address disables the presence mirror.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PresenceTTL  time.Duration `mapstructure:"presence_ttl"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RegistryConfig struct {
	// EndedRetention is how long ended calls stay listed before pruning.
	EndedRetention time.Duration `mapstructure:"ended_retention"`
	PruneInterval  time.Duration `mapstructure:"prune_interval"`
	// ObserverBuffer bounds the queue of each asynchronous observer.
	ObserverBuffer int `mapstructure:"observer_buffer"`
}

// DirectoryConfig lists the users shown in the roster.
type DirectoryConfig struct {
	Users []string `mapstructure:"users"`
}

type SDKConfig struct {
	// Mode selects the dialer: "simulated" runs in-process, "kafka" relies on sdk_topic events only.
	Mode           string        `mapstructure:"mode"`
	ProgressDelay  time.Duration `mapstructure:"progress_delay"`
	EstablishDelay time.Duration `mapstructure:"establish_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("HOTLINE")
	v.SetEnvKeyReplacer(NewEnvReplacer())
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hotline")
	v.SetDefault("app.env", "local")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.stream_heartbeat", 15*time.Second)
	v.SetDefault("kafka.client_id", "hotline")
	v.SetDefault("kafka.sdk_topic", "hotline.sdk")
	v.SetDefault("kafka.event_topic", "hotline.events")
	v.SetDefault("kafka.consumer_group_id", "hotline")
	v.SetDefault("kafka.commit_interval", time.Second)
	v.SetDefault("kafka.partitions", 12)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.shutdown_timeout", 5*time.Second)
	v.SetDefault("redis.key_prefix", "hotline")
	v.SetDefault("redis.presence_ttl", time.Hour)
	v.SetDefault("registry.ended_retention", 5*time.Minute)
	v.SetDefault("registry.prune_interval", 30*time.Second)
	v.SetDefault("registry.observer_buffer", 256)
	v.SetDefault("sdk.mode", "simulated")
	v.SetDefault("sdk.progress_delay", time.Second)
	v.SetDefault("sdk.establish_delay", 3*time.Second)
	v.SetDefault("sdk.request_timeout", 10*time.Second)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be a valid port, got %d", c.HTTP.Port))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Kafka.SDKTopic == "" || c.Kafka.EventTopic == "" {
		errs = append(errs, errors.New("kafka.sdk_topic and kafka.event_topic are required"))
	}
	if c.Kafka.SDKTopic != "" && c.Kafka.SDKTopic == c.Kafka.EventTopic {
		errs = append(errs, errors.New("kafka.sdk_topic and kafka.event_topic must differ"))
	}
	if c.Postgres.Host != "" && (c.Postgres.Port <= 0 || c.Postgres.Database == "") {
		errs = append(errs, errors.New("postgres.port and postgres.database are required when postgres.host is set"))
	}
	if len(c.Scylla.Hosts) > 0 && c.Scylla.Keyspace == "" {
		errs = append(errs, errors.New("scylla.keyspace is required when scylla.hosts is set"))
	}
	if c.Registry.ObserverBuffer <= 0 {
		errs = append(errs, fmt.Errorf("registry.observer_buffer must be positive, got %d", c.Registry.ObserverBuffer))
	}
	if c.Registry.EndedRetention < 0 {
		errs = append(errs, errors.New("registry.ended_retention must not be negative"))
	}
	switch c.SDK.Mode {
	case "simulated", "kafka":
	default:
		errs = append(errs, fmt.Errorf("sdk.mode must be one of simulated, kafka, got %q", c.SDK.Mode))
	}

	return errors.Join(errs...)
}

// HistoryEnabled reports whether Postgres call history is configured.
func (c *Config) HistoryEnabled() bool {
	return c.Postgres.Host != ""
}

// EventLogEnabled reports whether the Scylla event log is configured.
func (c *Config) EventLogEnabled() bool {
	return len(c.Scylla.Hosts) > 0
}

// PresenceEnabled reports whether the Redis presence mirror is configured.
func (c *Config) PresenceEnabled() bool {
	return c.Redis.Address != ""
}
