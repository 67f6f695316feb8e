package neurobus

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileConfig mirrors Config with mapstructure tags, matching §6's
// recognized-options table plus the seam toggles SPEC_FULL adds. It is the
// on-disk/env-var shape; FileConfig.RuntimeConfig builds a runtime Config from it (the
// ContextEnricher/TemporalLog/ClusterRelay/SemanticRouter/ReasoningHook
// fields of Config are wired by the caller afterward, never from file).
type FileConfig struct {
	MaxSubscriptions       int           `mapstructure:"max_subscriptions"`
	DispatchTimeout        time.Duration `mapstructure:"dispatch_timeout"`
	HandlerTimeout         time.Duration `mapstructure:"handler_timeout"`
	EnableErrorIsolation   bool          `mapstructure:"enable_error_isolation"`
	EnableParallelDispatch bool          `mapstructure:"enable_parallel_dispatch"`
	MaxConcurrentHandlers  int64         `mapstructure:"max_concurrent_handlers"`

	Logger LoggerConfig `mapstructure:"logger"`

	ContextSeam  ContextSeamConfig  `mapstructure:"context_seam"`
	TemporalSeam TemporalSeamConfig `mapstructure:"temporal_seam"`
	ClusterSeam  ClusterSeamConfig  `mapstructure:"cluster_seam"`
}

// LoggerConfig holds the logger.dev switch from the teacher pack's logger
// settings; it has no path setting.
type LoggerConfig struct {
	Dev bool `mapstructure:"dev"`
}

// ContextSeamConfig selects and configures the hierarchical-scope seam
// (§4.E). Provider is "memory" or "memcache".
type ContextSeamConfig struct {
	Provider string           `mapstructure:"provider"`
	TTL      time.Duration    `mapstructure:"ttl"`
	Memcache MemcacheSeamConf `mapstructure:"memcache"`
}

type MemcacheSeamConf struct {
	Servers []string `mapstructure:"servers"`
}

// TemporalSeamConfig selects and configures the event-log seam (§4.F).
// Provider is "memory" or "nats".
type TemporalSeamConfig struct {
	Provider   string        `mapstructure:"provider"`
	Retention  time.Duration `mapstructure:"retention"`
	MaxEvents  int           `mapstructure:"max_events"`
	NATSURL    string        `mapstructure:"nats_url"`
	NATSStream string        `mapstructure:"nats_stream"`
}

// ClusterSeamConfig selects and configures the cluster relay seam (§4.F).
// Provider is "noop" or "redis".
type ClusterSeamConfig struct {
	Provider string `mapstructure:"provider"`
	RedisURL string `mapstructure:"redis_url"`
	Channel  string `mapstructure:"channel"`
}

// Manager loads FileConfig from a config file, environment variables
// (NEUROBUS_ prefixed), and built-in defaults, the way the teacher pack's
// config.Manager wraps viper.
type Manager struct {
	v *viper.Viper
}

// NewManager builds a Manager with neurobus's defaults pre-populated.
func NewManager() *Manager {
	v := viper.New()

	v.SetConfigName("neurobus")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/neurobus")
	v.AddConfigPath("$HOME/.neurobus")

	v.SetEnvPrefix("NEUROBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &Manager{v: v}
}

// ManagerOption customizes a Manager at construction.
type ManagerOption func(*Manager)

// WithConfigFile pins a specific config file path.
func WithConfigFile(path string) ManagerOption {
	return func(m *Manager) { m.v.SetConfigFile(path) }
}

// NewManagerWithOptions builds a Manager and applies opts.
func NewManagerWithOptions(opts ...ManagerOption) *Manager {
	m := NewManager()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the config file if present; a missing file is not an error,
// since defaults and environment variables are always available.
func (m *Manager) Load() error {
	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("neurobus: reading config file: %w", err)
		}
	}
	return nil
}

// GetFileConfig unmarshals the loaded configuration.
func (m *Manager) GetFileConfig() (*FileConfig, error) {
	var cfg FileConfig
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("neurobus: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// RuntimeConfig projects the dispatch-relevant fields of fc into a Config.
// Seam implementations (built from ContextSeamConfig etc. by the seam/*
// packages) are left to the caller to attach.
func (fc *FileConfig) RuntimeConfig() Config {
	return Config{
		MaxSubscriptions:       fc.MaxSubscriptions,
		DispatchTimeout:        fc.DispatchTimeout,
		HandlerTimeout:         fc.HandlerTimeout,
		EnableErrorIsolation:   fc.EnableErrorIsolation,
		EnableParallelDispatch: fc.EnableParallelDispatch,
		MaxConcurrentHandlers:  fc.MaxConcurrentHandlers,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_subscriptions", 0)
	v.SetDefault("dispatch_timeout", "0s")
	v.SetDefault("handler_timeout", "0s")
	v.SetDefault("enable_error_isolation", true)
	v.SetDefault("enable_parallel_dispatch", true)
	v.SetDefault("max_concurrent_handlers", 0)

	v.SetDefault("logger.dev", false)

	v.SetDefault("context_seam.provider", "memory")
	v.SetDefault("context_seam.ttl", "0s")
	v.SetDefault("context_seam.memcache.servers", []string{"localhost:11211"})

	v.SetDefault("temporal_seam.provider", "memory")
	v.SetDefault("temporal_seam.retention", "24h")
	v.SetDefault("temporal_seam.max_events", 0)
	v.SetDefault("temporal_seam.nats_url", "nats://localhost:4222")
	v.SetDefault("temporal_seam.nats_stream", "NEUROBUS_EVENTS")

	v.SetDefault("cluster_seam.provider", "noop")
	v.SetDefault("cluster_seam.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cluster_seam.channel", "neurobus:relay")
}
