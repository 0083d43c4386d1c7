// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Telegram holds bot credentials and the admin fan-out set.
type Telegram struct {
	BotToken      string  `mapstructure:"bot_token"`
	AdminUserIDs  []int64 `mapstructure:"admin_user_ids"`
	AdminNotifyID int64   `mapstructure:"admin_notify_chat_id"`
}

// Storage selects and configures the storage driver.
type Storage struct {
	Mode           string `mapstructure:"mode"` // "remote" or "local"
	RemoteToken    string `mapstructure:"remote_oauth_token"`
	RemoteBasePath string `mapstructure:"remote_base_path"`
	RemoteBucket   string `mapstructure:"remote_bucket"`
	RemoteRegion   string `mapstructure:"remote_region"`
	RemoteEndpoint string `mapstructure:"remote_endpoint"`
	LocalRoot      string `mapstructure:"local_root"`
}

// Relational points at the SQLite store file.
type Relational struct {
	Path string `mapstructure:"path"`
}

// Queue points at the durable queue endpoint.
type Queue struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Key          string        `mapstructure:"key"`
	PopTimeout   time.Duration `mapstructure:"pop_timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AccessControl holds access-control tuning knobs.
type AccessControl struct {
	Enabled           bool          `mapstructure:"enabled"`
	DefaultTTLDays    int           `mapstructure:"default_ttl_days"`
	WarnBefore        time.Duration `mapstructure:"warn_before"`
	WarnCheckInterval time.Duration `mapstructure:"warn_check_interval"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
}

// Catalog holds catalog-sync tuning knobs.
type Catalog struct {
	PageSize     int           `mapstructure:"page_size"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	SyncMaxNodes int           `mapstructure:"sync_max_nodes"`
}

// NetRetry bounds the retry wrapper used around storage/messenger calls.
type NetRetry struct {
	Attempts int           `mapstructure:"attempts"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// JobEngine holds worker-loop tuning knobs.
type JobEngine struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Tracing configures the optional OpenTelemetry exporter.
type Tracing struct {
	Enabled      bool    `mapstructure:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Observability groups logging/metrics/tracing knobs.
type Observability struct {
	LogLevel    string  `mapstructure:"log_level"`
	LogFile     string  `mapstructure:"log_file"`
	MetricsPort int     `mapstructure:"metrics_port"`
	Tracing     Tracing `mapstructure:"tracing"`
}

type Config struct {
	Telegram      Telegram      `mapstructure:"telegram"`
	Storage       Storage       `mapstructure:"storage"`
	Relational    Relational    `mapstructure:"relational"`
	Queue         Queue         `mapstructure:"queue"`
	AccessControl AccessControl `mapstructure:"access_control"`
	Catalog       Catalog       `mapstructure:"catalog"`
	NetRetry      NetRetry      `mapstructure:"net_retry"`
	JobEngine     JobEngine     `mapstructure:"job_engine"`
	Observability Observability `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Storage: Storage{
			Mode:           "local",
			RemoteBasePath: "/",
			RemoteRegion:   "us-east-1",
			LocalRoot:      "./data/storage",
		},
		Relational: Relational{
			Path: "./data/deliveryd.sqlite",
		},
		Queue: Queue{
			Addr:         "localhost:6379",
			Key:          "deliveryd:jobs",
			PopTimeout:   5 * time.Second,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		AccessControl: AccessControl{
			Enabled:           true,
			DefaultTTLDays:    30,
			WarnBefore:        24 * time.Hour,
			WarnCheckInterval: 5 * time.Minute,
			SessionTTL:        1 * time.Hour,
		},
		Catalog: Catalog{
			PageSize:     50,
			SyncInterval: 0,
			SyncMaxNodes: 5000,
		},
		NetRetry: NetRetry{
			Attempts: 3,
			MaxDelay: 30 * time.Second,
		},
		JobEngine: JobEngine{
			MaxAttempts: 3,
		},
		Observability: Observability{
			LogLevel:    "info",
			MetricsPort: 9090,
			Tracing: Tracing{
				Environment:  "production",
				SamplingRate: 0.1,
			},
		},
	}
}

// Load reads configuration from a YAML file plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("telegram.bot_token", def.Telegram.BotToken)
	v.SetDefault("telegram.admin_user_ids", def.Telegram.AdminUserIDs)
	v.SetDefault("telegram.admin_notify_chat_id", def.Telegram.AdminNotifyID)

	v.SetDefault("storage.mode", def.Storage.Mode)
	v.SetDefault("storage.remote_oauth_token", def.Storage.RemoteToken)
	v.SetDefault("storage.remote_base_path", def.Storage.RemoteBasePath)
	v.SetDefault("storage.remote_bucket", def.Storage.RemoteBucket)
	v.SetDefault("storage.remote_region", def.Storage.RemoteRegion)
	v.SetDefault("storage.remote_endpoint", def.Storage.RemoteEndpoint)
	v.SetDefault("storage.local_root", def.Storage.LocalRoot)

	v.SetDefault("relational.path", def.Relational.Path)

	v.SetDefault("queue.addr", def.Queue.Addr)
	v.SetDefault("queue.password", def.Queue.Password)
	v.SetDefault("queue.db", def.Queue.DB)
	v.SetDefault("queue.key", def.Queue.Key)
	v.SetDefault("queue.pop_timeout", def.Queue.PopTimeout)
	v.SetDefault("queue.dial_timeout", def.Queue.DialTimeout)
	v.SetDefault("queue.read_timeout", def.Queue.ReadTimeout)
	v.SetDefault("queue.write_timeout", def.Queue.WriteTimeout)

	v.SetDefault("access_control.enabled", def.AccessControl.Enabled)
	v.SetDefault("access_control.default_ttl_days", def.AccessControl.DefaultTTLDays)
	v.SetDefault("access_control.warn_before", def.AccessControl.WarnBefore)
	v.SetDefault("access_control.warn_check_interval", def.AccessControl.WarnCheckInterval)
	v.SetDefault("access_control.session_ttl", def.AccessControl.SessionTTL)

	v.SetDefault("catalog.page_size", def.Catalog.PageSize)
	v.SetDefault("catalog.sync_interval", def.Catalog.SyncInterval)
	v.SetDefault("catalog.sync_max_nodes", def.Catalog.SyncMaxNodes)

	v.SetDefault("net_retry.attempts", def.NetRetry.Attempts)
	v.SetDefault("net_retry.max_delay", def.NetRetry.MaxDelay)

	v.SetDefault("job_engine.max_attempts", def.JobEngine.MaxAttempts)

	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.log_file", def.Observability.LogFile)
	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)
	v.SetDefault("observability.tracing.environment", def.Observability.Tracing.Environment)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Storage.Mode != "remote" && cfg.Storage.Mode != "local" {
		return fmt.Errorf("storage.mode must be 'remote' or 'local'")
	}
	if cfg.Storage.Mode == "local" && cfg.Storage.LocalRoot == "" {
		return fmt.Errorf("storage.local_root is required when storage.mode=local")
	}
	if cfg.Storage.Mode == "remote" && cfg.Storage.RemoteBucket == "" {
		return fmt.Errorf("storage.remote_bucket is required when storage.mode=remote")
	}
	if cfg.Relational.Path == "" {
		return fmt.Errorf("relational.path must be set")
	}
	if cfg.Queue.Key == "" {
		return fmt.Errorf("queue.key must be set")
	}
	if cfg.Queue.PopTimeout <= 0 {
		return fmt.Errorf("queue.pop_timeout must be > 0")
	}
	if cfg.AccessControl.DefaultTTLDays <= 0 {
		return fmt.Errorf("access_control.default_ttl_days must be > 0")
	}
	if cfg.Catalog.SyncMaxNodes <= 0 {
		return fmt.Errorf("catalog.sync_max_nodes must be > 0")
	}
	if cfg.NetRetry.Attempts <= 0 {
		return fmt.Errorf("net_retry.attempts must be > 0")
	}
	if cfg.JobEngine.MaxAttempts <= 0 {
		return fmt.Errorf("job_engine.max_attempts must be > 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.Endpoint == "" {
		return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
	}
	if r := cfg.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("observability.tracing.sampling_rate must be in [0,1]")
	}
	return nil
}
