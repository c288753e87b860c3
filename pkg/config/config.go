// Package config loads the settings of the c8y-fetch command from a file
// and the environment, and turns them into package configurations.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/client"
	"github.com/Sternrassler/c8y-parallel/pkg/logging"
	"github.com/Sternrassler/c8y-parallel/pkg/pagination"
	"github.com/Sternrassler/c8y-parallel/pkg/parallel"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "30s" in every file format.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler (TOML and JSON).
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete command configuration.
type Config struct {
	Platform PlatformConfig `yaml:"platform" toml:"platform" json:"platform"`
	Fetch    FetchConfig    `yaml:"fetch" toml:"fetch" json:"fetch"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis" json:"redis"`
	Log      LogConfig      `yaml:"log" toml:"log" json:"log"`

	// MetricsAddr serves /metrics while the command runs. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr" json:"metrics_addr"`
}

// PlatformConfig holds the REST endpoint and credentials.
type PlatformConfig struct {
	BaseURL   string   `yaml:"base_url" toml:"base_url" json:"base_url"`
	Tenant    string   `yaml:"tenant" toml:"tenant" json:"tenant"`
	Username  string   `yaml:"username" toml:"username" json:"username"`
	Password  string   `yaml:"password" toml:"password" json:"password"`
	Token     string   `yaml:"token" toml:"token" json:"token"`
	UserAgent string   `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	Timeout   Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// FetchConfig controls the parallel fetch.
type FetchConfig struct {
	Workers     int      `yaml:"workers" toml:"workers" json:"workers"`
	PageSize    int      `yaml:"page_size" toml:"page_size" json:"page_size"`
	Mode        string   `yaml:"mode" toml:"mode" json:"mode"`
	PageTimeout Duration `yaml:"page_timeout" toml:"page_timeout" json:"page_timeout"`

	// Capacity overrides the result channel bound; -1 is unbounded.
	Capacity int `yaml:"capacity" toml:"capacity" json:"capacity"`
}

// RedisConfig enables the count cache when Addr is set.
type RedisConfig struct {
	Addr     string   `yaml:"addr" toml:"addr" json:"addr"`
	Password string   `yaml:"password" toml:"password" json:"password"`
	DB       int      `yaml:"db" toml:"db" json:"db"`
	CountTTL Duration `yaml:"count_ttl" toml:"count_ttl" json:"count_ttl"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" toml:"pretty" json:"pretty"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			UserAgent: "c8y-fetch/1.0",
			Timeout:   Duration(30 * time.Second),
		},
		Fetch: FetchConfig{
			Workers:     parallel.DefaultConfig().Workers,
			PageSize:    pagination.DefaultPageSize,
			Mode:        pagination.ModeStreaming.String(),
			PageTimeout: Duration(pagination.DefaultConfig().Timeout),
		},
		Redis: RedisConfig{
			CountTTL: Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform.base_url is required"))
	} else if u, err := url.Parse(c.Platform.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("platform.base_url %q is not an absolute url", c.Platform.BaseURL))
	}
	if c.Platform.Username != "" && c.Platform.Token != "" {
		errs = append(errs, errors.New("platform.username and platform.token are mutually exclusive"))
	}
	if c.Fetch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("fetch.workers must be > 0 (got %d)", c.Fetch.Workers))
	}
	if c.Fetch.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("fetch.page_size must be > 0 (got %d)", c.Fetch.PageSize))
	}
	if _, err := pagination.ParseMode(c.Fetch.Mode); err != nil {
		errs = append(errs, fmt.Errorf("fetch.mode: %w", err))
	}
	if c.Fetch.Capacity < pagination.Unbounded {
		errs = append(errs, fmt.Errorf("fetch.capacity must be >= -1 (got %d)", c.Fetch.Capacity))
	}

	return errors.Join(errs...)
}

// ClientConfig returns the REST client configuration. The redis client is
// left for the caller to attach.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Platform.BaseURL)
	cfg.Tenant = c.Platform.Tenant
	cfg.Username = c.Platform.Username
	cfg.Password = c.Platform.Password
	cfg.Token = c.Platform.Token
	if c.Platform.UserAgent != "" {
		cfg.UserAgent = c.Platform.UserAgent
	}
	if c.Platform.Timeout > 0 {
		cfg.Timeout = c.Platform.Timeout.Std()
	}
	cfg.CountTTL = c.Redis.CountTTL.Std()
	return cfg
}

// FetchOptions returns the fetch options. Validate must have passed.
func (c *Config) FetchOptions(filters pagination.Filters) parallel.FetchOptions {
	mode, _ := pagination.ParseMode(c.Fetch.Mode)
	return parallel.FetchOptions{
		Strategy:    parallel.StrategyPages,
		PageSize:    c.Fetch.PageSize,
		Mode:        mode,
		Filters:     filters,
		Capacity:    c.Fetch.Capacity,
		PageTimeout: c.Fetch.PageTimeout.Std(),
	}
}

// ExecutorConfig returns the executor configuration.
func (c *Config) ExecutorConfig() parallel.Config {
	return parallel.Config{Name: "c8y-fetch", Workers: c.Fetch.Workers}
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
