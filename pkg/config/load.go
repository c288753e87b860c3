package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "C8Y_"

// Load builds the configuration in priority order:
//  1. Defaults
//  2. Config file at path (skipped when path is empty)
//  3. C8Y_* environment variables
//
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes path into cfg, choosing the format by extension. Keys
// missing from the file keep their current value.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}
	return nil
}

// loadFromEnv applies C8Y_* overrides. lookup is os.LookupEnv outside tests.
func loadFromEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = Duration(d)
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = b
		}
	}

	str("BASE_URL", &cfg.Platform.BaseURL)
	str("TENANT", &cfg.Platform.Tenant)
	str("USERNAME", &cfg.Platform.Username)
	str("PASSWORD", &cfg.Platform.Password)
	str("TOKEN", &cfg.Platform.Token)
	str("USER_AGENT", &cfg.Platform.UserAgent)
	dur("TIMEOUT", &cfg.Platform.Timeout)

	num("WORKERS", &cfg.Fetch.Workers)
	num("PAGE_SIZE", &cfg.Fetch.PageSize)
	str("MODE", &cfg.Fetch.Mode)
	dur("PAGE_TIMEOUT", &cfg.Fetch.PageTimeout)
	num("CAPACITY", &cfg.Fetch.Capacity)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	dur("COUNT_TTL", &cfg.Redis.CountTTL)

	str("LOG_LEVEL", &cfg.Log.Level)
	flag("LOG_PRETTY", &cfg.Log.Pretty)

	str("METRICS_ADDR", &cfg.MetricsAddr)

	return firstErr
}
