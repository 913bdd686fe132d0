package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryBackoffBase == 0 {
		cfg.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchMaxWait == 0 {
		cfg.BatchMaxWait = DefaultBatchMaxWait
	}
	if cfg.RedrainDelay == 0 {
		cfg.RedrainDelay = DefaultRedrainDelay
	}
	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL == 0 {
			cfg.Cache.TTL = DefaultCacheTTL
		}
		if cfg.Cache.Size == 0 {
			cfg.Cache.Size = DefaultCacheSize
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be a valid http(s) URL")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("retryAttempts must be at least 1")
	}

	if cfg.RetryBackoffBase < 0 {
		return fmt.Errorf("retryBackoffBase must be non-negative")
	}

	if cfg.BatchSize < 1 {
		return fmt.Errorf("batchSize must be positive")
	}

	if cfg.BatchMaxWait < 0 {
		return fmt.Errorf("batchMaxWait must be non-negative")
	}

	if cfg.RedrainDelay < 0 {
		return fmt.Errorf("redrainDelay must be non-negative")
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metricsPort must be between 0 and 65535")
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	return nil
}
