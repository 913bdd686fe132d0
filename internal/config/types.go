package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Endpoint         string       `json:"endpoint"`
	LogLevel         string       `json:"logLevel"`
	RequestTimeout   int          `json:"requestTimeout"`   // ms - per-attempt timeout for classifier calls
	RetryAttempts    int          `json:"retryAttempts"`    // total attempts per batch, including the first
	RetryBackoffBase int          `json:"retryBackoffBase"` // ms - delay before attempt 2, doubled each attempt after
	BatchSize        int          `json:"batchSize"`
	BatchMaxWait     int          `json:"batchMaxWait"` // ms - worst-case latency before a partial batch is cut
	RedrainDelay     int          `json:"redrainDelay"` // ms - delay before draining a leftover backlog
	MetricsPort      int          `json:"metricsPort"`  // 0 disables the metrics listener
	Cache            *CacheConfig `json:"cache,omitempty"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Enabled bool `json:"enabled"`
	TTL     int  `json:"ttl"`  // seconds
	Size    int  `json:"size"` // number of entries
}

// Default values
const (
	DefaultLogLevel         = "info"
	DefaultRequestTimeout   = 10000 // ms
	DefaultRetryAttempts    = 3
	DefaultRetryBackoffBase = 1000 // ms
	DefaultBatchSize        = 25
	DefaultBatchMaxWait     = 5000 // ms
	DefaultRedrainDelay     = 100  // ms
	DefaultCacheTTL         = 300  // seconds
	DefaultCacheSize        = 10000
)

// GetRequestTimeoutDuration returns the per-attempt timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetRetryBackoffBaseDuration returns the base backoff delay as time.Duration
func (c *Config) GetRetryBackoffBaseDuration() time.Duration {
	return time.Duration(c.RetryBackoffBase) * time.Millisecond
}

// GetBatchMaxWaitDuration returns the batch timer window as time.Duration
func (c *Config) GetBatchMaxWaitDuration() time.Duration {
	return time.Duration(c.BatchMaxWait) * time.Millisecond
}

// GetRedrainDelayDuration returns the backlog re-drain delay as time.Duration
func (c *Config) GetRedrainDelayDuration() time.Duration {
	return time.Duration(c.RedrainDelay) * time.Millisecond
}

// IsCacheEnabled returns true if the result cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
