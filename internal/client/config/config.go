package config

import "time"

// Config holds runtime settings for the medsync client.
//
// Fields:
//   - ServerURL: base URL of the record API.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - DatabasePath: SQLite file backing the local store.
//   - RequestTimeout: deadline for a single remote call.
//   - RetryInitialInterval, RetryMaxInterval: bounds of the drain backoff.
//   - DeletePolicy: "cancel" or "enqueue" for records never synced.
//   - CompactUpdates: fold queued updates of the same record.
//   - LogFile, LogLevel: rotating log destination and threshold.
//   - MetricsAddr: listen address of /metrics; empty disables it.
type Config struct {
	ServerURL            string
	OnlineCheckInterval  time.Duration
	DatabasePath         string
	RequestTimeout       time.Duration
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	DeletePolicy         string
	CompactUpdates       bool
	LogFile              string
	LogLevel             string
	MetricsAddr          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "medsync.db"
	c.RequestTimeout = 10 * time.Second
	c.RetryInitialInterval = time.Second
	c.RetryMaxInterval = 5 * time.Minute
	c.DeletePolicy = "cancel"
	c.CompactUpdates = true
	c.LogFile = "medsync.log"
	c.LogLevel = "info"
	c.MetricsAddr = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
