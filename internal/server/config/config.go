// Package config handles configuration for the reference server,
// including defaults, JSON overlay, and command-line flags.
package config

// Config holds runtime settings for the medsync reference server.
//
// Fields:
//   - Addr: bind address of the REST endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps records in memory.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	Addr        string
	DatabaseDSN string
	LogLevel    string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.DatabaseDSN = ""
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
