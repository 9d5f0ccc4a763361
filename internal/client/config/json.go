package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/medsync/internal/flagx"
	"github.com/dmitrijs2005/medsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations go
// through timex.Duration; CompactUpdates is a pointer so an absent key can be
// told apart from false.
type JsonConfig struct {
	ServerURL            string         `json:"server_url"`
	OnlineCheckInterval  timex.Duration `json:"online_check_interval"`
	DatabasePath         string         `json:"database_path"`
	RequestTimeout       timex.Duration `json:"request_timeout"`
	RetryInitialInterval timex.Duration `json:"retry_initial_interval"`
	RetryMaxInterval     timex.Duration `json:"retry_max_interval"`
	DeletePolicy         string         `json:"delete_policy"`
	CompactUpdates       *bool          `json:"compact_updates"`
	LogFile              string         `json:"log_file"`
	LogLevel             string         `json:"log_level"`
	MetricsAddr          string         `json:"metrics_addr"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Absent keys keep the current values. Read or unmarshal
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.DeletePolicy, jc.DeletePolicy)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)

	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RetryInitialInterval.Duration > 0 {
		cfg.RetryInitialInterval = jc.RetryInitialInterval.Duration
	}
	if jc.RetryMaxInterval.Duration > 0 {
		cfg.RetryMaxInterval = jc.RetryMaxInterval.Duration
	}
	if jc.CompactUpdates != nil {
		cfg.CompactUpdates = *jc.CompactUpdates
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
