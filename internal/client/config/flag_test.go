package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	defaults := func(mod func(*Config)) *Config {
		c := &Config{}
		c.LoadDefaults()
		mod(c)
		return c
	}

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd", "-a", "http://10.0.0.1:9090", "-i", "10", "-f", "/tmp/x.db", "-t", "4",
				"-r", "60", "-p", "enqueue", "-l", "/tmp/x.log", "-m", ":9091"},
			expected: defaults(func(c *Config) {
				c.ServerURL = "http://10.0.0.1:9090"
				c.OnlineCheckInterval = 10 * time.Second
				c.DatabasePath = "/tmp/x.db"
				c.RequestTimeout = 4 * time.Second
				c.RetryMaxInterval = time.Minute
				c.DeletePolicy = "enqueue"
				c.LogFile = "/tmp/x.log"
				c.MetricsAddr = ":9091"
			}),
		},
		{
			name:     "foreign flags are ignored",
			args:     []string{"cmd", "-c", "cfg.json", "-z", "1", "-i=7"},
			expected: defaults(func(c *Config) { c.OnlineCheckInterval = 7 * time.Second }),
		},
		{
			name:        "incorrect check interval",
			args:        []string{"cmd", "-i", "abc"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}
			config.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
