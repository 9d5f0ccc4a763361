package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/medsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Interval flags are whole seconds. os.Args is filtered with
// flagx.FilterArgs first so flags meant for other components are skipped.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-f", "-t", "-r", "-p", "-l", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the record API")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "local store file")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "remote request timeout (in seconds)")
	retryMax := fs.Int("r", int(cfg.RetryMaxInterval.Seconds()), "maximum retry interval (in seconds)")
	fs.StringVar(&cfg.DeletePolicy, "p", cfg.DeletePolicy, "delete policy for unsynced records (cancel|enqueue)")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Only explicitly set interval flags replace the current values, so
	// sub-second durations from JSON survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		case "t":
			cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
		case "r":
			cfg.RetryMaxInterval = time.Duration(*retryMax) * time.Second
		}
	})
}
