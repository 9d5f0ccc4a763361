package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/medsync/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN; empty keeps records in memory
//
// os.Args is filtered with flagx.FilterArgs first, so flags meant for other
// components (such as -c) do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Addr, "a", config.Addr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
