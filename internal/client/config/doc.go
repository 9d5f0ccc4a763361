// Package config loads runtime configuration for the medsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the record API
//	-i int      online status check interval (seconds)
//	-f string   local store file
//	-t int      remote request timeout (seconds)
//	-r int      maximum drain retry interval (seconds)
//	-p string   delete policy for unsynced records: cancel or enqueue
//	-l string   log file
//	-m string   metrics listen address
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "online_check_interval": "3s",
//	  "database_path": "medsync.db",
//	  "request_timeout": "10s",
//	  "retry_initial_interval": "1s",
//	  "retry_max_interval": "5m",
//	  "delete_policy": "cancel",
//	  "compact_updates": true,
//	  "log_file": "medsync.log",
//	  "log_level": "info",
//	  "metrics_addr": ":9091"
//	}
//
// Keys absent from the file keep their current values.
package config
