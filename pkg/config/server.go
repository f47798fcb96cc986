package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"

	"github.com/switchyard/switchyard/pkg/paths"
)

// DefaultServerConfig returns the default server configuration.
// These are sensible defaults for local use and can be overridden via
// flags, environment variables, or config files.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:        "0.0.0.0",
		Port:        8080,
		Workers:     4,
		QueueSize:   100,
		MaxClients:  64,
		Backlog:     128,
		PollTimeout: time.Second,
		UsersFile:   filepath.Join(paths.DataDir(), "users.yaml"),
	}
}

// BindServerFlags binds server-specific flags to the provided FlagSet.
// These flags are used by the 'switchyard serve' command.
//
// Flags are namespaced under 'server.' to avoid conflicts with global
// flags. Example: --server.addr, --server.port
func BindServerFlags(flags *pflag.FlagSet) {
	defaults := DefaultServerConfig()

	flags.String("server.addr", defaults.Addr, "Server listen address (use 0.0.0.0 for all interfaces)")
	flags.Int("server.port", defaults.Port, "Server listen port (0 picks an ephemeral port)")
	flags.Int("server.workers", defaults.Workers, "Number of worker goroutines executing connection jobs")
	flags.Int("server.queue_size", defaults.QueueSize, "Capacity of the pending job queue")
	flags.Int("server.max_clients", defaults.MaxClients, "Maximum simultaneously watched connections")
	flags.Int("server.backlog", defaults.Backlog, "Listen backlog passed to the kernel")
	flags.Duration("server.poll_timeout", defaults.PollTimeout, "Upper bound of one poll wait")
	flags.String("server.users_file", defaults.UsersFile, "Path to the user database file")
}

// TuningInt reads an integer knob from the free-form tuning map,
// coercing whatever the YAML or env layer produced. Missing and
// non-numeric values yield the fallback.
func (c ServerConfig) TuningInt(key string, fallback int) int {
	v, ok := c.Tuning[key]
	if !ok {
		return fallback
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return fallback
	}
	return n
}

// TuningDuration reads a duration knob from the free-form tuning map.
// Accepts duration strings like "250ms" as well as integer
// nanoseconds. Missing, malformed and non-positive values yield the
// fallback.
func (c ServerConfig) TuningDuration(key string, fallback time.Duration) time.Duration {
	v, ok := c.Tuning[key]
	if !ok {
		return fallback
	}
	d, err := cast.ToDurationE(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
