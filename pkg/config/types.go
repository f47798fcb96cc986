// pkg/config/types.go
package config

import "time"

// Config is the root configuration structure for the Switchyard server.
// It aggregates all other specific configuration structs.
type Config struct {
	Log    LogConfig    `description:"Logging configuration" koanf:"log"`
	Server ServerConfig `description:"Server configuration" koanf:"server"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: trace | debug | info | warn | error" koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `description:"Log format: json | text" koanf:"format" validate:"omitempty,oneof=text json"`
	File   string `description:"Log file path (empty for stdout)" koanf:"file"`
}

// ServerConfig holds configuration for the Switchyard server runtime.
// Used by the 'switchyard serve' command.
type ServerConfig struct {
	// Network settings
	Addr string `description:"Server listen address" koanf:"addr" validate:"required"`
	Port int    `description:"Server listen port, 0 picks an ephemeral one" koanf:"port" validate:"min=0,max=65535"`

	// Dispatch settings
	Workers   int `description:"Number of worker goroutines executing connection jobs" koanf:"workers" validate:"min=1"`
	QueueSize int `description:"Capacity of the pending job queue" koanf:"queue_size" validate:"min=1"`

	// Event loop settings. MaxClients caps the poll descriptor table;
	// PollTimeout bounds one readiness wait and is therefore also the
	// worst-case reaction time to a stop request.
	MaxClients  int           `description:"Maximum simultaneously watched connections" koanf:"max_clients" validate:"min=1"`
	Backlog     int           `description:"Listen backlog passed to the kernel" koanf:"backlog" validate:"min=1"`
	PollTimeout time.Duration `description:"Upper bound of one poll wait" koanf:"poll_timeout"`

	// Paths
	UsersFile string `description:"Path to the user database file" koanf:"users_file" validate:"required"`

	// Tuning holds free-form expert knobs read through the Tuning*
	// accessors. Unknown keys are ignored.
	Tuning map[string]any `description:"Expert tuning knobs" koanf:"tuning"`
}
