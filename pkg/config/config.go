// pkg/config/config.go
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

var validate = validator.New()

// Manager handles loading and accessing application configuration.
// Loading replaces the whole tree at once, so readers never observe a
// half-merged configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex

	// Captured by Load so Reload can repeat the merge with the same
	// inputs.
	lastSources []Source
}

// NewManager creates an empty Manager. Call Load before Get.
func NewManager() *Manager {
	return &Manager{
		koanfInstance: koanf.New("."),
	}
}

// DefaultConfig returns a new Config struct populated with hardcoded
// default values. These serve as the baseline configuration if no other
// sources override them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Server: DefaultServerConfig(),
	}
}

// Load merges the standard sources in precedence order: hardcoded
// defaults, then the optional YAML file, then SWITCHYARD_* environment
// variables, then command-line flags. The merged tree is validated
// before it replaces the current one.
func (m *Manager) Load(flags *pflag.FlagSet, configFilePath string) error {
	return m.LoadWithSources(DefaultSources(configFilePath, flags))
}

// LoadWithSources merges the given sources, lowest priority first, and
// replaces the current configuration with the validated result. The
// sources are captured for later Reload calls.
func (m *Manager) LoadWithSources(sources []Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSources = sources
	return m.loadLocked()
}

// Reload repeats the merge with the sources captured by the previous
// Load. A failed reload keeps the previous configuration intact.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSources == nil {
		return fmt.Errorf("config: Reload called before Load")
	}
	return m.loadLocked()
}

func (m *Manager) loadLocked() error {
	sources := make([]Source, len(m.lastSources))
	copy(sources, m.lastSources)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	// Merge into a fresh instance so a failing source cannot corrupt
	// the tree currently being served.
	k := koanf.New(".")
	for _, src := range sources {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("loading %s configuration: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := k.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("unmarshaling final config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return err
	}

	m.koanfInstance = k
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// Validate checks the merged tree before anything starts with it.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Server.PollTimeout <= 0 {
		return fmt.Errorf("invalid configuration: server.poll_timeout must be positive, got %s", c.Server.PollTimeout)
	}
	return nil
}

// DefaultConfigAsMap converts the DefaultConfig struct to a
// map[string]interface{} for Koanf's confmap.Provider. This is a bit
// manual but ensures Koanf knows all keys.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		// Log configuration
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		// Server configuration
		"server.addr":         def.Server.Addr,
		"server.port":         def.Server.Port,
		"server.workers":      def.Server.Workers,
		"server.queue_size":   def.Server.QueueSize,
		"server.max_clients":  def.Server.MaxClients,
		"server.backlog":      def.Server.Backlog,
		"server.poll_timeout": def.Server.PollTimeout,
		"server.users_file":   def.Server.UsersFile,
	}
}

// BindFlags defines command-line flags corresponding to global
// configuration settings. The main --config / -c flag for the config
// file path is defined on the root command's persistent flags.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	flags.String("log.level", defaults.Log.Level, "Log level (trace, debug, info, warn, error)")
	flags.String("log.format", defaults.Log.Format, "Log format (text, json)")
	flags.String("log.file", defaults.Log.File, "Path to log file (empty for stdout)")
}
