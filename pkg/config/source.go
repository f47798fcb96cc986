// pkg/config/source.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/switchyard/switchyard/pkg/paths"
)

// EnvPrefix is the prefix of environment variables read by EnvSource.
const EnvPrefix = "SWITCHYARD_"

// Source represents a configuration source that can load values into
// koanf. Sources are loaded in priority order (lowest first), with
// higher priority sources overriding lower priority values.
//
// Built-in sources and their priorities:
//   - DefaultSource (10): Hardcoded default values
//   - FileSource (20): Config file (e.g., /etc/switchyard/config.yaml)
//   - EnvSource (30): Environment variables (SWITCHYARD_*)
//   - FlagSource (40): Command-line flags
//
// Custom sources can use priorities between these values to insert
// additional configuration layers (e.g., system config at 15, secrets
// at 25).
type Source interface {
	// Name returns a human-readable name for this source (for logging).
	Name() string

	// Priority returns the load priority. Lower values are loaded
	// first, higher values override lower ones.
	Priority() int

	// Load loads configuration values into the provided koanf instance.
	Load(k *koanf.Koanf) error
}

// DefaultSource provides hardcoded default configuration values.
// Priority: 10 (lowest, loaded first)
type DefaultSource struct{}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return 10 }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("error loading defaults: %w", err)
	}
	return nil
}

// FileSource loads configuration from a YAML file.
// Priority: 20
type FileSource struct {
	Path string // Path to config file (optional, silently skipped if empty or missing)
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return 20 }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}

	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error checking config file %s: %w", s.Path, err)
	}

	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("error loading config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource loads configuration from environment variables.
// Variables must have the SWITCHYARD_ prefix. A double underscore
// separates nesting levels, so single underscores inside key names
// survive the mapping:
//
//	SWITCHYARD_LOG__LEVEL -> log.level
//	SWITCHYARD_SERVER__QUEUE_SIZE -> server.queue_size
//
// Priority: 30
type EnvSource struct {
	Prefix string // Environment variable prefix (default: "SWITCHYARD_")
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return 30 }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}

	if err := k.Load(env.Provider(prefix, ".", func(key string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(key, prefix)), "__", ".")
	}), nil); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}
	return nil
}

// FlagSource loads configuration from command-line flags.
// Priority: 40 (highest, overrides all other sources)
type FlagSource struct {
	Flags *pflag.FlagSet
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return 40 }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags == nil {
		return nil
	}

	// The posflag provider needs the koanf instance so flags left at
	// their default value do not clobber file or env settings.
	if err := k.Load(posflag.Provider(s.Flags, ".", k), nil); err != nil {
		return fmt.Errorf("error loading command-line flags: %w", err)
	}

	// --debug is a shorthand that wins over any configured level.
	if debugFlag := s.Flags.Lookup("debug"); debugFlag != nil && debugFlag.Value.String() == "true" {
		_ = k.Set("log.level", "debug")
	}

	return nil
}

// DefaultSources returns the standard configuration sources.
// Order: defaults -> file -> env -> flags
//
// An empty configPath probes the per-user default location instead;
// FileSource skips a missing file either way, so running without any
// config file written is fine.
func DefaultSources(configPath string, flags *pflag.FlagSet) []Source {
	if configPath == "" {
		configPath = paths.DefaultConfigFile()
	}
	return []Source{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: EnvPrefix},
		&FlagSource{Flags: flags},
	}
}
