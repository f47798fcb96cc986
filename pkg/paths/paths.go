// Package paths resolves the per-user directories switchyard keeps its
// files in, following the XDG base directory layout with a Windows
// fallback.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// dir resolves one base directory: the XDG override variable when set,
// the roaming app-data folder on Windows, otherwise the given segments
// under the user's home.
func dir(xdgVar string, fallback ...string) string {
	if base := os.Getenv(xdgVar); base != "" {
		return filepath.Join(base, "switchyard")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "Switchyard")
		}
	}
	home, _ := os.UserHomeDir()
	segments := append([]string{home}, fallback...)
	return filepath.Join(append(segments, "switchyard")...)
}

// ConfigDir returns the directory searched for config.yaml when no
// --config flag names one.
func ConfigDir() string {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the directory holding mutable state, the user
// database in particular.
func DataDir() string {
	return dir("XDG_DATA_HOME", ".local", "share")
}

// DefaultConfigFile is the path probed for a configuration file when
// the caller does not name one. The file may well not exist.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
