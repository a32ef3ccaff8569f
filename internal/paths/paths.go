// Package paths resolves playlog's files under the XDG base directories.
package paths

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "playlog"

// ConfigFile returns the default config file path, creating its directory.
func ConfigFile() (string, error) {
	return xdg.ConfigFile(filepath.Join(appName, "config.toml"))
}

// DatabaseFile returns the default plays database path, creating its directory.
func DatabaseFile() (string, error) {
	return xdg.DataFile(filepath.Join(appName, "plays.db"))
}

// StateFile returns a path for name under playlog's state directory
// (logs and similar), creating the directory.
func StateFile(name string) (string, error) {
	return xdg.StateFile(filepath.Join(appName, name))
}
