// Package config resolves the filesystem locations the demo daemon needs:
// where its Unix socket lives and where its lock-passphrase verifier
// persists its state. Directory resolution follows the same
// platform-specific conventions the reference tooling used.
package config

import (
	"os"
	"path/filepath"
)

const appName = "sshagentd"

// Dir returns the daemon's configuration directory, creating it if it does
// not already exist. The first of these that applies is used, on every
// platform:
//   - $XDG_CONFIG_HOME/sshagentd, when XDG_CONFIG_HOME is set
//   - %APPDATA%\sshagentd, when APPDATA is set
//   - $HOME/.config/sshagentd
func Dir() (string, error) {
	var dir string

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		dir = filepath.Join(xdgConfig, appName)
	} else if appData := os.Getenv("APPDATA"); appData != "" {
		dir = filepath.Join(appData, appName)
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(homeDir, ".config", appName)
	} else {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// SocketPath returns the path of the Unix domain socket the daemon listens
// on and clients connect to, inside Dir().
func SocketPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agent.sock"), nil
}

// LockDBPath returns the path of the file backing the default bcrypt
// LockProvider's passphrase hash, inside Dir().
func LockDBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lock.json"), nil
}
