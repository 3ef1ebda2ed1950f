// Package infra implements infrastructure concerns (launchctl, plists, storage).
package infra

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// ExecMode represents the privilege level launchk runs with.
type ExecMode string

const (
	// ExecModeUser runs as the logged-in user; system domain mutations will fail.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root (sudo).
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds identity and paths derived from the execution mode.
type ExecModeConfig struct {
	Mode     ExecMode
	UID      int    // uid used for user/<uid> and gui/<uid> targets
	HomeDir  string // real user's home, even under sudo
	DataDir  string // where the journal database and key live
	LogPath  string
	IsRoot   bool
	PlistDir string // the user's LaunchAgents directory
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	isRoot := os.Geteuid() == 0
	home := GetRealUserHome()

	cfg := &ExecModeConfig{
		Mode:     ExecModeUser,
		UID:      GetRealUID(),
		HomeDir:  home,
		DataDir:  filepath.Join(home, ".launchk"),
		LogPath:  filepath.Join(home, "Library", "Logs", "launchk.log"),
		IsRoot:   isRoot,
	}
	if home != "" {
		cfg.PlistDir = filepath.Join(home, "Library", "LaunchAgents")
	}
	if isRoot {
		cfg.Mode = ExecModeSystem
		cfg.DataDir = "/var/db/launchk"
		cfg.LogPath = "/var/log/launchk.log"
	}
	return cfg
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns /var/root, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// GetRealUID returns the invoking user's uid. Under sudo this is SUDO_UID,
// so gui/<uid> still addresses the user's login session.
func GetRealUID() int {
	if raw := os.Getenv("SUDO_UID"); raw != "" {
		if uid, err := strconv.Atoi(raw); err == nil {
			return uid
		}
	}
	return os.Getuid()
}
