// Package infra implements infrastructure concerns.
package infra

import (
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// ExecMode represents the privilege the process was started with.
type ExecMode string

const (
	// ExecModeRoot runs as uid 0 (su -c compctl ...); commands go through sh.
	ExecModeRoot ExecMode = "root"
	// ExecModeShell runs as the adb shell user (uid 2000).
	ExecModeShell ExecMode = "shell"
	// ExecModeUser runs as an unprivileged user; commands go through su.
	ExecModeUser ExecMode = "user"
)

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Where the encrypted preference store and key live
	LogPath string
	IsRoot  bool
}

const (
	rootDataDir  = "/data/adb/compctl"
	shellDataDir = "/data/local/tmp/compctl"
)

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	return execModeForUID(os.Geteuid())
}

func execModeForUID(uid int) *ExecModeConfig {
	switch uid {
	case domain.RootUID:
		return &ExecModeConfig{
			Mode:    ExecModeRoot,
			DataDir: rootDataDir,
			LogPath: filepath.Join(rootDataDir, "compctl.log"),
			IsRoot:  true,
		}
	case domain.ShellUID:
		return &ExecModeConfig{
			Mode:    ExecModeShell,
			DataDir: shellDataDir,
			LogPath: filepath.Join(shellDataDir, "compctl.log"),
		}
	}

	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".compctl")
	return &ExecModeConfig{
		Mode:    ExecModeUser,
		DataDir: dataDir,
		LogPath: filepath.Join(dataDir, "compctl.log"),
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeRoot:
		return "root (uid 0, sh)"
	case ExecModeShell:
		return "shell (uid 2000, su)"
	case ExecModeUser:
		return "user (su)"
	default:
		return "unknown"
	}
}
