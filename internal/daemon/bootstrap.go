package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// DaemonArgs returns the arguments that run the watcher in the foreground.
func DaemonArgs(configPath string, verbose bool) []string {
	args := []string{"daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}

// StartDetached re-executes the current binary as a background watcher.
// The child runs in its own session and survives the calling shell.
func StartDetached(configPath, logPath string, verbose bool) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, err
	}
	return StartDetachedWithPath(executable, configPath, logPath, verbose)
}

// StartDetachedWithPath starts binaryPath as a background watcher. Output
// is appended to logPath when set.
func StartDetachedWithPath(binaryPath, configPath, logPath string, verbose bool) (int, error) {
	cmd := exec.Command(binaryPath, DaemonArgs(configPath, verbose)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}
	cmd.Stdin = nil

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return 0, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, fmt.Errorf("failed to open daemon log: %w", err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
