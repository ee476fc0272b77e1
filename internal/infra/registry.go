package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

const daemonStateFile = "daemon.json"

// FileRegistry implements domain.DaemonRegistry with a JSON file in the
// data directory.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry in dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) *FileRegistry {
	return NewFileRegistryWithPath(filepath.Join(dataDir, daemonStateFile), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// Path returns the registry file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register saves the daemon's PID and start time.
func (r *FileRegistry) Register(state domain.DaemonState) error {
	return r.withLock(func() error {
		now := time.Now().Unix()
		if state.StartedAt == 0 {
			state.StartedAt = now
		}
		state.LastHeartbeat = now
		return r.atomicWrite(&state)
	})
}

// Heartbeat updates the timestamp and the applied preference.
func (r *FileRegistry) Heartbeat(pref domain.Preference, status domain.PermissionStatus) error {
	return r.withLock(func() error {
		state, err := r.Get()
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("daemon not registered")
		}
		state.LastHeartbeat = time.Now().Unix()
		state.Preference = pref.String()
		state.Permission = status.String()
		return r.atomicWrite(state)
	})
}

// Get returns the recorded state, or nil if the file does not exist.
func (r *FileRegistry) Get() (*domain.DaemonState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state domain.DaemonState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// IsAlive checks the recorded PID.
func (r *FileRegistry) IsAlive() (bool, error) {
	state, err := r.Get()
	if err != nil {
		return false, err
	}
	if state == nil || state.PID == 0 {
		return false, nil
	}
	return r.processManager.IsRunning(state.PID), nil
}

// Clear removes the registry file.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// withLock serializes writers across processes.
func (r *FileRegistry) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN) }()
	return fn()
}

// atomicWrite writes the state file atomically (write + rename).
func (r *FileRegistry) atomicWrite(state *domain.DaemonState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
