package infra

import (
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs of processes matching the pattern.
// App processes are named after their package, with ":suffix" for
// secondary processes, so "com.example" matches "com.example:remote".
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if matchesPackageProcess(name, pattern) {
			found = append(found, int(p.Pid))
			continue
		}
		// Android truncates comm to 15 chars, the cmdline keeps the full name.
		cmdline, err := p.Cmdline()
		if err == nil && matchesPackageProcess(firstField(cmdline), pattern) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

// ProcessNames returns the full process name of every running process.
func (pm *ProcessManagerImpl) ProcessNames() ([]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		if cmdline, err := p.Cmdline(); err == nil && cmdline != "" {
			names = append(names, firstField(cmdline))
			continue
		}
		if name, err := p.Name(); err == nil {
			names = append(names, name)
		}
	}
	return names, nil
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

func matchesPackageProcess(name, packageName string) bool {
	return name == packageName || strings.HasPrefix(name, packageName+":")
}

func firstField(cmdline string) string {
	if fields := strings.Fields(cmdline); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
