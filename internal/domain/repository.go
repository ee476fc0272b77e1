package domain

import (
	"context"
	"time"
)

// CommandExecutor runs a privileged shell command.
// Implementation: `sh -c` when already root, `su -c` otherwise.
type CommandExecutor interface {
	// Exec runs command and returns its captured output.
	// A non-zero exit status is not an error; callers interpret the output.
	Exec(ctx context.Context, command string) (CommandResult, error)
}

// ComponentCallback is invoked once per successfully switched component.
type ComponentCallback func(component ComponentDescriptor)

// ComponentController is the contract shared by every blocking backend.
type ComponentController interface {
	// Init warms the backend up. It is idempotent.
	Init(ctx context.Context) error

	// SwitchComponent moves a component to StateEnabled or StateDisabled.
	// Any other state returns false without side effects.
	SwitchComponent(ctx context.Context, component ComponentDescriptor, state ComponentState) (bool, error)

	// Enable is SwitchComponent(StateEnabled).
	Enable(ctx context.Context, component ComponentDescriptor) (bool, error)

	// Disable is SwitchComponent(StateDisabled).
	Disable(ctx context.Context, component ComponentDescriptor) (bool, error)

	// BatchEnable enables every item in order and returns the success count.
	// callback runs once per success. Single failures do not abort the batch.
	BatchEnable(ctx context.Context, components []ComponentDescriptor, callback ComponentCallback) (int, error)

	// BatchDisable is the symmetric of BatchEnable.
	BatchDisable(ctx context.Context, components []ComponentDescriptor, callback ComponentCallback) (int, error)

	// CheckComponentEnableState queries the backend directly, no cache.
	CheckComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error)
}

// AppController performs package level operations.
type AppController interface {
	Init(ctx context.Context) error
	Disable(ctx context.Context, packageName string) (bool, error)
	Enable(ctx context.Context, packageName string) (bool, error)
	ClearData(ctx context.Context, packageName string) (bool, error)
	Uninstall(ctx context.Context, packageName string) (bool, error)
	ForceStop(ctx context.Context, packageName string) (bool, error)
	RefreshRunningAppList(ctx context.Context) error
	IsAppRunning(packageName string) bool
}

// ServiceController queries and controls running services.
type ServiceController interface {
	Init(ctx context.Context) error
	// Load refreshes the running service list for packageName.
	Load(ctx context.Context, packageName string) error
	IsServiceRunning(packageName, serviceName string) bool
	StopService(ctx context.Context, packageName, serviceName string) (bool, error)
	StartService(ctx context.Context, packageName, serviceName string) (bool, error)
}

// PackageInspector reads package metadata from the OS package manager.
type PackageInspector interface {
	// Components returns the declared components of packageName.
	Components(ctx context.Context, packageName string) (PackageComponents, error)

	// IsComponentEnabled reports the package manager enabled flag.
	IsComponentEnabled(ctx context.Context, packageName, componentName string) (bool, error)
}

// ComponentTypeResolver maps a component to its declared kind.
type ComponentTypeResolver interface {
	Resolve(ctx context.Context, packageName, componentName string) (ComponentType, error)
}

// ProcessManager handles OS process queries.
// Implementation: uses gopsutil.
type ProcessManager interface {
	// FindByName returns PIDs of processes whose name matches pattern.
	FindByName(pattern string) ([]int, error)

	// ProcessNames returns the names of all running processes.
	ProcessNames() ([]string, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}

// RuleStorage reads and writes per-package IFW rule files.
type RuleStorage interface {
	// Read returns the raw rule file, or ErrRuleNotFound.
	Read(ctx context.Context, packageName string) ([]byte, error)

	// Update runs fn under the package lock. current is nil when the file is
	// missing. Returning nil data deletes the file.
	Update(ctx context.Context, packageName string, fn func(current []byte) ([]byte, error)) error

	// Delete removes the rule file if present.
	Delete(ctx context.Context, packageName string) error

	// List returns package names that have a rule file.
	List(ctx context.Context) ([]string, error)

	// CheckWritable fails when this process cannot write rule files.
	CheckWritable(ctx context.Context) error

	// Dir returns the rule directory in use.
	Dir() string
}

// PreferenceStore persists the user's backend selection.
type PreferenceStore interface {
	Get() (Preference, error)
	Set(pref Preference) error
	// Watch emits the current preference and then every change.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context, interval time.Duration) <-chan Preference
	Close() error
}

// Broker is a privileged IPC broker (Shizuku-style).
// Listener registration returns a function that removes the listener.
type Broker interface {
	// AddBinderReceivedListenerSticky fires fn now if the binder is alive,
	// and again whenever it is received.
	AddBinderReceivedListenerSticky(fn func()) (remove func())
	AddBinderDeadListener(fn func()) (remove func())
	AddRequestPermissionResultListener(fn func(requestCode int, granted bool)) (remove func())

	IsPreV11() bool
	CheckSelfPermission() (bool, error)
	ShouldShowRequestPermissionRationale() bool
	RequestPermission(requestCode int) error
	UID() (int, error)

	// ComponentManager returns a proxy to the package service.
	ComponentManager() (ComponentManagerProxy, error)
}

// ComponentManagerProxy is the broker-side package service.
type ComponentManagerProxy interface {
	SetComponentEnabledSetting(ctx context.Context, packageName, componentName string, state ComponentState, flags int, userID int) error
}

// DaemonRegistry tracks the watcher daemon.
type DaemonRegistry interface {
	// Register records the starting daemon.
	Register(state DaemonState) error

	// Heartbeat updates liveness and the preference the daemon applies.
	Heartbeat(pref Preference, status PermissionStatus) error

	// Get returns the recorded state, or nil if none.
	Get() (*DaemonState, error)

	// IsAlive reports whether the recorded daemon pid is running.
	IsAlive() (bool, error)

	// Clear removes the record.
	Clear() error
}
