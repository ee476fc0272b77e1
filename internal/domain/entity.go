// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ComponentType is the declared kind of an Android app component.
type ComponentType string

const (
	ComponentActivity ComponentType = "activity"
	ComponentService  ComponentType = "service"
	ComponentReceiver ComponentType = "receiver"
	ComponentProvider ComponentType = "provider"
	ComponentUnknown  ComponentType = ""
)

// ParseComponentType accepts the lowercase kind names used on the CLI.
func ParseComponentType(s string) (ComponentType, error) {
	switch ComponentType(s) {
	case ComponentActivity, ComponentService, ComponentReceiver, ComponentProvider:
		return ComponentType(s), nil
	case "broadcast":
		return ComponentReceiver, nil
	}
	return ComponentUnknown, fmt.Errorf("unknown component type: %q", s)
}

// ComponentState mirrors the raw PackageManager COMPONENT_ENABLED_STATE_* values.
// Only StateEnabled and StateDisabled are accepted by controllers.
type ComponentState int

const (
	StateDefault           ComponentState = 0
	StateEnabled           ComponentState = 1
	StateDisabled          ComponentState = 2
	StateDisabledUser      ComponentState = 3
	StateDisabledUntilUsed ComponentState = 4
)

func (s ComponentState) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateDisabledUser:
		return "disabled-user"
	case StateDisabledUntilUsed:
		return "disabled-until-used"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ComponentDescriptor identifies a component. Identity is (PackageName, Name).
type ComponentDescriptor struct {
	PackageName string
	Name        string
	Type        ComponentType
	Exported    bool
}

// FlattenToString returns "pkg/name", the form used by pm and IFW filters.
func (c ComponentDescriptor) FlattenToString() string {
	return c.PackageName + "/" + c.Name
}

func (c ComponentDescriptor) String() string {
	return c.FlattenToString()
}

// ComponentInfo is a descriptor plus the state of both blocking layers.
// PMBlocked and IFWBlocked are independently authoritative.
type ComponentInfo struct {
	ComponentDescriptor
	PMBlocked  bool
	IFWBlocked bool
	IsRunning  bool
}

// Enabled reports whether neither layer blocks the component.
func (c ComponentInfo) Enabled() bool {
	return !(c.PMBlocked || c.IFWBlocked)
}

// ControllerKind is the user's chosen blocking backend.
type ControllerKind string

const (
	ControllerIFW     ControllerKind = "ifw"
	ControllerPM      ControllerKind = "pm"
	ControllerShizuku ControllerKind = "shizuku"
)

// ParseControllerKind validates a kind read from config or the CLI.
func ParseControllerKind(s string) (ControllerKind, error) {
	switch ControllerKind(s) {
	case ControllerIFW, ControllerPM, ControllerShizuku:
		return ControllerKind(s), nil
	}
	return "", fmt.Errorf("unknown controller kind: %q", s)
}

// Preference is the backend selection as stored by the user.
type Preference struct {
	Kind     ControllerKind
	Combined bool // IFW plus a PM-level backend
}

// DefaultPreference is used until the user picks something else.
var DefaultPreference = Preference{Kind: ControllerIFW}

func (p Preference) String() string {
	if p.Combined {
		return string(p.Kind) + "+combined"
	}
	return string(p.Kind)
}

// PermissionStatus is the privilege level acquired by a controller family.
type PermissionStatus int

const (
	NoPermission PermissionStatus = iota
	ShellUser
	RootUser
)

func (s PermissionStatus) String() string {
	switch s {
	case ShellUser:
		return "shell"
	case RootUser:
		return "root"
	default:
		return "none"
	}
}

// Granted reports whether any privilege was acquired.
func (s PermissionStatus) Granted() bool {
	return s != NoPermission
}

// Well-known Android uids.
const (
	RootUID  = 0
	ShellUID = 2000
)

// PermissionFromUID maps the uid a privilege probe reports to a status.
func PermissionFromUID(uid int) PermissionStatus {
	switch uid {
	case RootUID:
		return RootUser
	case ShellUID:
		return ShellUser
	default:
		return NoPermission
	}
}

// ControllerFamily groups controller kinds that share a privilege source.
type ControllerFamily string

const (
	// FamilyRootAPI backs both the PM and IFW kinds.
	FamilyRootAPI ControllerFamily = "root-api"
	// FamilyBroker backs the Shizuku kind.
	FamilyBroker ControllerFamily = "broker"
)

// FamilyOf returns the privilege family a kind is acquired through.
// IFW still relies on root apis, so it shares the RootAPI family.
func FamilyOf(kind ControllerKind) ControllerFamily {
	if kind == ControllerShizuku {
		return FamilyBroker
	}
	return FamilyRootAPI
}

// AppServiceStatus is a cached snapshot of a package's services.
type AppServiceStatus struct {
	PackageName string `json:"package_name"`
	Running     int    `json:"running"`
	Blocked     int    `json:"blocked"`
	Total       int    `json:"total"`
}

// PackageComponents lists declared components of a package by kind.
type PackageComponents struct {
	PackageName string
	Activities  []string
	Services    []string
	Receivers   []string
	Providers   []string
}

// TypeOf returns the declared kind of name, or ComponentUnknown.
// Short names (".Foo") and fully qualified names match each other.
func (p PackageComponents) TypeOf(name string) ComponentType {
	want := ExpandClassName(p.PackageName, name)
	for _, group := range []struct {
		names []string
		kind  ComponentType
	}{
		{p.Receivers, ComponentReceiver},
		{p.Services, ComponentService},
		{p.Activities, ComponentActivity},
		{p.Providers, ComponentProvider},
	} {
		for _, n := range group.names {
			if ExpandClassName(p.PackageName, n) == want {
				return group.kind
			}
		}
	}
	return ComponentUnknown
}

// All returns every declared component as a descriptor.
func (p PackageComponents) All() []ComponentDescriptor {
	var out []ComponentDescriptor
	add := func(names []string, kind ComponentType) {
		for _, n := range names {
			out = append(out, ComponentDescriptor{PackageName: p.PackageName, Name: n, Type: kind})
		}
	}
	add(p.Activities, ComponentActivity)
	add(p.Services, ComponentService)
	add(p.Receivers, ComponentReceiver)
	add(p.Providers, ComponentProvider)
	return out
}

// ExpandClassName turns a manifest short name (".MainActivity") into a
// fully qualified class name.
func ExpandClassName(packageName, name string) string {
	if strings.HasPrefix(name, ".") {
		return packageName + name
	}
	return name
}

// CommandResult is the raw outcome of a privileged shell command.
type CommandResult struct {
	Command  string
	Out      []string
	Err      []string
	ExitCode int
}

// Output joins stdout lines.
func (r CommandResult) Output() string {
	return strings.Join(r.Out, "\n")
}

// Combined joins stdout and stderr lines.
func (r CommandResult) Combined() string {
	return strings.Join(append(append([]string{}, r.Out...), r.Err...), "\n")
}

// BatchResult is the outcome of one batch request.
type BatchResult struct {
	ID         string         `json:"id"`
	Controller string         `json:"controller"`
	State      ComponentState `json:"state"`
	Requested  int            `json:"requested"`
	Succeeded  []string       `json:"succeeded"`
	ExecutedAt time.Time      `json:"executed_at"`
	DurationMs int64          `json:"duration_ms"`
}

// Failed returns the number of requested components that did not switch.
func (r BatchResult) Failed() int {
	return r.Requested - len(r.Succeeded)
}

// DaemonState is what the running watcher publishes about itself.
type DaemonState struct {
	PID           int    `json:"pid"`
	Version       string `json:"version"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	Preference    string `json:"preference"`
	Permission    string `json:"permission"`
}
