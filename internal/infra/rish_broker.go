package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

const defaultRishPath = "rish"

// RishBroker implements domain.Broker on top of Shizuku's `rish` shell.
// rish cannot show the permission prompt itself: the user grants access in
// the Shizuku app, so a denied probe always asks for rationale instead.
type RishBroker struct {
	executor domain.CommandExecutor
	logger   *zap.Logger

	mu             sync.Mutex
	nextID         int
	binderReceived map[int]func()
	binderDead     map[int]func()
	permResult     map[int]func(int, bool)
}

// NewRishBroker creates a broker that runs commands through rishPath.
func NewRishBroker(rishPath string, logger *zap.Logger) *RishBroker {
	if rishPath == "" {
		rishPath = defaultRishPath
	}
	// rish takes the same "-c <command>" form as su.
	executor := NewShellExecutor(&ExecModeConfig{Mode: ExecModeUser}, rishPath, logger)
	return NewRishBrokerWithExecutor(executor, logger)
}

// NewRishBrokerWithExecutor creates a broker with a custom executor (for testing).
func NewRishBrokerWithExecutor(executor domain.CommandExecutor, logger *zap.Logger) *RishBroker {
	return &RishBroker{
		executor:       executor,
		logger:         logger,
		binderReceived: make(map[int]func()),
		binderDead:     make(map[int]func()),
		permResult:     make(map[int]func(int, bool)),
	}
}

// AddBinderReceivedListenerSticky calls fn on a new goroutine if the broker
// answers right now.
func (b *RishBroker) AddBinderReceivedListenerSticky(fn func()) func() {
	id := b.register(func(id int) { b.binderReceived[id] = fn })
	if b.pingBinder() {
		go fn()
	} else {
		b.notifyDead()
	}
	return func() { b.unregister(func() { delete(b.binderReceived, id) }) }
}

// AddBinderDeadListener registers fn for broker loss.
func (b *RishBroker) AddBinderDeadListener(fn func()) func() {
	id := b.register(func(id int) { b.binderDead[id] = fn })
	return func() { b.unregister(func() { delete(b.binderDead, id) }) }
}

// AddRequestPermissionResultListener registers fn for permission results.
func (b *RishBroker) AddRequestPermissionResultListener(fn func(requestCode int, granted bool)) func() {
	id := b.register(func(id int) { b.permResult[id] = fn })
	return func() { b.unregister(func() { delete(b.permResult, id) }) }
}

// IsPreV11 is always false: rish ships with Shizuku v11 and later.
func (b *RishBroker) IsPreV11() bool {
	return false
}

// CheckSelfPermission reports whether rish can run commands for us.
func (b *RishBroker) CheckSelfPermission() (bool, error) {
	if _, err := b.UID(); err != nil {
		return false, nil
	}
	return true, nil
}

// ShouldShowRequestPermissionRationale is true whenever permission is
// missing, since the prompt lives in the Shizuku app.
func (b *RishBroker) ShouldShowRequestPermissionRationale() bool {
	granted, _ := b.CheckSelfPermission()
	return !granted
}

// RequestPermission cannot prompt; it reports the current state to the
// result listeners asynchronously.
func (b *RishBroker) RequestPermission(requestCode int) error {
	granted, _ := b.CheckSelfPermission()
	b.mu.Lock()
	listeners := make([]func(int, bool), 0, len(b.permResult))
	for _, fn := range b.permResult {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	go func() {
		for _, fn := range listeners {
			fn(requestCode, granted)
		}
	}()
	return nil
}

// UID returns the uid the broker runs commands as.
func (b *RishBroker) UID() (int, error) {
	result, err := b.executor.Exec(context.Background(), "id -u")
	if err != nil {
		return -1, err
	}
	if result.ExitCode != 0 {
		return -1, fmt.Errorf("%w: %s", domain.ErrBrokerNotRunning, strings.TrimSpace(result.Combined()))
	}
	uid, err := strconv.Atoi(strings.TrimSpace(result.Output()))
	if err != nil {
		return -1, fmt.Errorf("unexpected id output %q: %w", result.Output(), err)
	}
	return uid, nil
}

// ComponentManager returns a proxy issuing pm calls through rish.
func (b *RishBroker) ComponentManager() (domain.ComponentManagerProxy, error) {
	return &rishComponentManager{executor: b.executor, logger: b.logger}, nil
}

func (b *RishBroker) pingBinder() bool {
	_, err := b.UID()
	return err == nil
}

func (b *RishBroker) notifyDead() {
	b.mu.Lock()
	listeners := make([]func(), 0, len(b.binderDead))
	for _, fn := range b.binderDead {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (b *RishBroker) register(store func(id int)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	store(b.nextID)
	return b.nextID
}

func (b *RishBroker) unregister(drop func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	drop()
}

// rishComponentManager issues the call and does not read back the result.
type rishComponentManager struct {
	executor domain.CommandExecutor
	logger   *zap.Logger
}

func (m *rishComponentManager) SetComponentEnabledSetting(ctx context.Context, packageName, componentName string, state domain.ComponentState, flags int, userID int) error {
	verb, ok := pmVerbs[state]
	if !ok {
		return fmt.Errorf("unsupported component state %s", state)
	}
	command := EscapeShellVariables(fmt.Sprintf("pm %s --user %d %s/%s", verb, userID, packageName, componentName))
	m.logger.Debug("broker call", zap.String("command", command), zap.Int("flags", flags))
	_, err := m.executor.Exec(ctx, command)
	return err
}

var pmVerbs = map[domain.ComponentState]string{
	domain.StateDefault:      "default-state",
	domain.StateEnabled:      "enable",
	domain.StateDisabled:     "disable",
	domain.StateDisabledUser: "disable-user",
}

// Ensure RishBroker implements domain.Broker.
var _ domain.Broker = (*RishBroker)(nil)
