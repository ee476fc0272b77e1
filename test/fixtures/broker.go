package fixtures

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// FakeBroker is a scriptable domain.Broker. Listeners fire on their own
// goroutine like binder callbacks do.
type FakeBroker struct {
	mu sync.Mutex

	// Alive makes the sticky listener fire; otherwise dead listeners fire.
	Alive bool
	// PreV11 reports an unsupported broker version.
	PreV11 bool
	// Granted is the current permission state.
	Granted bool
	// Rationale is the answer to ShouldShowRequestPermissionRationale.
	Rationale bool
	// GrantOnRequest is the result delivered after RequestPermission.
	GrantOnRequest bool
	// SilentRequest swallows RequestPermission without a result.
	SilentRequest bool
	// ResultCode overrides the request code in delivered results when set.
	ResultCode int
	// UIDValue and UIDErr are returned by UID.
	UIDValue int
	UIDErr   error
	// ProxyErr is returned by ComponentManager.
	ProxyErr error

	Proxy *FakeComponentManager

	requests []int
	nextID   int
	received map[int]func()
	dead     map[int]func()
	results  map[int]func(int, bool)
}

// NewFakeBroker creates a live broker running as uid.
func NewFakeBroker(uid int) *FakeBroker {
	return &FakeBroker{
		Alive:    true,
		UIDValue: uid,
		Proxy:    &FakeComponentManager{},
		received: make(map[int]func()),
		dead:     make(map[int]func()),
		results:  make(map[int]func(int, bool)),
	}
}

func (b *FakeBroker) AddBinderReceivedListenerSticky(fn func()) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.received[id] = fn
	alive := b.Alive
	b.mu.Unlock()

	if alive {
		go fn()
	} else {
		go b.fireDead()
	}
	return func() {
		b.mu.Lock()
		delete(b.received, id)
		b.mu.Unlock()
	}
}

func (b *FakeBroker) AddBinderDeadListener(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.dead[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.dead, id)
		b.mu.Unlock()
	}
}

func (b *FakeBroker) AddRequestPermissionResultListener(fn func(int, bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.results[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.results, id)
		b.mu.Unlock()
	}
}

func (b *FakeBroker) IsPreV11() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.PreV11
}

func (b *FakeBroker) CheckSelfPermission() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Granted, nil
}

func (b *FakeBroker) ShouldShowRequestPermissionRationale() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Rationale
}

func (b *FakeBroker) RequestPermission(requestCode int) error {
	b.mu.Lock()
	b.requests = append(b.requests, requestCode)
	if b.SilentRequest {
		b.mu.Unlock()
		return nil
	}
	granted := b.GrantOnRequest
	b.Granted = granted
	code := requestCode
	if b.ResultCode != 0 {
		code = b.ResultCode
	}
	listeners := make([]func(int, bool), 0, len(b.results))
	for _, fn := range b.results {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	go func() {
		for _, fn := range listeners {
			fn(code, granted)
		}
	}()
	return nil
}

func (b *FakeBroker) UID() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.UIDValue, b.UIDErr
}

func (b *FakeBroker) ComponentManager() (domain.ComponentManagerProxy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ProxyErr != nil {
		return nil, b.ProxyErr
	}
	return b.Proxy, nil
}

// DeliverResult fires the permission result listeners as the system would
// once the user answers the prompt.
func (b *FakeBroker) DeliverResult(requestCode int, granted bool) {
	b.mu.Lock()
	b.Granted = granted
	listeners := make([]func(int, bool), 0, len(b.results))
	for _, fn := range b.results {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(requestCode, granted)
	}
}

// Requests returns the request codes passed to RequestPermission.
func (b *FakeBroker) Requests() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.requests...)
}

// Listeners returns the number of registered listeners of all kinds.
func (b *FakeBroker) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.received) + len(b.dead) + len(b.results)
}

func (b *FakeBroker) fireDead() {
	b.mu.Lock()
	listeners := make([]func(), 0, len(b.dead))
	for _, fn := range b.dead {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// ComponentCall is one recorded SetComponentEnabledSetting call.
type ComponentCall struct {
	PackageName string
	Name        string
	State       domain.ComponentState
	UserID      int
}

// FakeComponentManager records calls and never reports the result.
type FakeComponentManager struct {
	mu    sync.Mutex
	calls []ComponentCall

	// Err, when set, is returned by every call.
	Err error
}

func (m *FakeComponentManager) SetComponentEnabledSetting(ctx context.Context, packageName, componentName string, state domain.ComponentState, flags int, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.calls = append(m.calls, ComponentCall{PackageName: packageName, Name: componentName, State: state, UserID: userID})
	return nil
}

// Calls returns the recorded calls.
func (m *FakeComponentManager) Calls() []ComponentCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ComponentCall(nil), m.calls...)
}

// Ensure FakeBroker implements domain.Broker.
var _ domain.Broker = (*FakeBroker)(nil)
