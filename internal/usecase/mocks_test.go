package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// fakeController keeps a blocked set per component.
type fakeController struct {
	mu       sync.Mutex
	blocked  map[string]bool
	reject   map[string]bool
	checkErr error
	switches int
}

func newFakeController() *fakeController {
	return &fakeController{blocked: make(map[string]bool), reject: make(map[string]bool)}
}

func (c *fakeController) Init(ctx context.Context) error { return nil }

func (c *fakeController) SwitchComponent(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switches++
	key := component.FlattenToString()
	if c.reject[key] {
		return false, nil
	}
	switch state {
	case domain.StateEnabled:
		delete(c.blocked, key)
	case domain.StateDisabled:
		c.blocked[key] = true
	default:
		return false, nil
	}
	return true, nil
}

func (c *fakeController) Enable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateEnabled)
}

func (c *fakeController) Disable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateDisabled)
}

func (c *fakeController) BatchEnable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return c.batch(ctx, components, callback, domain.StateEnabled)
}

func (c *fakeController) BatchDisable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return c.batch(ctx, components, callback, domain.StateDisabled)
}

func (c *fakeController) batch(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback, state domain.ComponentState) (int, error) {
	n := 0
	for _, component := range components {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if ok, _ := c.SwitchComponent(ctx, component, state); ok {
			n++
			callback(component)
		}
	}
	return n, nil
}

func (c *fakeController) CheckComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkErr != nil {
		return false, c.checkErr
	}
	return !c.blocked[packageName+"/"+componentName], nil
}

// fakeServices reports a fixed set of running services.
type fakeServices struct {
	running map[string]bool
	loadErr error
	loads   int
}

func (s *fakeServices) Init(ctx context.Context) error { return nil }

func (s *fakeServices) Load(ctx context.Context, packageName string) error {
	s.loads++
	return s.loadErr
}

func (s *fakeServices) IsServiceRunning(packageName, serviceName string) bool {
	return s.running[packageName+"/"+serviceName]
}

func (s *fakeServices) StopService(ctx context.Context, packageName, serviceName string) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *fakeServices) StartService(ctx context.Context, packageName, serviceName string) (bool, error) {
	return false, errors.New("not implemented")
}

// staticSource always returns the same controller.
type staticSource struct {
	ctrl domain.ComponentController
	pref domain.Preference
}

func (s *staticSource) Current() (domain.ComponentController, domain.Preference) {
	return s.ctrl, s.pref
}

// fakeGate grants a fixed status.
type fakeGate struct {
	status domain.PermissionStatus
	err    error
	kinds  []domain.ControllerKind
}

func (g *fakeGate) Ensure(ctx context.Context, kind domain.ControllerKind) (domain.PermissionStatus, error) {
	g.kinds = append(g.kinds, kind)
	return g.status, g.err
}

var (
	_ domain.ComponentController = (*fakeController)(nil)
	_ domain.ServiceController   = (*fakeServices)(nil)
)
