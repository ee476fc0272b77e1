package controller

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// mockController is a testify mock of domain.ComponentController.
type mockController struct {
	mock.Mock
}

func (m *mockController) Init(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockController) SwitchComponent(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) (bool, error) {
	args := m.Called(ctx, component, state)
	return args.Bool(0), args.Error(1)
}

func (m *mockController) Enable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return m.SwitchComponent(ctx, component, domain.StateEnabled)
}

func (m *mockController) Disable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return m.SwitchComponent(ctx, component, domain.StateDisabled)
}

func (m *mockController) BatchEnable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	args := m.Called(ctx, components)
	return args.Int(0), args.Error(1)
}

func (m *mockController) BatchDisable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	args := m.Called(ctx, components)
	return args.Int(0), args.Error(1)
}

func (m *mockController) CheckComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error) {
	args := m.Called(ctx, packageName, componentName)
	return args.Bool(0), args.Error(1)
}

var _ domain.ComponentController = (*mockController)(nil)

// memoryPreferenceStore is an in-memory domain.PreferenceStore.
type memoryPreferenceStore struct {
	pref domain.Preference
	err  error
}

func (s *memoryPreferenceStore) Get() (domain.Preference, error) {
	return s.pref, s.err
}

func (s *memoryPreferenceStore) Set(pref domain.Preference) error {
	s.pref = pref
	return nil
}

func (s *memoryPreferenceStore) Watch(ctx context.Context, _ time.Duration) <-chan domain.Preference {
	return nil
}

func (s *memoryPreferenceStore) Close() error {
	return nil
}

func component(pkg, name string) domain.ComponentDescriptor {
	return domain.ComponentDescriptor{PackageName: pkg, Name: name}
}
