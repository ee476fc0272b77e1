package fixtures

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// FakeInspector is an in-memory domain.PackageInspector.
type FakeInspector struct {
	mu       sync.Mutex
	packages map[string]domain.PackageComponents
	disabled map[string]bool
	lookups  int

	// Err, when set, is returned by every call.
	Err error
}

// NewFakeInspector creates an inspector with no packages.
func NewFakeInspector() *FakeInspector {
	return &FakeInspector{
		packages: make(map[string]domain.PackageComponents),
		disabled: make(map[string]bool),
	}
}

// AddPackage declares the components of a package.
func (f *FakeInspector) AddPackage(p domain.PackageComponents) *FakeInspector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[p.PackageName] = p
	return f
}

// SetEnabled sets the package manager flag of a component.
func (f *FakeInspector) SetEnabled(packageName, componentName string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[domain.ExpandClassName(packageName, componentName)] = !enabled
}

// Lookups returns how many times Components was called.
func (f *FakeInspector) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// Components implements domain.PackageInspector.
func (f *FakeInspector) Components(ctx context.Context, packageName string) (domain.PackageComponents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.Err != nil {
		return domain.PackageComponents{PackageName: packageName}, f.Err
	}
	if p, ok := f.packages[packageName]; ok {
		return p, nil
	}
	return domain.PackageComponents{PackageName: packageName}, nil
}

// IsComponentEnabled implements domain.PackageInspector.
func (f *FakeInspector) IsComponentEnabled(ctx context.Context, packageName, componentName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	return !f.disabled[domain.ExpandClassName(packageName, componentName)], nil
}

// Ensure FakeInspector implements domain.PackageInspector.
var _ domain.PackageInspector = (*FakeInspector)(nil)
