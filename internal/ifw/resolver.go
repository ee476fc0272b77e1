package ifw

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// PackageTypeResolver implements domain.ComponentTypeResolver with the
// package inspector. Declared components are cached per package since they
// only change on app update; call Reset after installs.
type PackageTypeResolver struct {
	inspector domain.PackageInspector
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]domain.PackageComponents
}

// NewPackageTypeResolver creates a resolver backed by inspector.
func NewPackageTypeResolver(inspector domain.PackageInspector, logger *zap.Logger) *PackageTypeResolver {
	return &PackageTypeResolver{
		inspector: inspector,
		logger:    logger,
		cache:     make(map[string]domain.PackageComponents),
	}
}

// Resolve returns the declared kind of componentName in packageName.
func (r *PackageTypeResolver) Resolve(ctx context.Context, packageName, componentName string) (domain.ComponentType, error) {
	components, err := r.components(ctx, packageName)
	if err != nil {
		return domain.ComponentUnknown, err
	}
	kind := components.TypeOf(componentName)
	if kind == domain.ComponentUnknown {
		r.logger.Debug("component type not resolved",
			zap.String("package", packageName),
			zap.String("component", componentName))
	}
	return kind, nil
}

// Reset drops cached package metadata.
func (r *PackageTypeResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]domain.PackageComponents)
}

func (r *PackageTypeResolver) components(ctx context.Context, packageName string) (domain.PackageComponents, error) {
	r.mu.Lock()
	cached, ok := r.cache[packageName]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	components, err := r.inspector.Components(ctx, packageName)
	if err != nil {
		return components, err
	}

	r.mu.Lock()
	r.cache[packageName] = components
	r.mu.Unlock()
	return components, nil
}

// resolveKind prefers the kind carried by the descriptor.
func resolveKind(ctx context.Context, resolver domain.ComponentTypeResolver, c domain.ComponentDescriptor) (domain.ComponentType, error) {
	if c.Type != domain.ComponentUnknown {
		return c.Type, nil
	}
	return resolver.Resolve(ctx, c.PackageName, c.Name)
}

// Ensure PackageTypeResolver implements domain.ComponentTypeResolver.
var _ domain.ComponentTypeResolver = (*PackageTypeResolver)(nil)
