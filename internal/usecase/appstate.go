package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// AppStateCache keeps a per package snapshot of service state. Entries are
// not refreshed on their own; Invalidate after changing a package.
type AppStateCache struct {
	inspector domain.PackageInspector
	ifw       domain.ComponentController
	pm        domain.ComponentController
	services  domain.ServiceController
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]domain.AppServiceStatus
}

// NewAppStateCache creates an empty cache. ifw and pm answer the blocked
// state of each layer.
func NewAppStateCache(
	inspector domain.PackageInspector,
	ifw domain.ComponentController,
	pm domain.ComponentController,
	services domain.ServiceController,
	logger *zap.Logger,
) *AppStateCache {
	return &AppStateCache{
		inspector: inspector,
		ifw:       ifw,
		pm:        pm,
		services:  services,
		logger:    logger,
		cache:     make(map[string]domain.AppServiceStatus),
	}
}

// Get returns the cached status of packageName, computing it on a miss.
func (a *AppStateCache) Get(ctx context.Context, packageName string) (domain.AppServiceStatus, error) {
	if status := a.GetOrNil(packageName); status != nil {
		return *status, nil
	}

	status, err := a.compute(ctx, packageName)
	if err != nil {
		return status, err
	}

	a.mu.Lock()
	a.cache[packageName] = status
	a.mu.Unlock()
	return status, nil
}

// GetOrNil returns the cached status without computing it.
func (a *AppStateCache) GetOrNil(packageName string) *domain.AppServiceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	status, ok := a.cache[packageName]
	if !ok {
		return nil
	}
	return &status
}

// Invalidate drops the entry of packageName.
func (a *AppStateCache) Invalidate(packageName string) {
	a.mu.Lock()
	delete(a.cache, packageName)
	a.mu.Unlock()
}

// Clear drops every entry.
func (a *AppStateCache) Clear() {
	a.mu.Lock()
	a.cache = make(map[string]domain.AppServiceStatus)
	a.mu.Unlock()
}

func (a *AppStateCache) compute(ctx context.Context, packageName string) (domain.AppServiceStatus, error) {
	status := domain.AppServiceStatus{PackageName: packageName}

	components, err := a.inspector.Components(ctx, packageName)
	if err != nil {
		return status, fmt.Errorf("failed to read components of %s: %w", packageName, err)
	}
	if err := a.services.Load(ctx, packageName); err != nil {
		a.logger.Warn("cannot load running services",
			zap.String("package", packageName),
			zap.Error(err))
	}

	for _, service := range components.Services {
		status.Total++
		if a.services.IsServiceRunning(packageName, service) {
			status.Running++
		}
		if a.blocked(ctx, packageName, service) {
			status.Blocked++
		}
	}

	a.logger.Debug("computed app state",
		zap.String("package", packageName),
		zap.Int("running", status.Running),
		zap.Int("blocked", status.Blocked),
		zap.Int("total", status.Total))
	return status, nil
}

// blocked is true when either layer disables the service. A layer that
// cannot answer counts as not blocking.
func (a *AppStateCache) blocked(ctx context.Context, packageName, service string) bool {
	for _, layer := range []domain.ComponentController{a.ifw, a.pm} {
		enabled, err := layer.CheckComponentEnableState(ctx, packageName, service)
		if err != nil {
			a.logger.Debug("cannot check component state",
				zap.String("component", packageName+"/"+service),
				zap.Error(err))
			continue
		}
		if !enabled {
			return true
		}
	}
	return false
}
