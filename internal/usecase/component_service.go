// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/metrics"
)

// ControllerSource returns the controller for the current preference.
type ControllerSource interface {
	Current() (domain.ComponentController, domain.Preference)
}

// PrivilegeGate makes sure the privilege a controller kind needs is held.
type PrivilegeGate interface {
	Ensure(ctx context.Context, kind domain.ControllerKind) (domain.PermissionStatus, error)
}

// ComponentService runs component operations on the active controller.
type ComponentService struct {
	controllers ControllerSource
	privileges  PrivilegeGate
	appState    *AppStateCache
	metrics     *metrics.Registry
	logger      *zap.Logger
}

// NewComponentService creates a component service. appState and m may be nil.
func NewComponentService(
	controllers ControllerSource,
	privileges PrivilegeGate,
	appState *AppStateCache,
	m *metrics.Registry,
	logger *zap.Logger,
) *ComponentService {
	return &ComponentService{
		controllers: controllers,
		privileges:  privileges,
		appState:    appState,
		metrics:     m,
		logger:      logger,
	}
}

// Active returns the current controller once its privilege is acquired.
func (s *ComponentService) Active(ctx context.Context) (domain.ComponentController, domain.Preference, error) {
	ctrl, pref := s.controllers.Current()
	status, err := s.privileges.Ensure(ctx, pref.Kind)
	if err != nil {
		return nil, pref, fmt.Errorf("failed to acquire privilege for %s: %w", pref, err)
	}
	if !status.Granted() {
		return nil, pref, &domain.ControllerError{Op: "select " + pref.String(), Err: domain.ErrPrivilegeUnavailable}
	}
	return ctrl, pref, nil
}

// Switch moves one component to state on the active controller.
func (s *ComponentService) Switch(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) (bool, error) {
	ctrl, pref, err := s.Active(ctx)
	if err != nil {
		return false, err
	}

	ok, err := ctrl.SwitchComponent(ctx, component, state)
	if s.metrics != nil {
		s.metrics.RecordSwitch(pref.String(), state.String(), ok && err == nil)
	}
	s.invalidate(component.PackageName)
	if err != nil {
		return false, err
	}

	s.logger.Info("component switched",
		zap.String("component", component.FlattenToString()),
		zap.Stringer("state", state),
		zap.String("controller", pref.String()),
		zap.Bool("success", ok))
	return ok, nil
}

// Batch switches components in order and reports which succeeded. The
// returned result is valid even when err is set.
func (s *ComponentService) Batch(ctx context.Context, components []domain.ComponentDescriptor, state domain.ComponentState) (*domain.BatchResult, error) {
	start := time.Now()
	result := &domain.BatchResult{
		ID:         uuid.NewString(),
		State:      state,
		Requested:  len(components),
		Succeeded:  make([]string, 0, len(components)),
		ExecutedAt: start,
	}
	logger := s.logger.With(zap.String("batch_id", result.ID))

	ctrl, pref, err := s.Active(ctx)
	result.Controller = pref.String()
	if err != nil {
		return result, err
	}

	var batch func(context.Context, []domain.ComponentDescriptor, domain.ComponentCallback) (int, error)
	switch state {
	case domain.StateEnabled:
		batch = ctrl.BatchEnable
	case domain.StateDisabled:
		batch = ctrl.BatchDisable
	default:
		return result, fmt.Errorf("unsupported batch state %s", state)
	}

	logger.Info("batch started",
		zap.String("controller", result.Controller),
		zap.Stringer("state", state),
		zap.Int("components", len(components)))

	count, err := batch(ctx, components, func(c domain.ComponentDescriptor) {
		result.Succeeded = append(result.Succeeded, c.FlattenToString())
	})

	result.DurationMs = time.Since(start).Milliseconds()
	if s.metrics != nil {
		s.metrics.RecordBatch(result.Controller, state.String(), count, len(components), time.Since(start))
	}
	seen := make(map[string]bool)
	for _, c := range components {
		if !seen[c.PackageName] {
			seen[c.PackageName] = true
			s.invalidate(c.PackageName)
		}
	}

	logger.Info("batch finished",
		zap.Int("succeeded", count),
		zap.Int("failed", result.Failed()),
		zap.Int64("duration_ms", result.DurationMs))
	return result, err
}

// Check reports whether the active controller sees the component enabled.
func (s *ComponentService) Check(ctx context.Context, packageName, componentName string) (bool, error) {
	ctrl, _, err := s.Active(ctx)
	if err != nil {
		return false, err
	}
	return ctrl.CheckComponentEnableState(ctx, packageName, componentName)
}

// AppState returns the service snapshot of packageName.
func (s *ComponentService) AppState(ctx context.Context, packageName string) (domain.AppServiceStatus, error) {
	if s.appState == nil {
		return domain.AppServiceStatus{PackageName: packageName}, fmt.Errorf("app state cache not configured")
	}
	if _, _, err := s.Active(ctx); err != nil {
		return domain.AppServiceStatus{PackageName: packageName}, err
	}
	return s.appState.Get(ctx, packageName)
}

func (s *ComponentService) invalidate(packageName string) {
	if s.appState != nil {
		s.appState.Invalidate(packageName)
	}
}
