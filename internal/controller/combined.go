package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// Outcome records which layers accepted a combined operation.
type Outcome int

const (
	BothFailed Outcome = iota
	IfwOnly
	BackendOnly
	BothSucceeded
)

func (o Outcome) String() string {
	switch o {
	case BothSucceeded:
		return "both"
	case IfwOnly:
		return "ifw-only"
	case BackendOnly:
		return "backend-only"
	default:
		return "none"
	}
}

// Succeeded reports whether both layers accepted the operation.
func (o Outcome) Succeeded() bool {
	return o == BothSucceeded
}

func outcomeOf(ifwOK, backendOK bool) Outcome {
	switch {
	case ifwOK && backendOK:
		return BothSucceeded
	case ifwOK:
		return IfwOnly
	case backendOK:
		return BackendOnly
	default:
		return BothFailed
	}
}

// ItemOutcome is the per component result of ApplyEach.
type ItemOutcome struct {
	Component domain.ComponentDescriptor
	Outcome   Outcome
}

// CombinedController blocks with the Intent Firewall and a package manager
// backend at once. Writes need both layers; a component reads as enabled if
// either layer still allows it. A half applied item is not rolled back.
type CombinedController struct {
	ifw     domain.ComponentController
	backend domain.ComponentController
	logger  *zap.Logger
}

// NewCombinedController pairs an IFW controller with backend.
func NewCombinedController(ifw, backend domain.ComponentController, logger *zap.Logger) *CombinedController {
	return &CombinedController{ifw: ifw, backend: backend, logger: logger}
}

// Init initializes the backend layer only.
func (c *CombinedController) Init(ctx context.Context) error {
	return c.backend.Init(ctx)
}

func (c *CombinedController) SwitchComponent(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) (bool, error) {
	if state != domain.StateEnabled && state != domain.StateDisabled {
		return false, nil
	}
	outcome := c.apply(ctx, component, state)
	return outcome.Succeeded(), nil
}

func (c *CombinedController) Enable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateEnabled)
}

func (c *CombinedController) Disable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateDisabled)
}

func (c *CombinedController) BatchEnable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return runBatch(ctx, c.logger, "enable", components, callback, c.Enable)
}

func (c *CombinedController) BatchDisable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return runBatch(ctx, c.logger, "disable", components, callback, c.Disable)
}

// CheckComponentEnableState is true when either layer reports enabled.
func (c *CombinedController) CheckComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error) {
	ifwEnabled, ifwErr := c.ifw.CheckComponentEnableState(ctx, packageName, componentName)
	backendEnabled, backendErr := c.backend.CheckComponentEnableState(ctx, packageName, componentName)
	if ifwErr != nil && backendErr != nil {
		return false, ifwErr
	}
	if ifwErr != nil {
		c.logger.Warn("ifw state unavailable", zap.String("package", packageName), zap.Error(ifwErr))
	}
	if backendErr != nil {
		c.logger.Warn("backend state unavailable", zap.String("package", packageName), zap.Error(backendErr))
	}
	return ifwEnabled || backendEnabled, nil
}

// ApplyEach switches every component and reports the outcome per layer.
// Unlike the batch methods it keeps partial results.
func (c *CombinedController) ApplyEach(ctx context.Context, components []domain.ComponentDescriptor, state domain.ComponentState) ([]ItemOutcome, error) {
	outcomes := make([]ItemOutcome, 0, len(components))
	for _, component := range components {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, ItemOutcome{
			Component: component,
			Outcome:   c.apply(ctx, component, state),
		})
	}
	return outcomes, nil
}

func (c *CombinedController) apply(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) Outcome {
	ifwOK, err := c.ifw.SwitchComponent(ctx, component, state)
	if err != nil {
		c.logger.Warn("ifw layer failed",
			zap.String("component", component.FlattenToString()),
			zap.Error(err))
		ifwOK = false
	}
	backendOK, err := c.backend.SwitchComponent(ctx, component, state)
	if err != nil {
		c.logger.Warn("backend layer failed",
			zap.String("component", component.FlattenToString()),
			zap.Error(err))
		backendOK = false
	}

	outcome := outcomeOf(ifwOK, backendOK)
	if !outcome.Succeeded() {
		c.logger.Info("combined switch incomplete",
			zap.String("component", component.FlattenToString()),
			zap.Stringer("state", state),
			zap.Stringer("outcome", outcome))
	}
	return outcome
}

// Ensure CombinedController implements domain.ComponentController.
var _ domain.ComponentController = (*CombinedController)(nil)
