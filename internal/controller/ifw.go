package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/ifw"
)

// IfwController blocks components by adding Intent Firewall filters.
type IfwController struct {
	firewall *ifw.IntentFirewall
	logger   *zap.Logger
}

// NewIfwController creates a controller on top of firewall.
func NewIfwController(firewall *ifw.IntentFirewall, logger *zap.Logger) *IfwController {
	return &IfwController{firewall: firewall, logger: logger}
}

// Init verifies the rule directory can be locked and written.
func (c *IfwController) Init(ctx context.Context) error {
	if err := c.firewall.CheckWritable(ctx); err != nil {
		return &domain.ControllerError{Op: "init ifw", Err: fmt.Errorf("%w: %v", domain.ErrPrivilegeUnavailable, err)}
	}
	return nil
}

func (c *IfwController) SwitchComponent(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) (bool, error) {
	return switchByState(ctx, component, state, c.Enable, c.Disable)
}

// Enable removes the component's filter.
func (c *IfwController) Enable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.firewall.Remove(ctx, component)
}

// Disable adds a filter for the component.
func (c *IfwController) Disable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.firewall.Add(ctx, component)
}

func (c *IfwController) BatchEnable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	if len(components) == 0 {
		c.logger.Warn("no component to enable")
		return 0, nil
	}
	return c.firewall.RemoveAll(ctx, components, callback)
}

func (c *IfwController) BatchDisable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	if len(components) == 0 {
		c.logger.Warn("no component to disable")
		return 0, nil
	}
	return c.firewall.AddAll(ctx, components, callback)
}

// CheckComponentEnableState parses the package's current rule file.
func (c *IfwController) CheckComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error) {
	return c.firewall.GetComponentEnableState(ctx, packageName, componentName)
}

// Ensure IfwController implements domain.ComponentController.
var _ domain.ComponentController = (*IfwController)(nil)
