package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/infra"
)

// RootController switches components with `pm enable/disable` in a root
// shell. State is read back through the package inspector.
type RootController struct {
	executor  domain.CommandExecutor
	inspector domain.PackageInspector
	userID    int
	logger    *zap.Logger
}

// NewRootController creates a pm based controller for userID.
func NewRootController(executor domain.CommandExecutor, inspector domain.PackageInspector, userID int, logger *zap.Logger) *RootController {
	return &RootController{
		executor:  executor,
		inspector: inspector,
		userID:    userID,
		logger:    logger,
	}
}

// Init verifies the executor really runs as root.
func (c *RootController) Init(ctx context.Context) error {
	uid, err := probeUID(ctx, c.executor)
	if err != nil {
		return &domain.ControllerError{Op: "init root", Err: fmt.Errorf("%w: %v", domain.ErrPrivilegeUnavailable, err)}
	}
	if uid != domain.RootUID {
		return &domain.ControllerError{Op: "init root", Err: fmt.Errorf("%w: running as uid %d", domain.ErrPrivilegeUnavailable, uid)}
	}
	return nil
}

// SwitchComponent runs the pm command for state.
func (c *RootController) SwitchComponent(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) (bool, error) {
	command, ok := infra.BuildSwitchCommand(c.userID, component.PackageName, component.Name, state)
	if !ok {
		c.logger.Debug("unsupported component state",
			zap.String("component", component.FlattenToString()),
			zap.Stringer("state", state))
		return false, nil
	}

	c.logger.Info("switch component",
		zap.String("component", component.FlattenToString()),
		zap.Stringer("state", state))

	result, err := c.executor.Exec(ctx, command)
	if err != nil {
		return false, fmt.Errorf("failed to run %q: %w", command, err)
	}
	if !infra.IsPMCommandSuccess(result) {
		c.logger.Warn("pm rejected component",
			zap.String("component", component.FlattenToString()),
			zap.String("output", result.Combined()))
		return false, nil
	}
	return true, nil
}

func (c *RootController) Enable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateEnabled)
}

func (c *RootController) Disable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateDisabled)
}

func (c *RootController) BatchEnable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return runBatch(ctx, c.logger, "enable", components, callback, c.Enable)
}

func (c *RootController) BatchDisable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return runBatch(ctx, c.logger, "disable", components, callback, c.Disable)
}

// CheckComponentEnableState reads the package manager flag.
func (c *RootController) CheckComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error) {
	return c.inspector.IsComponentEnabled(ctx, packageName, componentName)
}

// probeUID runs `id -u` through executor.
func probeUID(ctx context.Context, executor domain.CommandExecutor) (int, error) {
	result, err := executor.Exec(ctx, "id -u")
	if err != nil {
		return -1, err
	}
	if result.ExitCode != 0 {
		return -1, fmt.Errorf("id -u exited with %d: %s", result.ExitCode, strings.TrimSpace(result.Combined()))
	}
	uid, err := strconv.Atoi(strings.TrimSpace(result.Output()))
	if err != nil {
		return -1, fmt.Errorf("unexpected id output %q: %w", result.Output(), err)
	}
	return uid, nil
}

// Ensure RootController implements domain.ComponentController.
var _ domain.ComponentController = (*RootController)(nil)
