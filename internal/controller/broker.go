package controller

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// BrokerController switches components through the broker's package
// service proxy. The permission handshake is done by the privilege
// initializer before this controller is used.
//
// SwitchComponent returns true once the call was issued; the broker does not
// report the resulting state. Confirm with CheckComponentEnableState.
type BrokerController struct {
	broker    domain.Broker
	inspector domain.PackageInspector
	userID    int
	logger    *zap.Logger

	once     sync.Once
	proxy    domain.ComponentManagerProxy
	proxyErr error
}

// NewBrokerController creates a broker backed controller for userID.
func NewBrokerController(broker domain.Broker, inspector domain.PackageInspector, userID int, logger *zap.Logger) *BrokerController {
	return &BrokerController{
		broker:    broker,
		inspector: inspector,
		userID:    userID,
		logger:    logger,
	}
}

// Init binds the package service proxy.
func (c *BrokerController) Init(ctx context.Context) error {
	if _, err := c.componentManager(); err != nil {
		return &domain.ControllerError{Op: "init broker", Err: err}
	}
	return nil
}

func (c *BrokerController) SwitchComponent(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState) (bool, error) {
	if state != domain.StateEnabled && state != domain.StateDisabled {
		return false, nil
	}
	proxy, err := c.componentManager()
	if err != nil {
		return false, err
	}

	c.logger.Info("switch component via broker",
		zap.String("component", component.FlattenToString()),
		zap.Stringer("state", state))

	if err := proxy.SetComponentEnabledSetting(ctx, component.PackageName, component.Name, state, 0, c.userID); err != nil {
		return false, fmt.Errorf("broker set component %s: %w", component, err)
	}
	return true, nil
}

func (c *BrokerController) Enable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateEnabled)
}

func (c *BrokerController) Disable(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return c.SwitchComponent(ctx, component, domain.StateDisabled)
}

func (c *BrokerController) BatchEnable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return runBatch(ctx, c.logger, "enable", components, callback, c.Enable)
}

func (c *BrokerController) BatchDisable(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return runBatch(ctx, c.logger, "disable", components, callback, c.Disable)
}

// CheckComponentEnableState reads the package manager flag.
func (c *BrokerController) CheckComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error) {
	return c.inspector.IsComponentEnabled(ctx, packageName, componentName)
}

func (c *BrokerController) componentManager() (domain.ComponentManagerProxy, error) {
	c.once.Do(func() {
		c.proxy, c.proxyErr = c.broker.ComponentManager()
		if c.proxyErr != nil {
			c.proxyErr = fmt.Errorf("%w: %v", domain.ErrBrokerNotRunning, c.proxyErr)
		}
	})
	return c.proxy, c.proxyErr
}

// Ensure BrokerController implements domain.ComponentController.
var _ domain.ComponentController = (*BrokerController)(nil)
