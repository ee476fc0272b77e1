// Package controller implements the component blocking backends: the root
// shell (pm), the privileged broker, the Intent Firewall, and the combined
// dual-layer controller. Selector picks one from the user's preference.
package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

type switchFunc func(ctx context.Context, component domain.ComponentDescriptor) (bool, error)

// runBatch applies fn to each component in order. Failures are logged and
// skipped; callback runs only for successes.
func runBatch(ctx context.Context, logger *zap.Logger, op string, components []domain.ComponentDescriptor, callback domain.ComponentCallback, fn switchFunc) (int, error) {
	if len(components) == 0 {
		logger.Warn("no component to " + op)
		return 0, nil
	}

	succeeded := 0
	for _, c := range components {
		if err := ctx.Err(); err != nil {
			logger.Info("batch cancelled",
				zap.String("op", op),
				zap.Int("succeeded", succeeded),
				zap.Int("total", len(components)))
			return succeeded, err
		}

		ok, err := fn(ctx, c)
		if err != nil {
			logger.Warn("failed to "+op+" component",
				zap.String("component", c.FlattenToString()),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		succeeded++
		if callback != nil {
			callback(c)
		}
	}
	return succeeded, nil
}

// switchByState dispatches to enable or disable. Any other state is a no-op.
func switchByState(ctx context.Context, component domain.ComponentDescriptor, state domain.ComponentState, enable, disable switchFunc) (bool, error) {
	switch state {
	case domain.StateEnabled:
		return enable(ctx, component)
	case domain.StateDisabled:
		return disable(ctx, component)
	default:
		return false, nil
	}
}
