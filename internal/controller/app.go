package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// AppController runs package level pm/am commands in a root shell.
type AppController struct {
	executor  domain.CommandExecutor
	processes domain.ProcessManager
	userID    int
	logger    *zap.Logger

	mu      sync.RWMutex
	running map[string]bool
}

// NewAppController creates a root app controller.
func NewAppController(executor domain.CommandExecutor, processes domain.ProcessManager, userID int, logger *zap.Logger) *AppController {
	return &AppController{
		executor:  executor,
		processes: processes,
		userID:    userID,
		logger:    logger,
		running:   make(map[string]bool),
	}
}

// Init verifies root and loads the running app list.
func (c *AppController) Init(ctx context.Context) error {
	uid, err := probeUID(ctx, c.executor)
	if err != nil {
		return &domain.ControllerError{Op: "init app controller", Err: fmt.Errorf("%w: %v", domain.ErrPrivilegeUnavailable, err)}
	}
	if uid != domain.RootUID {
		return &domain.ControllerError{Op: "init app controller", Err: fmt.Errorf("%w: running as uid %d", domain.ErrPrivilegeUnavailable, uid)}
	}
	return c.RefreshRunningAppList(ctx)
}

func (c *AppController) Disable(ctx context.Context, packageName string) (bool, error) {
	return c.run(ctx, "disable", fmt.Sprintf("pm disable --user %d %s", c.userID, packageName))
}

func (c *AppController) Enable(ctx context.Context, packageName string) (bool, error) {
	return c.run(ctx, "enable", fmt.Sprintf("pm enable --user %d %s", c.userID, packageName))
}

func (c *AppController) ClearData(ctx context.Context, packageName string) (bool, error) {
	return c.run(ctx, "clear data", fmt.Sprintf("pm clear --user %d %s", c.userID, packageName))
}

func (c *AppController) Uninstall(ctx context.Context, packageName string) (bool, error) {
	return c.run(ctx, "uninstall", fmt.Sprintf("pm uninstall --user %d %s", c.userID, packageName))
}

func (c *AppController) ForceStop(ctx context.Context, packageName string) (bool, error) {
	ok, err := c.run(ctx, "force stop", "am force-stop "+packageName)
	if ok {
		c.mu.Lock()
		delete(c.running, packageName)
		c.mu.Unlock()
	}
	return ok, err
}

// RefreshRunningAppList snapshots running process names. App processes
// are named after their package, with ":<suffix>" for secondary processes.
func (c *AppController) RefreshRunningAppList(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names, err := c.processes.ProcessNames()
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}
	running := make(map[string]bool, len(names))
	for _, name := range names {
		if i := strings.IndexByte(name, ':'); i > 0 {
			name = name[:i]
		}
		running[name] = true
	}

	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
	c.logger.Debug("refreshed running apps", zap.Int("count", len(running)))
	return nil
}

// IsAppRunning answers from the last refresh.
func (c *AppController) IsAppRunning(packageName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running[packageName]
}

func (c *AppController) run(ctx context.Context, op, command string) (bool, error) {
	c.logger.Info(op, zap.String("command", command))
	result, err := c.executor.Exec(ctx, command)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	if result.ExitCode != 0 {
		c.logger.Warn(op+" failed",
			zap.Int("exit_code", result.ExitCode),
			zap.String("output", result.Combined()))
		return false, nil
	}
	return true, nil
}

// Ensure AppController implements domain.AppController.
var _ domain.AppController = (*AppController)(nil)
