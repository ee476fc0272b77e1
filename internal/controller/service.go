package controller

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

var recordSeparator = regexp.MustCompile(`\n\s*\n+`)

// ServiceController reads running services from `dumpsys activity services`
// and starts or stops them with am.
type ServiceController struct {
	executor domain.CommandExecutor
	logger   *zap.Logger

	mu      sync.RWMutex
	records map[string][]string // package -> service record blocks
}

// NewServiceController creates a root service controller.
func NewServiceController(executor domain.CommandExecutor, logger *zap.Logger) *ServiceController {
	return &ServiceController{
		executor: executor,
		logger:   logger,
		records:  make(map[string][]string),
	}
}

// Init checks that dumpsys is reachable.
func (c *ServiceController) Init(ctx context.Context) error {
	result, err := c.executor.Exec(ctx, "dumpsys activity services -p android")
	if err != nil {
		return &domain.ControllerError{Op: "init service controller", Err: fmt.Errorf("%w: %v", domain.ErrPrivilegeUnavailable, err)}
	}
	if result.ExitCode != 0 {
		return &domain.ControllerError{Op: "init service controller", Err: fmt.Errorf("%w: dumpsys exited with %d", domain.ErrPrivilegeUnavailable, result.ExitCode)}
	}
	return nil
}

// Load refreshes the running service records of packageName.
func (c *ServiceController) Load(ctx context.Context, packageName string) error {
	result, err := c.executor.Exec(ctx, "dumpsys activity services -p "+packageName)
	if err != nil {
		return fmt.Errorf("failed to dump services of %s: %w", packageName, err)
	}
	records := ParseServiceRecords(result.Output())

	c.mu.Lock()
	c.records[packageName] = records
	c.mu.Unlock()
	c.logger.Debug("loaded running services",
		zap.String("package", packageName),
		zap.Int("records", len(records)))
	return nil
}

// ParseServiceRecords splits dumpsys output into service record blocks.
func ParseServiceRecords(output string) []string {
	if strings.Contains(output, "(nothing)") {
		return nil
	}
	blocks := recordSeparator.Split(output, -1)
	if n := len(blocks); n > 0 && strings.Contains(blocks[n-1], "Connection bindings to services") {
		blocks = blocks[:n-1]
	}
	out := blocks[:0]
	for _, b := range blocks {
		if strings.Contains(b, "ServiceRecord{") {
			out = append(out, b)
		}
	}
	return out
}

// IsServiceRunning answers from the last Load of packageName. A record only
// counts when it is attached to a live process.
func (c *ServiceController) IsServiceRunning(packageName, serviceName string) bool {
	full := domain.ExpandClassName(packageName, serviceName)
	short := strings.TrimPrefix(full, packageName)
	names := []string{packageName + "/" + full, packageName + "/" + short}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, record := range c.records[packageName] {
		if !strings.Contains(record, "app=ProcessRecord{") {
			continue
		}
		for _, name := range names {
			if strings.Contains(record, " "+name+"}") {
				return true
			}
		}
	}
	return false
}

func (c *ServiceController) StopService(ctx context.Context, packageName, serviceName string) (bool, error) {
	command := fmt.Sprintf("am stopservice %s/%s", packageName, serviceName)
	result, err := c.executor.Exec(ctx, command)
	if err != nil {
		return false, fmt.Errorf("failed to stop service: %w", err)
	}
	if !strings.Contains(result.Output(), "Service stopped") {
		c.logger.Warn("cannot stop service",
			zap.String("service", packageName+"/"+serviceName),
			zap.String("output", result.Combined()))
		return false, nil
	}
	c.logger.Info("service stopped", zap.String("service", packageName+"/"+serviceName))
	return true, nil
}

func (c *ServiceController) StartService(ctx context.Context, packageName, serviceName string) (bool, error) {
	command := fmt.Sprintf("am startservice %s/%s", packageName, serviceName)
	result, err := c.executor.Exec(ctx, command)
	if err != nil {
		return false, fmt.Errorf("failed to start service: %w", err)
	}
	if result.ExitCode != 0 {
		c.logger.Warn("cannot start service",
			zap.String("service", packageName+"/"+serviceName),
			zap.String("output", result.Combined()))
		return false, nil
	}
	return true, nil
}

// Ensure ServiceController implements domain.ServiceController.
var _ domain.ServiceController = (*ServiceController)(nil)
