package infra

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

const defaultSuPath = "su"

// ShellExecutor implements domain.CommandExecutor.
// Commands run through `sh -c` when the process is already root and through
// `su -c` otherwise.
type ShellExecutor struct {
	suPath string
	asRoot bool
	logger *zap.Logger
}

// NewShellExecutor creates an executor for the detected execution mode.
func NewShellExecutor(mode *ExecModeConfig, suPath string, logger *zap.Logger) *ShellExecutor {
	if suPath == "" {
		suPath = defaultSuPath
	}
	return &ShellExecutor{
		suPath: suPath,
		asRoot: mode != nil && mode.IsRoot,
		logger: logger,
	}
}

// Exec runs command and captures stdout and stderr line by line.
// The command is not tied to ctx: once started it runs to completion.
func (e *ShellExecutor) Exec(ctx context.Context, command string) (domain.CommandResult, error) {
	result := domain.CommandResult{Command: command}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	var cmd *exec.Cmd
	if e.asRoot {
		cmd = exec.Command("sh", "-c", command)
	} else {
		cmd = exec.Command(e.suPath, "-c", command)
	}
	cmd.Stdin = nil // Prevent any interactive prompts

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Out = splitLines(stdout.Bytes())
	result.Err = splitLines(stderr.Bytes())

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			e.logger.Debug("command exited non-zero",
				zap.String("command", command),
				zap.Int("exit_code", result.ExitCode))
			return result, nil
		}
		return result, fmt.Errorf("exec %q: %w", command, err)
	}
	return result, nil
}

func splitLines(b []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(b))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}

// Ensure ShellExecutor implements domain.CommandExecutor.
var _ domain.CommandExecutor = (*ShellExecutor)(nil)
