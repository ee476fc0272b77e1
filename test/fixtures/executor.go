// Package fixtures holds test doubles shared by package and integration tests.
package fixtures

import (
	"context"
	"strings"
	"sync"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// FakeExecutor is a scripted domain.CommandExecutor. Commands without a
// script return an empty successful result.
type FakeExecutor struct {
	mu        sync.Mutex
	responses map[string]domain.CommandResult
	errs      map[string]error
	prefixes  []prefixResponse
	calls     []string
}

type prefixResponse struct {
	prefix string
	result domain.CommandResult
}

// NewFakeExecutor creates an executor with no scripted commands.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		responses: make(map[string]domain.CommandResult),
		errs:      make(map[string]error),
	}
}

// On scripts the result of an exact command.
func (f *FakeExecutor) On(command string, result domain.CommandResult) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = result
	return f
}

// OnOutput scripts the stdout lines of an exact command.
func (f *FakeExecutor) OnOutput(command string, lines ...string) *FakeExecutor {
	return f.On(command, domain.CommandResult{Out: lines})
}

// OnPrefix scripts every command starting with prefix.
func (f *FakeExecutor) OnPrefix(prefix string, result domain.CommandResult) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefixResponse{prefix: prefix, result: result})
	return f
}

// OnError makes an exact command fail to run.
func (f *FakeExecutor) OnError(command string, err error) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[command] = err
	return f
}

// Exec implements domain.CommandExecutor.
func (f *FakeExecutor) Exec(ctx context.Context, command string) (domain.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CommandResult{Command: command}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)

	if err, ok := f.errs[command]; ok {
		return domain.CommandResult{Command: command}, err
	}
	if result, ok := f.responses[command]; ok {
		result.Command = command
		return result, nil
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(command, p.prefix) {
			result := p.result
			result.Command = command
			return result, nil
		}
	}
	return domain.CommandResult{Command: command}, nil
}

// Calls returns every command run so far.
func (f *FakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Ensure FakeExecutor implements domain.CommandExecutor.
var _ domain.CommandExecutor = (*FakeExecutor)(nil)
