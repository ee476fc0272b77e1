package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

func TestIsPMCommandSuccess(t *testing.T) {
	tests := []struct {
		name   string
		result domain.CommandResult
		want   bool
	}{
		{
			name:   "state changed",
			result: domain.CommandResult{Out: []string{"Component {com.example/com.example.Foo} new state: disabled"}},
			want:   true,
		},
		{
			name:   "empty output",
			result: domain.CommandResult{},
			want:   true,
		},
		{
			name: "missing component on stderr",
			result: domain.CommandResult{
				Err:      []string{"Exception occurred while executing:", "java.lang.IllegalArgumentException: Unknown component"},
				ExitCode: 255,
			},
			want: false,
		},
		{
			name:   "marker on stdout",
			result: domain.CommandResult{Out: []string{"Error: java.lang.IllegalArgumentException: Unknown package: x"}},
			want:   false,
		},
		{
			name:   "non-zero exit without marker",
			result: domain.CommandResult{ExitCode: 1},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPMCommandSuccess(tt.result))
		})
	}
}

func TestEscapeShellVariables(t *testing.T) {
	assert.Equal(t, `pm disable com.a/com.a.Outer\$Inner`, EscapeShellVariables("pm disable com.a/com.a.Outer$Inner"))
	assert.Equal(t, "pm enable com.a/.Foo", EscapeShellVariables("pm enable com.a/.Foo"))
}

func TestBuildSwitchCommand(t *testing.T) {
	command, ok := BuildSwitchCommand(0, "com.example", ".MainActivity", domain.StateDisabled)
	assert.True(t, ok)
	assert.Equal(t, "pm disable --user 0 com.example/.MainActivity", command)

	command, ok = BuildSwitchCommand(10, "com.example", "com.example.A$B", domain.StateEnabled)
	assert.True(t, ok)
	assert.Equal(t, `pm enable --user 10 com.example/com.example.A\$B`, command)

	for _, state := range []domain.ComponentState{domain.StateDefault, domain.StateDisabledUser, domain.StateDisabledUntilUsed} {
		_, ok := BuildSwitchCommand(0, "com.example", ".Foo", state)
		assert.False(t, ok, state.String())
	}
}
