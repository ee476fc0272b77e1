package infra

import (
	"fmt"
	"strings"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// pmFailureMarker is printed by `pm enable/disable` when the component or
// package does not exist. The exit status is not reliable across releases.
const pmFailureMarker = "java.lang.IllegalArgumentException"

const (
	enableComponentTemplate  = "pm enable --user %d %s/%s"
	disableComponentTemplate = "pm disable --user %d %s/%s"
)

// IsPMCommandSuccess interprets pm output. Success is the absence of the
// failure marker anywhere in stdout or stderr.
func IsPMCommandSuccess(result domain.CommandResult) bool {
	return !strings.Contains(result.Combined(), pmFailureMarker)
}

// EscapeShellVariables escapes the `$` sigil so inner class names such as
// Outer$Inner survive the shell.
func EscapeShellVariables(command string) string {
	return strings.ReplaceAll(command, "$", "\\$")
}

// BuildSwitchCommand returns the pm command for state, or false when the
// state is neither enabled nor disabled.
func BuildSwitchCommand(userID int, packageName, componentName string, state domain.ComponentState) (string, bool) {
	var template string
	switch state {
	case domain.StateEnabled:
		template = enableComponentTemplate
	case domain.StateDisabled:
		template = disableComponentTemplate
	default:
		return "", false
	}
	return EscapeShellVariables(fmt.Sprintf(template, userID, packageName, componentName)), true
}
