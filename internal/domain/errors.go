package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPrivilegeUnavailable means neither root nor the broker could be used.
	ErrPrivilegeUnavailable = errors.New("privilege unavailable")

	// ErrUnsupportedComponent is returned when a component kind cannot be
	// handled by a backend (providers in IFW).
	ErrUnsupportedComponent = errors.New("unsupported component type")

	// ErrRuleNotFound is returned by rule storage when a package has no rule file.
	ErrRuleNotFound = errors.New("rule file not found")

	// ErrBrokerNotRunning is returned when the broker binder is not available.
	ErrBrokerNotRunning = errors.New("broker not running")
)

// ControllerError carries the operation and component that failed.
type ControllerError struct {
	Op        string
	Component string
	Err       error
}

func (e *ControllerError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Component, e.Err)
}

func (e *ControllerError) Unwrap() error {
	return e.Err
}
