package warden

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrDenied is returned when a decision request results in a deny.
	ErrDenied = errors.New("authorization denied")

	// ErrApprovalRequired is returned when a decision defers to user consent.
	ErrApprovalRequired = errors.New("approval required")

	// ErrServerUnreachable is returned when the Warden core cannot be contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// WardenError is the base error type for SDK errors.
type WardenError struct {
	// Code is a machine-readable error code.
	Code string
	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *WardenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("warden [%s]: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("warden [%s]", e.Code)
}

// Unwrap returns the underlying error.
func (e *WardenError) Unwrap() error {
	return e.Err
}

// DeniedError is returned when a decision request results in a deny.
// It carries the decided context: the resolved subject and any threat event
// the request tripped.
type DeniedError struct {
	// Reason explains why the action was denied.
	Reason string
	// User is the resolved, redacted subject, when the credential resolved.
	User *User
	// Threat is the detector event attached to the decision, if any.
	Threat *ThreatEvent
}

// Error returns a human-readable description of the denial.
func (e *DeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("authorization denied: %s", e.Reason)
	}
	return "authorization denied"
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrDenied).
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// ApprovalRequiredError is returned when the decision is ask_user. The core
// records consent-gated outcomes but never collects consent itself; the
// caller owns that conversation.
type ApprovalRequiredError struct {
	// Reason explains what needs consent.
	Reason string
	// User is the resolved, redacted subject.
	User *User
}

// Error returns a human-readable description of the deferral.
func (e *ApprovalRequiredError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("approval required: %s", e.Reason)
	}
	return "approval required"
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrApprovalRequired).
func (e *ApprovalRequiredError) Is(target error) bool {
	return target == ErrApprovalRequired
}

// ServerUnreachableError is returned when the Warden core cannot be contacted
// and the client is configured to fail closed.
type ServerUnreachableError struct {
	// Cause is the underlying error that caused the core to be unreachable.
	Cause error
}

// Error returns a human-readable description of the server unreachable error.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
