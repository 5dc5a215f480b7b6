// Package fault defines the error taxonomy shared by all security core
// registries. Errors carry a Kind so callers can dispatch on the failure
// class without string matching; sentinel errors built from this package
// stay comparable with errors.Is even when wrapped.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for programmatic handling across package
// boundaries.
type Kind uint8

const (
	// Unknown marks errors produced outside the taxonomy.
	Unknown Kind = iota
	// NotFound reports an absent user, role, team, key, or provider.
	NotFound
	// AlreadyExists reports a duplicate username, role name, or member.
	AlreadyExists
	// InvalidArgument reports an unknown permission or team role, a bad
	// invitation code, or an otherwise malformed input.
	InvalidArgument
	// PermissionDenied reports a failed authorization check or a
	// forbidden mutation such as deleting a system role or the team owner.
	PermissionDenied
	// Expired reports an API key past its expiry or a consumed invitation.
	Expired
	// ChainBroken reports detected audit-chain tampering.
	ChainBroken
	// Blocked reports a source currently on the threat block list.
	Blocked
	// LimitExceeded reports a capacity limit hit, such as the team
	// member cap.
	LimitExceeded
	// Upstream reports a network failure talking to an SSO provider.
	Upstream
)

// String returns the wire label for the kind.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case InvalidArgument:
		return "invalid_argument"
	case PermissionDenied:
		return "permission_denied"
	case Expired:
		return "expired"
	case ChainBroken:
		return "chain_broken"
	case Blocked:
		return "blocked"
	case LimitExceeded:
		return "limit_exceeded"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the security core.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New returns an error of the given kind with a fixed message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind wrapping an underlying cause.
// The cause remains reachable through errors.Is and errors.As.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the classification of err, unwrapping as needed.
// Errors produced outside this package report Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return Unknown
}

// IsKind reports whether err (or any error it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
