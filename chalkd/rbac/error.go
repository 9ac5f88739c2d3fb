package rbac

import (
	"errors"
	"fmt"
)

const (
	// errUnauthorized is the error message returned to clients when an
	// action is forbidden. It is intentionally vague: it never
	// distinguishes "does not exist" from "no access", so a caller
	// cannot enumerate resources by probing.
	errUnauthorized = "rbac: forbidden"
)

// UnauthorizedError is the error type for authorization denials.
type UnauthorizedError struct {
	// internal carries the detailed reason for logs and debugging. It
	// is never shown to the client.
	internal error

	subject Subject
	action  Action
	object  Object
}

// ForbiddenWithInternal creates an error that renders as a bare
// "forbidden" to the client while retaining the detailed denial reason
// internally.
func ForbiddenWithInternal(internal error, subject Subject, action Action, object Object) *UnauthorizedError {
	return &UnauthorizedError{
		internal: internal,
		subject:  subject,
		action:   action,
		object:   object,
	}
}

// IsUnauthorizedError is equivalent to errors.As(err, &UnauthorizedError{}).
func IsUnauthorizedError(err error) bool {
	var uerr *UnauthorizedError
	return errors.As(err, &uerr)
}

func (*UnauthorizedError) Error() string {
	return errUnauthorized
}

// Internal returns the detailed reason for the denial.
func (e *UnauthorizedError) Internal() error {
	return e.internal
}

func (e *UnauthorizedError) Unwrap() error {
	return e.internal
}

// LogString is the verbose form written to server logs.
func (e *UnauthorizedError) LogString() string {
	return fmt.Sprintf("%s: subject=%s action=%s object=%s: %v",
		errUnauthorized, e.subject.String(), e.action, e.object.String(), e.internal)
}
