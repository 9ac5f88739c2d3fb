package dbauthz

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

type subjectContextKey struct{}

// ErrNoSubject is returned by every authorized method when the request
// context carries no subject. All authentication flows must set one.
var ErrNoSubject = xerrors.New("no authorization subject in context")

// As returns a context that performs all subsequent store calls as the
// given subject. The subject is resolved once per request and must not
// be reused across requests.
func As(ctx context.Context, subject rbac.Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// AsSystem returns a context with the privileged internal subject.
// Calls made with it bypass policy evaluation entirely; it is reserved
// for the relationship predicates, the principal resolver, and the
// mutation funnel inside issuance, provisioning and bootstrap.
func AsSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, rbac.System())
}

// SubjectFromContext returns the subject set by As or AsSystem.
func SubjectFromContext(ctx context.Context) (rbac.Subject, bool) {
	s, ok := ctx.Value(subjectContextKey{}).(rbac.Subject)
	return s, ok
}
