package dbauthz

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// Generic wrappers that compose a database function with an
// authorization check. Every wrapper resolves the subject from the
// context; the system subject short-circuits past the authorizer.

func authorize(ctx context.Context, auth rbac.Authorizer, action rbac.Action, object rbac.Object) error {
	subject, ok := SubjectFromContext(ctx)
	if !ok {
		return ErrNoSubject
	}
	if subject.IsSystem() {
		return nil
	}
	return auth.Authorize(ctx, subject, action, object)
}

// insert authorizes action on a statically-known object before running
// the database function. Used for creations, where no row exists yet.
func insert[ObjectType any, ArgumentType any](
	auth rbac.Authorizer,
	action rbac.Action,
	object rbac.Object,
	insertFunc func(ctx context.Context, arg ArgumentType) (ObjectType, error),
) func(ctx context.Context, arg ArgumentType) (ObjectType, error) {
	return func(ctx context.Context, arg ArgumentType) (empty ObjectType, err error) {
		err = authorize(ctx, auth, action, object)
		if err != nil {
			return empty, err
		}
		return insertFunc(ctx, arg)
	}
}

// fetch authorizes ActionRead against the fetched row itself. The
// database is always hit first because the row's school and owner are
// required for the check; an unauthorized result never leaks the row.
func fetch[ObjectType rbac.Objecter, ArgumentType any](
	auth rbac.Authorizer,
	fetchFunc func(ctx context.Context, arg ArgumentType) (ObjectType, error),
) func(ctx context.Context, arg ArgumentType) (ObjectType, error) {
	return func(ctx context.Context, arg ArgumentType) (empty ObjectType, err error) {
		subject, ok := SubjectFromContext(ctx)
		if !ok {
			return empty, ErrNoSubject
		}
		object, err := fetchFunc(ctx, arg)
		if err != nil {
			return empty, xerrors.Errorf("fetch object: %w", err)
		}
		if !subject.IsSystem() {
			err = auth.Authorize(ctx, subject, rbac.ActionRead, object.RBACObject())
			if err != nil {
				return empty, err
			}
		}
		return object, nil
	}
}

// fetchAndQuery fetches the row the argument refers to, authorizes
// action against it, then runs the query. Used for updates that return
// the updated row.
func fetchAndQuery[ObjectType rbac.Objecter, ArgumentType any](
	auth rbac.Authorizer,
	action rbac.Action,
	fetchFunc func(ctx context.Context, arg ArgumentType) (ObjectType, error),
	queryFunc func(ctx context.Context, arg ArgumentType) (ObjectType, error),
) func(ctx context.Context, arg ArgumentType) (ObjectType, error) {
	return func(ctx context.Context, arg ArgumentType) (empty ObjectType, err error) {
		object, err := fetchFunc(ctx, arg)
		if err != nil {
			return empty, xerrors.Errorf("fetch object: %w", err)
		}
		err = authorize(ctx, auth, action, object.RBACObject())
		if err != nil {
			return empty, err
		}
		return queryFunc(ctx, arg)
	}
}

// fetchWithPostFilter runs the query and removes the rows the subject
// cannot read. Used by listing queries over bounded result sets.
func fetchWithPostFilter[ObjectType rbac.Objecter, ArgumentType any](
	auth rbac.Authorizer,
	fetchFunc func(ctx context.Context, arg ArgumentType) ([]ObjectType, error),
) func(ctx context.Context, arg ArgumentType) ([]ObjectType, error) {
	return func(ctx context.Context, arg ArgumentType) ([]ObjectType, error) {
		subject, ok := SubjectFromContext(ctx)
		if !ok {
			return nil, ErrNoSubject
		}
		objects, err := fetchFunc(ctx, arg)
		if err != nil {
			return nil, err
		}
		if subject.IsSystem() {
			return objects, nil
		}
		return rbac.Filter(ctx, auth, subject, rbac.ActionRead, objects)
	}
}
