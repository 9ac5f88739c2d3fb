// Package principal resolves an authenticated identity to the rbac
// subject used for every authorization decision on the request.
package principal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// ErrNotFound is returned when no live principal exists for the
// identity. Soft-deleted users resolve to ErrNotFound as well: their
// access is revoked even though the row remains.
var ErrNotFound = xerrors.New("principal not found")

// Resolver reads through the privileged path. Like the relationship
// predicates it must never consult the authorizer, and it performs no
// caching: the subject it returns is valid for a single request only,
// so a role change is honored on the very next request.
type Resolver struct {
	db database.Store
}

// New returns a Resolver over the raw store. Never pass a
// dbauthz-wrapped store here.
func New(db database.Store) *Resolver {
	return &Resolver{db: db}
}

// Resolve maps an identity id to its role and school.
func (r *Resolver) Resolve(ctx context.Context, identityID uuid.UUID) (rbac.Subject, error) {
	if identityID == uuid.Nil {
		return rbac.Subject{}, ErrNotFound
	}
	user, err := r.db.GetUserByID(ctx, identityID)
	if errors.Is(err, database.ErrNoRows) {
		return rbac.Subject{}, ErrNotFound
	}
	if err != nil {
		return rbac.Subject{}, xerrors.Errorf("get user: %w", err)
	}
	if user.Deleted {
		return rbac.Subject{}, ErrNotFound
	}
	return user.Subject(), nil
}
