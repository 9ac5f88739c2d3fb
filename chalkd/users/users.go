// Package users carries the administrative mutations on principals:
// role changes, school moves, soft delete and restore. All of them are
// permission-checked through the authorized store and recorded in the
// audit trail.
package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chalkboard/chalkboard/chalkd/audit"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbauthz"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

var (
	// ErrLastSiteAdmin guards the platform from locking itself out:
	// the last site admin can be neither deleted nor demoted.
	ErrLastSiteAdmin = xerrors.New("cannot remove the last site admin")
	// ErrSelfDelete forbids site admins from soft-deleting themselves.
	ErrSelfDelete = xerrors.New("site admins cannot delete themselves")
)

type Options struct {
	// Database must be the dbauthz-wrapped store; every method runs
	// with the caller's subject in the context.
	Database database.Store
	Auditor  audit.Auditor
	Logger   slog.Logger
}

type Service struct {
	db      database.Store
	auditor audit.Auditor
	log     slog.Logger
}

func New(opts Options) *Service {
	if opts.Auditor == nil {
		opts.Auditor = audit.NewNop()
	}
	return &Service{
		db:      opts.Database,
		auditor: opts.Auditor,
		log:     opts.Logger,
	}
}

// UpdateRole changes a user's role. The actor must rank at or above
// both the target's current role and the new role, and the change must
// keep the role/school pairing consistent. The last-site-admin check
// and the write share a transaction so concurrent demotions cannot
// both pass the guard.
func (s *Service) UpdateRole(ctx context.Context, actor rbac.Subject, userID uuid.UUID, role rbac.Role) (database.User, error) {
	if err := role.Valid(); err != nil {
		return database.User{}, err
	}
	var target, updated database.User
	err := s.db.InTx(func(tx database.Store) error {
		// The read runs privileged: predicate lookups must never happen
		// inside a transaction, and the write below carries the actor's
		// own authorization.
		var err error
		target, err = tx.GetUserByID(dbauthz.AsSystem(ctx), userID)
		if err != nil {
			return xerrors.Errorf("get user: %w", err)
		}
		if !actor.IsSystem() && (!actor.Role.AtLeast(target.Role) || !actor.Role.AtLeast(role)) {
			return rbac.ForbiddenWithInternal(
				xerrors.New("actor ranks below the role change"), actor, rbac.ActionUpdate, target.RBACObject())
		}
		if target.Role == rbac.RoleSiteAdmin && role != rbac.RoleSiteAdmin {
			if err := s.requireAnotherSiteAdmin(ctx, tx); err != nil {
				return err
			}
		}
		if role.SchoolScoped() && !target.SchoolID.Valid {
			return xerrors.New("role requires the user to belong to a school")
		}
		if !role.SchoolScoped() && target.SchoolID.Valid {
			return xerrors.New("site admins cannot belong to a school; move the user out first")
		}
		updated, err = tx.UpdateUserRole(ctx, database.UpdateUserRoleParams{ID: userID, Role: role})
		if err != nil {
			return xerrors.Errorf("update role: %w", err)
		}
		return nil
	})
	if err != nil {
		return database.User{}, err
	}
	_ = s.auditor.Export(ctx, database.AuditLog{
		Time:         dbtime.Now(),
		ActorID:      database.NullUUID(actor.ID),
		Action:       database.AuditActionRoleChanged,
		ResourceType: rbac.ResourceUser.Type,
		ResourceID:   updated.ID,
		SchoolID:     updated.SchoolID,
		Detail:       string(target.Role) + " -> " + string(role),
	})
	return updated, nil
}

// UpdateSchool moves a user between tenants, or clears the school when
// promoting to site admin. Only site admins pass the authorized
// store's check for cross-school writes.
func (s *Service) UpdateSchool(ctx context.Context, actor rbac.Subject, userID uuid.UUID, schoolID uuid.NullUUID) (database.User, error) {
	target, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return database.User{}, xerrors.Errorf("get user: %w", err)
	}
	if schoolID.Valid {
		if _, err := s.db.GetSchoolByID(ctx, schoolID.UUID); err != nil {
			return database.User{}, xerrors.Errorf("get school: %w", err)
		}
	} else if target.Role.SchoolScoped() {
		return database.User{}, xerrors.New("only site admins may have no school")
	}

	updated, err := s.db.UpdateUserSchool(ctx, database.UpdateUserSchoolParams{ID: userID, SchoolID: schoolID})
	if err != nil {
		return database.User{}, xerrors.Errorf("update school: %w", err)
	}
	_ = s.auditor.Export(ctx, database.AuditLog{
		Time:         dbtime.Now(),
		ActorID:      database.NullUUID(actor.ID),
		Action:       database.AuditActionSchoolChanged,
		ResourceType: rbac.ResourceUser.Type,
		ResourceID:   updated.ID,
		SchoolID:     updated.SchoolID,
		Detail:       "school changed",
	})
	return updated, nil
}

// SoftDelete marks the user deleted. The row (and its audit history)
// remains forever; sessions are revoked immediately. The
// last-site-admin check and the write share a transaction so
// concurrent deletes cannot both pass the guard.
func (s *Service) SoftDelete(ctx context.Context, actor rbac.Subject, userID uuid.UUID) (database.User, error) {
	var updated database.User
	err := s.db.InTx(func(tx database.Store) error {
		// Privileged read, same as UpdateRole: no predicate lookups
		// inside the transaction. The delete below checks the actor.
		target, err := tx.GetUserByID(dbauthz.AsSystem(ctx), userID)
		if err != nil {
			return xerrors.Errorf("get user: %w", err)
		}
		if !actor.IsSystem() && !actor.Role.AtLeast(target.Role) {
			return rbac.ForbiddenWithInternal(
				xerrors.New("actor ranks below the target"), actor, rbac.ActionDelete, target.RBACObject())
		}
		if target.Role == rbac.RoleSiteAdmin {
			if actor.ID == target.ID {
				return ErrSelfDelete
			}
			if err := s.requireAnotherSiteAdmin(ctx, tx); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateUserDeleted(ctx, database.UpdateUserDeletedParams{ID: userID, Deleted: true})
		if err != nil {
			return xerrors.Errorf("soft delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return database.User{}, err
	}
	if err := s.db.DeleteAPIKeysByUserID(dbauthz.AsSystem(ctx), userID); err != nil {
		s.log.Warn(ctx, "revoke sessions of deleted user", slog.Error(err))
	}
	_ = s.auditor.Export(ctx, database.AuditLog{
		Time:         dbtime.Now(),
		ActorID:      database.NullUUID(actor.ID),
		Action:       database.AuditActionUserDeleted,
		ResourceType: rbac.ResourceUser.Type,
		ResourceID:   updated.ID,
		SchoolID:     updated.SchoolID,
		Detail:       "soft deleted",
	})
	return updated, nil
}

// Restore clears the soft-delete marker.
func (s *Service) Restore(ctx context.Context, actor rbac.Subject, userID uuid.UUID) (database.User, error) {
	updated, err := s.db.UpdateUserDeleted(ctx, database.UpdateUserDeletedParams{ID: userID, Deleted: false})
	if err != nil {
		return database.User{}, xerrors.Errorf("restore: %w", err)
	}
	_ = s.auditor.Export(ctx, database.AuditLog{
		Time:         dbtime.Now(),
		ActorID:      database.NullUUID(actor.ID),
		Action:       database.AuditActionUserRestored,
		ResourceType: rbac.ResourceUser.Type,
		ResourceID:   updated.ID,
		SchoolID:     updated.SchoolID,
		Detail:       "restored",
	})
	return updated, nil
}

// requireAnotherSiteAdmin errors unless more than one live site admin
// exists. The count runs privileged: it is a platform invariant, not a
// permission question. Callers must pass the transaction store so the
// count and the mutation it guards are one atomic step.
func (s *Service) requireAnotherSiteAdmin(ctx context.Context, tx database.Store) error {
	admins, err := tx.CountUsersByRole(dbauthz.AsSystem(ctx), rbac.RoleSiteAdmin)
	if err != nil && !errors.Is(err, database.ErrNoRows) {
		return xerrors.Errorf("count site admins: %w", err)
	}
	if admins <= 1 {
		return ErrLastSiteAdmin
	}
	return nil
}
