// Package relations is the policy predicate library: pure, read-only
// relationship checks consumed by the rbac rule tables.
//
// The Reader holds a raw database.Store on purpose. Predicates are
// part of authorization itself, so routing them through the authorized
// store would recurse back into policy evaluation; giving them their
// own privileged path makes that structurally impossible.
package relations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

type Reader struct {
	db database.Store
}

// New returns a Reader over the raw store. Never pass a dbauthz-wrapped
// store here.
func New(db database.Store) *Reader {
	return &Reader{db: db}
}

var _ rbac.RelationshipReader = (*Reader)(nil)

// exists collapses the store's row/ErrNoRows convention into a boolean.
// Unknown ids are false, never an error.
func exists(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, database.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func (r *Reader) Teaches(ctx context.Context, teacherID, classID uuid.UUID) (bool, error) {
	if teacherID == uuid.Nil || classID == uuid.Nil {
		return false, nil
	}
	_, err := r.db.GetTeachingAssignment(ctx, teacherID, classID)
	return exists(err)
}

func (r *Reader) GuardianOf(ctx context.Context, guardianID, studentID uuid.UUID) (bool, error) {
	if guardianID == uuid.Nil || studentID == uuid.Nil {
		return false, nil
	}
	_, err := r.db.GetGuardianship(ctx, guardianID, studentID)
	return exists(err)
}

func (r *Reader) MemberOf(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	if userID == uuid.Nil || groupID == uuid.Nil {
		return false, nil
	}
	_, err := r.db.GetGroupMembership(ctx, userID, groupID)
	return exists(err)
}

func (r *Reader) Enrolled(ctx context.Context, studentID, classID uuid.UUID) (bool, error) {
	if studentID == uuid.Nil || classID == uuid.Nil {
		return false, nil
	}
	_, err := r.db.GetEnrollment(ctx, studentID, classID)
	return exists(err)
}

func (r *Reader) WardEnrolled(ctx context.Context, guardianID, classID uuid.UUID) (bool, error) {
	if guardianID == uuid.Nil || classID == uuid.Nil {
		return false, nil
	}
	wards, err := r.db.GetGuardianshipsByGuardian(ctx, guardianID)
	if err != nil {
		return false, xerrors.Errorf("list guardianships: %w", err)
	}
	for _, ward := range wards {
		ok, err := r.Enrolled(ctx, ward.StudentID, classID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
