package rbac

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
)

// Authorizer makes allow/deny decisions. A nil error is an allow; a
// *UnauthorizedError is a deny. Any other error is an internal fault
// and must be treated as a deny by callers.
type Authorizer interface {
	Authorize(ctx context.Context, subject Subject, action Action, object Object) error
}

// RelationshipReader answers the pure relationship predicates consulted
// by rule tables. Implementations read through the privileged storage
// path and must never call back into an Authorizer. Unknown ids resolve
// to false, not an error.
type RelationshipReader interface {
	// Teaches reports whether the teacher has a teaching assignment for
	// the class.
	Teaches(ctx context.Context, teacherID, classID uuid.UUID) (bool, error)
	// GuardianOf reports whether the student is a ward of the guardian.
	GuardianOf(ctx context.Context, guardianID, studentID uuid.UUID) (bool, error)
	// MemberOf reports whether the user belongs to the group.
	MemberOf(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
	// Enrolled reports whether the student is enrolled in the class.
	Enrolled(ctx context.Context, studentID, classID uuid.UUID) (bool, error)
	// WardEnrolled reports whether any ward of the guardian is enrolled
	// in the class.
	WardEnrolled(ctx context.Context, guardianID, classID uuid.UUID) (bool, error)
}

// TableAuthorizer evaluates the declarative rule tables in policy.go.
// The evaluation order is fixed:
//
//  1. Invalid subjects deny.
//  2. The system subject and site admins allow.
//  3. Tenant isolation: a school mismatch denies before any role rule
//     is consulted, and a platform-scoped object (no school) denies
//     unless the subject owns it.
//  4. The rule table for the object's type, with relationship
//     predicates resolved through the privileged reader.
//  5. Default deny.
//
// Evaluation never panics and never returns a raw predicate error to
// the caller: predicate failures deny.
type TableAuthorizer struct {
	relations RelationshipReader
	log       slog.Logger
}

func NewAuthorizer(relations RelationshipReader, log slog.Logger) *TableAuthorizer {
	return &TableAuthorizer{
		relations: relations,
		log:       log,
	}
}

var _ Authorizer = (*TableAuthorizer)(nil)

func (a *TableAuthorizer) Authorize(ctx context.Context, subject Subject, action Action, object Object) error {
	if subject.IsSystem() {
		return nil
	}
	if !subject.Valid() {
		return ForbiddenWithInternal(xerrors.New("invalid subject"), subject, action, object)
	}
	if subject.Role == RoleSiteAdmin {
		// Platform-level reach: unconditional allow.
		return nil
	}

	// Tenant isolation is a hard boundary. Nothing below may override
	// this, including every rule in the tables.
	if object.SchoolID.Valid {
		if !subject.SchoolID.Valid || subject.SchoolID.UUID != object.SchoolID.UUID {
			return ForbiddenWithInternal(xerrors.New("tenant mismatch"), subject, action, object)
		}
	} else if object.Owner == uuid.Nil || object.Owner != subject.ID {
		// Platform-scoped objects are reachable only by site admins,
		// except for objects the subject itself owns (e.g. its own api
		// key).
		return ForbiddenWithInternal(xerrors.New("platform-scoped object"), subject, action, object)
	}

	rule := ruleFor(object.Type, subject.Role, action)
	ok, err := a.evaluate(ctx, rule, subject, object)
	if err != nil {
		// Missing or malformed data resolves to deny, never an
		// internal error surfaced to the caller.
		a.log.Warn(ctx, "predicate evaluation failed, denying",
			slog.F("subject", subject.String()),
			slog.F("action", action),
			slog.F("object", object.String()),
			slog.Error(err),
		)
		return ForbiddenWithInternal(xerrors.Errorf("predicate: %w", err), subject, action, object)
	}
	if !ok {
		return ForbiddenWithInternal(xerrors.New("no rule allows"), subject, action, object)
	}
	return nil
}

func (a *TableAuthorizer) evaluate(ctx context.Context, rule Rule, subject Subject, object Object) (bool, error) {
	if rule.Allow {
		return true, nil
	}
	if rule.Owner && object.Owner != uuid.Nil && object.Owner == subject.ID {
		return true, nil
	}
	if rule.Predicate == "" {
		return false, nil
	}
	if object.ID == uuid.Nil {
		// A predicate needs a concrete object to relate to.
		return false, nil
	}
	switch rule.Predicate {
	case PredicateTeachesClass:
		return a.relations.Teaches(ctx, subject.ID, object.ID)
	case PredicateEnrolled:
		return a.relations.Enrolled(ctx, subject.ID, object.ID)
	case PredicateWardEnrolled:
		return a.relations.WardEnrolled(ctx, subject.ID, object.ID)
	case PredicateGuardianOf:
		return a.relations.GuardianOf(ctx, subject.ID, object.ID)
	case PredicateMemberOf:
		return a.relations.MemberOf(ctx, subject.ID, object.ID)
	default:
		return false, xerrors.Errorf("unknown predicate %q", rule.Predicate)
	}
}

// Filter removes all elements of objects the subject cannot perform
// action on. It is used by listing endpoints to post-filter query
// results. All objects must share one type.
func Filter[O Objecter](ctx context.Context, auth Authorizer, subject Subject, action Action, objects []O) ([]O, error) {
	if len(objects) == 0 {
		return objects, nil
	}
	objectType := objects[0].RBACObject().Type
	filtered := make([]O, 0, len(objects))
	for _, o := range objects {
		obj := o.RBACObject()
		if obj.Type != objectType {
			return nil, xerrors.Errorf("object types must be uniform across the set (%s), found %s", objectType, obj.Type)
		}
		err := auth.Authorize(ctx, subject, action, obj)
		if err == nil {
			filtered = append(filtered, o)
		} else if !IsUnauthorizedError(err) {
			return nil, xerrors.Errorf("authorize filter: %w", err)
		}
	}
	return filtered, nil
}
