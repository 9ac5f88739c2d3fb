// Package dbauthz wraps a database.Store with authorization
// enforcement. Every method resolves the request subject from the
// context and consults the rbac authorizer before touching storage;
// the privileged system subject bypasses evaluation, which is the only
// sanctioned way around it.
package dbauthz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

type querier struct {
	db   database.Store
	auth rbac.Authorizer
	log  slog.Logger
}

// New wraps db so that every call is authorized against auth.
func New(db database.Store, auth rbac.Authorizer, log slog.Logger) database.Store {
	// Double-wrapping makes authorization run twice for no reason.
	if inner, ok := db.(*querier); ok {
		db = inner.db
	}
	return &querier{
		db:   db,
		auth: auth,
		log:  log,
	}
}

var _ database.Store = (*querier)(nil)

// InTx wraps the transaction store so authorization carries into the
// transaction.
func (q *querier) InTx(fn func(database.Store) error) error {
	return q.db.InTx(func(tx database.Store) error {
		return fn(&querier{db: tx, auth: q.auth, log: q.log})
	})
}

// systemOnly guards methods that are not part of any user-facing
// surface: secret-bearing lookups and the mutation funnel used by the
// issuance, provisioning and bootstrap services.
func (q *querier) systemOnly(ctx context.Context) error {
	subject, ok := SubjectFromContext(ctx)
	if !ok {
		return ErrNoSubject
	}
	if !subject.IsSystem() {
		q.log.Warn(ctx, "non-system subject called system-only store method",
			slog.F("subject", subject.String()),
		)
		return rbac.ForbiddenWithInternal(xerrors.New("system-only store method"), subject, "", rbac.Object{})
	}
	return nil
}

// Schools

func (q *querier) InsertSchool(ctx context.Context, arg database.InsertSchoolParams) (database.School, error) {
	// School creation is platform-scoped: the object carries no school,
	// so only site admins pass.
	return insert(q.auth, rbac.ActionCreate, rbac.ResourceSchool, q.db.InsertSchool)(ctx, arg)
}

func (q *querier) GetSchoolByID(ctx context.Context, id uuid.UUID) (database.School, error) {
	return fetch(q.auth, q.db.GetSchoolByID)(ctx, id)
}

func (q *querier) GetSchools(ctx context.Context) ([]database.School, error) {
	f := fetchWithPostFilter(q.auth, func(ctx context.Context, _ any) ([]database.School, error) {
		return q.db.GetSchools(ctx)
	})
	return f(ctx, nil)
}

// Users

func (q *querier) InsertUser(ctx context.Context, arg database.InsertUserParams) (database.User, error) {
	object := rbac.ResourceUser
	if arg.SchoolID.Valid {
		object = object.InSchool(arg.SchoolID.UUID)
	}
	return insert(q.auth, rbac.ActionCreate, object, q.db.InsertUser)(ctx, arg)
}

func (q *querier) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	return fetch(q.auth, q.db.GetUserByID)(ctx, id)
}

func (q *querier) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	return fetch(q.auth, q.db.GetUserByEmail)(ctx, email)
}

func (q *querier) GetUsers(ctx context.Context, arg database.GetUsersParams) ([]database.User, error) {
	return fetchWithPostFilter(q.auth, q.db.GetUsers)(ctx, arg)
}

func (q *querier) CountUsersByRole(ctx context.Context, role rbac.Role) (int64, error) {
	if err := q.systemOnly(ctx); err != nil {
		return 0, err
	}
	return q.db.CountUsersByRole(ctx, role)
}

func (q *querier) fetchUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	return q.db.GetUserByID(ctx, id)
}

func (q *querier) UpdateUserRole(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
	fetchFunc := func(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
		return q.fetchUserByID(ctx, arg.ID)
	}
	return fetchAndQuery(q.auth, rbac.ActionUpdate, fetchFunc, q.db.UpdateUserRole)(ctx, arg)
}

func (q *querier) UpdateUserSchool(ctx context.Context, arg database.UpdateUserSchoolParams) (database.User, error) {
	fetchFunc := func(ctx context.Context, arg database.UpdateUserSchoolParams) (database.User, error) {
		return q.fetchUserByID(ctx, arg.ID)
	}
	return fetchAndQuery(q.auth, rbac.ActionUpdate, fetchFunc, q.db.UpdateUserSchool)(ctx, arg)
}

func (q *querier) UpdateUserDeleted(ctx context.Context, arg database.UpdateUserDeletedParams) (database.User, error) {
	fetchFunc := func(ctx context.Context, arg database.UpdateUserDeletedParams) (database.User, error) {
		return q.fetchUserByID(ctx, arg.ID)
	}
	// Soft delete and restore are destructive role-reach operations.
	return fetchAndQuery(q.auth, rbac.ActionDelete, fetchFunc, q.db.UpdateUserDeleted)(ctx, arg)
}

func (q *querier) UpdateUserProfile(ctx context.Context, arg database.UpdateUserProfileParams) (database.User, error) {
	fetchFunc := func(ctx context.Context, arg database.UpdateUserProfileParams) (database.User, error) {
		return q.fetchUserByID(ctx, arg.ID)
	}
	return fetchAndQuery(q.auth, rbac.ActionUpdate, fetchFunc, q.db.UpdateUserProfile)(ctx, arg)
}

// Invites. Insertion and consumption are the issuance service's
// mutation funnel; they are never reachable with a user subject.

func (q *querier) InsertInvite(ctx context.Context, arg database.InsertInviteParams) (database.Invite, error) {
	if err := q.systemOnly(ctx); err != nil {
		return database.Invite{}, err
	}
	return q.db.InsertInvite(ctx, arg)
}

func (q *querier) GetInviteByID(ctx context.Context, id uuid.UUID) (database.Invite, error) {
	return fetch(q.auth, q.db.GetInviteByID)(ctx, id)
}

func (q *querier) GetInviteByToken(ctx context.Context, token string) (database.Invite, error) {
	// Token lookups carry the secret; only the issuance service does
	// them.
	if err := q.systemOnly(ctx); err != nil {
		return database.Invite{}, err
	}
	return q.db.GetInviteByToken(ctx, token)
}

func (q *querier) GetInvitesBySchool(ctx context.Context, schoolID uuid.UUID) ([]database.Invite, error) {
	return fetchWithPostFilter(q.auth, q.db.GetInvitesBySchool)(ctx, schoolID)
}

func (q *querier) GetLiveBootstrapInvite(ctx context.Context, now time.Time) (database.Invite, error) {
	if err := q.systemOnly(ctx); err != nil {
		return database.Invite{}, err
	}
	return q.db.GetLiveBootstrapInvite(ctx, now)
}

func (q *querier) ConsumeInvite(ctx context.Context, arg database.ConsumeInviteParams) (database.Invite, error) {
	if err := q.systemOnly(ctx); err != nil {
		return database.Invite{}, err
	}
	return q.db.ConsumeInvite(ctx, arg)
}

func (q *querier) ExpireInvite(ctx context.Context, arg database.ExpireInviteParams) (database.Invite, error) {
	fetchFunc := func(ctx context.Context, arg database.ExpireInviteParams) (database.Invite, error) {
		return q.db.GetInviteByID(ctx, arg.ID)
	}
	return fetchAndQuery(q.auth, rbac.ActionUpdate, fetchFunc, q.db.ExpireInvite)(ctx, arg)
}

// Classes, groups and relationship records

func (q *querier) InsertClass(ctx context.Context, arg database.InsertClassParams) (database.Class, error) {
	return insert(q.auth, rbac.ActionCreate, rbac.ResourceClass.InSchool(arg.SchoolID), q.db.InsertClass)(ctx, arg)
}

func (q *querier) GetClassByID(ctx context.Context, id uuid.UUID) (database.Class, error) {
	return fetch(q.auth, q.db.GetClassByID)(ctx, id)
}

func (q *querier) InsertGroup(ctx context.Context, arg database.InsertGroupParams) (database.Group, error) {
	return insert(q.auth, rbac.ActionCreate, rbac.ResourceGroup.InSchool(arg.SchoolID), q.db.InsertGroup)(ctx, arg)
}

func (q *querier) GetGroupByID(ctx context.Context, id uuid.UUID) (database.Group, error) {
	return fetch(q.auth, q.db.GetGroupByID)(ctx, id)
}

// Relationship writes authorize as updates on the object they attach
// to: assignments and enrollments modify the class, memberships the
// group, guardianships the student.

func (q *querier) InsertTeachingAssignment(ctx context.Context, arg database.InsertTeachingAssignmentParams) (database.TeachingAssignment, error) {
	class, err := q.db.GetClassByID(ctx, arg.ClassID)
	if err != nil {
		return database.TeachingAssignment{}, xerrors.Errorf("fetch class: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionUpdate, class.RBACObject()); err != nil {
		return database.TeachingAssignment{}, err
	}
	return q.db.InsertTeachingAssignment(ctx, arg)
}

func (q *querier) GetTeachingAssignment(ctx context.Context, teacherID, classID uuid.UUID) (database.TeachingAssignment, error) {
	class, err := q.db.GetClassByID(ctx, classID)
	if err != nil {
		return database.TeachingAssignment{}, xerrors.Errorf("fetch class: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionRead, class.RBACObject()); err != nil {
		return database.TeachingAssignment{}, err
	}
	return q.db.GetTeachingAssignment(ctx, teacherID, classID)
}

func (q *querier) InsertGuardianship(ctx context.Context, arg database.InsertGuardianshipParams) (database.Guardianship, error) {
	student, err := q.db.GetUserByID(ctx, arg.StudentID)
	if err != nil {
		return database.Guardianship{}, xerrors.Errorf("fetch student: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionUpdate, student.RBACObject()); err != nil {
		return database.Guardianship{}, err
	}
	return q.db.InsertGuardianship(ctx, arg)
}

func (q *querier) GetGuardianship(ctx context.Context, guardianID, studentID uuid.UUID) (database.Guardianship, error) {
	student, err := q.db.GetUserByID(ctx, studentID)
	if err != nil {
		return database.Guardianship{}, xerrors.Errorf("fetch student: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionRead, student.RBACObject()); err != nil {
		return database.Guardianship{}, err
	}
	return q.db.GetGuardianship(ctx, guardianID, studentID)
}

func (q *querier) GetGuardianshipsByGuardian(ctx context.Context, guardianID uuid.UUID) ([]database.Guardianship, error) {
	guardian, err := q.db.GetUserByID(ctx, guardianID)
	if err != nil {
		return nil, xerrors.Errorf("fetch guardian: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionRead, guardian.RBACObject()); err != nil {
		return nil, err
	}
	return q.db.GetGuardianshipsByGuardian(ctx, guardianID)
}

func (q *querier) InsertGroupMembership(ctx context.Context, arg database.InsertGroupMembershipParams) (database.GroupMembership, error) {
	group, err := q.db.GetGroupByID(ctx, arg.GroupID)
	if err != nil {
		return database.GroupMembership{}, xerrors.Errorf("fetch group: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionUpdate, group.RBACObject()); err != nil {
		return database.GroupMembership{}, err
	}
	return q.db.InsertGroupMembership(ctx, arg)
}

func (q *querier) GetGroupMembership(ctx context.Context, userID, groupID uuid.UUID) (database.GroupMembership, error) {
	group, err := q.db.GetGroupByID(ctx, groupID)
	if err != nil {
		return database.GroupMembership{}, xerrors.Errorf("fetch group: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionRead, group.RBACObject()); err != nil {
		return database.GroupMembership{}, err
	}
	return q.db.GetGroupMembership(ctx, userID, groupID)
}

func (q *querier) InsertEnrollment(ctx context.Context, arg database.InsertEnrollmentParams) (database.Enrollment, error) {
	class, err := q.db.GetClassByID(ctx, arg.ClassID)
	if err != nil {
		return database.Enrollment{}, xerrors.Errorf("fetch class: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionUpdate, class.RBACObject()); err != nil {
		return database.Enrollment{}, err
	}
	return q.db.InsertEnrollment(ctx, arg)
}

func (q *querier) GetEnrollment(ctx context.Context, studentID, classID uuid.UUID) (database.Enrollment, error) {
	class, err := q.db.GetClassByID(ctx, classID)
	if err != nil {
		return database.Enrollment{}, xerrors.Errorf("fetch class: %w", err)
	}
	if err := authorize(ctx, q.auth, rbac.ActionRead, class.RBACObject()); err != nil {
		return database.Enrollment{}, err
	}
	return q.db.GetEnrollment(ctx, studentID, classID)
}

// API keys

func (q *querier) InsertAPIKey(ctx context.Context, arg database.InsertAPIKeyParams) (database.APIKey, error) {
	object := rbac.ResourceAPIKey.WithOwner(arg.UserID)
	return insert(q.auth, rbac.ActionCreate, object, q.db.InsertAPIKey)(ctx, arg)
}

func (q *querier) GetAPIKeyByHashedSecret(ctx context.Context, hashedSecret string) (database.APIKey, error) {
	// Used by the session middleware before any subject exists.
	if err := q.systemOnly(ctx); err != nil {
		return database.APIKey{}, err
	}
	return q.db.GetAPIKeyByHashedSecret(ctx, hashedSecret)
}

func (q *querier) UpdateAPIKeyLastUsed(ctx context.Context, arg database.UpdateAPIKeyLastUsedParams) error {
	if err := q.systemOnly(ctx); err != nil {
		return err
	}
	return q.db.UpdateAPIKeyLastUsed(ctx, arg)
}

func (q *querier) DeleteAPIKeysByUserID(ctx context.Context, userID uuid.UUID) error {
	object := rbac.ResourceAPIKey.WithOwner(userID)
	if err := authorize(ctx, q.auth, rbac.ActionDelete, object); err != nil {
		return err
	}
	return q.db.DeleteAPIKeysByUserID(ctx, userID)
}

// Audit

func (q *querier) InsertAuditLog(ctx context.Context, arg database.InsertAuditLogParams) (database.AuditLog, error) {
	// Only the audit sink writes; it runs as system.
	if err := q.systemOnly(ctx); err != nil {
		return database.AuditLog{}, err
	}
	return q.db.InsertAuditLog(ctx, arg)
}

func (q *querier) GetAuditLogs(ctx context.Context, arg database.GetAuditLogsParams) ([]database.AuditLog, error) {
	object := rbac.ResourceAuditLog
	if arg.SchoolID.Valid {
		object = object.InSchool(arg.SchoolID.UUID)
	}
	if err := authorize(ctx, q.auth, rbac.ActionRead, object); err != nil {
		return nil, err
	}
	return q.db.GetAuditLogs(ctx, arg)
}
