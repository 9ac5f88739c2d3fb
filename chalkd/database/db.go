// Package database contains the storage layer for the platform: the
// model types, the Store interface, an in-memory implementation for
// development and tests (dbmem), and the authorization-enforcing
// wrapper (dbauthz).
//
// Two access paths exist deliberately. Ordinary request handling goes
// through dbauthz, which consults the rbac authorizer for every call.
// The relationship predicates and the principal resolver read a raw
// Store directly, which is what makes it impossible for policy
// evaluation to recurse into itself.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// ErrNoRows is returned when a requested row does not exist. Compare
// with errors.Is.
var ErrNoRows = sql.ErrNoRows

// ErrUniqueViolation is returned when an insert would duplicate a
// unique column (token values, user ids, emails).
var ErrUniqueViolation = fmt.Errorf("unique violation")

// Invite consumption outcomes. These are distinct from ErrNoRows so the
// issuance service can surface precise, user-facing rejection reasons.
var (
	ErrInviteExpired   = fmt.Errorf("invite expired")
	ErrInviteExhausted = fmt.Errorf("invite exhausted")
)

// IntegrityError reports an invariant breach observed in stored data,
// e.g. times_used above usage_limit. It is bug-level: unreachable if
// atomicity holds. Callers log it loudly and abort.
type IntegrityError struct {
	Table  string
	ID     uuid.UUID
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s %s: %s", e.Table, e.ID, e.Detail)
}

// Store is the storage interface. All mutation of invite usage, user
// roles and user schools is funneled through the issuance service and
// provisioning workflow; nothing else calls those methods.
type Store interface {
	// InTx runs fn atomically: either every mutation fn performs is
	// visible afterwards, or none is. Implementations must provide at
	// least read-committed reads and make ConsumeInvite a serializable
	// check-and-increment.
	InTx(fn func(Store) error) error

	// Schools
	InsertSchool(ctx context.Context, arg InsertSchoolParams) (School, error)
	GetSchoolByID(ctx context.Context, id uuid.UUID) (School, error)
	GetSchools(ctx context.Context) ([]School, error)

	// Users
	InsertUser(ctx context.Context, arg InsertUserParams) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsers(ctx context.Context, arg GetUsersParams) ([]User, error)
	CountUsersByRole(ctx context.Context, role rbac.Role) (int64, error)
	UpdateUserRole(ctx context.Context, arg UpdateUserRoleParams) (User, error)
	UpdateUserSchool(ctx context.Context, arg UpdateUserSchoolParams) (User, error)
	UpdateUserDeleted(ctx context.Context, arg UpdateUserDeletedParams) (User, error)
	UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (User, error)

	// Invites
	InsertInvite(ctx context.Context, arg InsertInviteParams) (Invite, error)
	GetInviteByID(ctx context.Context, id uuid.UUID) (Invite, error)
	GetInviteByToken(ctx context.Context, token string) (Invite, error)
	GetInvitesBySchool(ctx context.Context, schoolID uuid.UUID) ([]Invite, error)
	GetLiveBootstrapInvite(ctx context.Context, now time.Time) (Invite, error)
	// ConsumeInvite atomically validates and increments usage. It
	// returns ErrNoRows for an unknown token, ErrInviteExpired past
	// expiry, ErrInviteExhausted at the usage limit, and an
	// *IntegrityError if stored usage already exceeds the limit.
	ConsumeInvite(ctx context.Context, arg ConsumeInviteParams) (Invite, error)
	// ExpireInvite forces ExpiresAt to the given instant (revocation).
	ExpireInvite(ctx context.Context, arg ExpireInviteParams) (Invite, error)

	// Classes, groups and relationship records. The relationship rows
	// are owned by collaborator domains; policy predicates only read
	// them.
	InsertClass(ctx context.Context, arg InsertClassParams) (Class, error)
	GetClassByID(ctx context.Context, id uuid.UUID) (Class, error)
	InsertGroup(ctx context.Context, arg InsertGroupParams) (Group, error)
	GetGroupByID(ctx context.Context, id uuid.UUID) (Group, error)
	InsertTeachingAssignment(ctx context.Context, arg InsertTeachingAssignmentParams) (TeachingAssignment, error)
	GetTeachingAssignment(ctx context.Context, teacherID, classID uuid.UUID) (TeachingAssignment, error)
	InsertGuardianship(ctx context.Context, arg InsertGuardianshipParams) (Guardianship, error)
	GetGuardianship(ctx context.Context, guardianID, studentID uuid.UUID) (Guardianship, error)
	GetGuardianshipsByGuardian(ctx context.Context, guardianID uuid.UUID) ([]Guardianship, error)
	InsertGroupMembership(ctx context.Context, arg InsertGroupMembershipParams) (GroupMembership, error)
	GetGroupMembership(ctx context.Context, userID, groupID uuid.UUID) (GroupMembership, error)
	InsertEnrollment(ctx context.Context, arg InsertEnrollmentParams) (Enrollment, error)
	GetEnrollment(ctx context.Context, studentID, classID uuid.UUID) (Enrollment, error)

	// API keys (sessions)
	InsertAPIKey(ctx context.Context, arg InsertAPIKeyParams) (APIKey, error)
	GetAPIKeyByHashedSecret(ctx context.Context, hashedSecret string) (APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, arg UpdateAPIKeyLastUsedParams) error
	DeleteAPIKeysByUserID(ctx context.Context, userID uuid.UUID) error

	// Audit
	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error)
	GetAuditLogs(ctx context.Context, arg GetAuditLogsParams) ([]AuditLog, error)
}

type InsertSchoolParams struct {
	ID   uuid.UUID
	Name string
}

type InsertUserParams struct {
	ID        uuid.UUID
	Email     string
	Username  string
	Role      rbac.Role
	SchoolID  uuid.NullUUID
	FirstName string
	LastName  string
	AvatarURL string
}

type GetUsersParams struct {
	// SchoolID filters to one school when valid.
	SchoolID uuid.NullUUID
	// IncludeDeleted includes soft-deleted rows.
	IncludeDeleted bool
}

type UpdateUserRoleParams struct {
	ID   uuid.UUID
	Role rbac.Role
}

type UpdateUserSchoolParams struct {
	ID       uuid.UUID
	SchoolID uuid.NullUUID
}

type UpdateUserDeletedParams struct {
	ID      uuid.UUID
	Deleted bool
}

type UpdateUserProfileParams struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	AvatarURL string
}

type InsertInviteParams struct {
	ID         uuid.UUID
	Token      string
	Role       rbac.Role
	SchoolID   uuid.NullUUID
	ClassID    uuid.NullUUID
	UsageLimit int32
	ExpiresAt  time.Time
	IssuerID   uuid.NullUUID
	Bootstrap  bool
}

type ConsumeInviteParams struct {
	Token string
	Now   time.Time
}

type ExpireInviteParams struct {
	ID  uuid.UUID
	Now time.Time
}

type InsertClassParams struct {
	ID       uuid.UUID
	SchoolID uuid.UUID
	Name     string
}

type InsertGroupParams struct {
	ID       uuid.UUID
	SchoolID uuid.UUID
	Name     string
}

type InsertTeachingAssignmentParams struct {
	TeacherID uuid.UUID
	ClassID   uuid.UUID
}

type InsertGuardianshipParams struct {
	GuardianID uuid.UUID
	StudentID  uuid.UUID
}

type InsertGroupMembershipParams struct {
	UserID  uuid.UUID
	GroupID uuid.UUID
}

type InsertEnrollmentParams struct {
	StudentID uuid.UUID
	ClassID   uuid.UUID
}

type InsertAPIKeyParams struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	HashedSecret string
	ExpiresAt    time.Time
}

type UpdateAPIKeyLastUsedParams struct {
	ID       uuid.UUID
	LastUsed time.Time
}

type InsertAuditLogParams struct {
	ID           uuid.UUID
	Time         time.Time
	ActorID      uuid.NullUUID
	Action       AuditAction
	ResourceType string
	ResourceID   uuid.UUID
	SchoolID     uuid.NullUUID
	Detail       string
}

type GetAuditLogsParams struct {
	// SchoolID filters to one school when valid.
	SchoolID uuid.NullUUID
}
