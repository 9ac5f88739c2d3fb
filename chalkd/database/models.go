package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// School is a tenant: an isolated organizational unit that owns users
// and every school-scoped resource.
type School struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a principal: an authenticated identity with exactly one role
// and, for everyone below site admin, a school. Users are created once
// by the provisioning workflow and never hard-deleted.
type User struct {
	// ID is the identity id assigned by the identity provider.
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Role     rbac.Role `json:"role"`
	// SchoolID is null only for site admins.
	SchoolID  uuid.NullUUID `json:"school_id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	AvatarURL string        `json:"avatar_url"`
	// Deleted is the soft-delete marker. Deleted users no longer
	// authenticate but their rows (and audit trail) remain.
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invite is a single- or multi-use credential that grants a role,
// school and optional class scope upon redemption. Rows are never
// deleted; revocation forces ExpiresAt into the past.
type Invite struct {
	ID uuid.UUID `json:"id"`
	// Token is the secret invite code. Unique across all invites.
	Token string    `json:"token"`
	Role  rbac.Role `json:"role"`
	// SchoolID is null only for site-admin invites.
	SchoolID uuid.NullUUID `json:"school_id"`
	// ClassID optionally pre-binds the redeemed student to a class.
	ClassID    uuid.NullUUID `json:"class_id"`
	UsageLimit int32         `json:"usage_limit"`
	TimesUsed  int32         `json:"times_used"`
	ExpiresAt  time.Time     `json:"expires_at"`
	// IssuerID is null for bootstrap invites.
	IssuerID uuid.NullUUID `json:"issuer_id"`
	// Bootstrap marks the one-time platform bootstrap credential.
	Bootstrap bool      `json:"bootstrap"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Live reports whether the invite can still be redeemed at the given
// instant.
func (i Invite) Live(now time.Time) bool {
	return i.TimesUsed < i.UsageLimit && i.ExpiresAt.After(now)
}

// Class is a school-scoped teaching unit referenced by teaching
// assignments, enrollments and class-scoped invites.
type Class struct {
	ID        uuid.UUID `json:"id"`
	SchoolID  uuid.UUID `json:"school_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is a school-scoped collection of users.
type Group struct {
	ID        uuid.UUID `json:"id"`
	SchoolID  uuid.UUID `json:"school_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TeachingAssignment records that a teacher teaches a class. Owned by
// the scheduling domain, consumed read-only by policy predicates.
type TeachingAssignment struct {
	TeacherID uuid.UUID `json:"teacher_id"`
	ClassID   uuid.UUID `json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Guardianship records that a guardian is responsible for a student.
type Guardianship struct {
	GuardianID uuid.UUID `json:"guardian_id"`
	StudentID  uuid.UUID `json:"student_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// GroupMembership records that a user belongs to a group.
type GroupMembership struct {
	UserID    uuid.UUID `json:"user_id"`
	GroupID   uuid.UUID `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment records that a student attends a class.
type Enrollment struct {
	StudentID uuid.UUID `json:"student_id"`
	ClassID   uuid.UUID `json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey is an opaque session credential. Only the hash of the secret
// is stored.
type APIKey struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	HashedSecret string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastUsed     time.Time `json:"last_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditAction enumerates the append-only audit event kinds.
type AuditAction string

const (
	AuditActionInviteGenerated    AuditAction = "invite_generated"
	AuditActionInviteRedeemed     AuditAction = "invite_redeemed"
	AuditActionInviteRevoked      AuditAction = "invite_revoked"
	AuditActionRoleChanged        AuditAction = "role_changed"
	AuditActionSchoolChanged      AuditAction = "school_changed"
	AuditActionUserDeleted        AuditAction = "user_deleted"
	AuditActionUserRestored       AuditAction = "user_restored"
	AuditActionBootstrapGenerated AuditAction = "bootstrap_generated"
	AuditActionBootstrapConflict  AuditAction = "bootstrap_conflict"
)

// AuditLog is one row of the append-only audit trail.
type AuditLog struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`
	// ActorID is null for unauthenticated paths (bootstrap).
	ActorID      uuid.NullUUID `json:"actor_id"`
	Action       AuditAction   `json:"action"`
	ResourceType string        `json:"resource_type"`
	ResourceID   uuid.UUID     `json:"resource_id"`
	// SchoolID scopes the event for tenant-level audit review.
	SchoolID uuid.NullUUID `json:"school_id"`
	// Detail is a short human-readable summary. Token values never
	// appear here, only prefixes.
	Detail string `json:"detail"`
}
