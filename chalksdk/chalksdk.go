// Package chalksdk contains the wire types and client for the chalkd
// HTTP API.
package chalksdk

import (
	"time"

	"github.com/google/uuid"
)

// Response is the generic error envelope the API writes on failure.
type Response struct {
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// ValidationError scopes an error to a request field.
type ValidationError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

type User struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	SchoolID  *uuid.UUID `json:"school_id,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type School struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Invite struct {
	ID         uuid.UUID  `json:"id"`
	Token      string     `json:"token,omitempty"`
	Role       string     `json:"role"`
	SchoolID   *uuid.UUID `json:"school_id,omitempty"`
	ClassID    *uuid.UUID `json:"class_id,omitempty"`
	UsageLimit int32      `json:"usage_limit"`
	TimesUsed  int32      `json:"times_used"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Bootstrap  bool       `json:"bootstrap,omitempty"`
}

type AuditLog struct {
	ID           uuid.UUID  `json:"id"`
	Time         time.Time  `json:"time"`
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
	ResourceID   uuid.UUID  `json:"resource_id"`
	SchoolID     *uuid.UUID `json:"school_id,omitempty"`
	Detail       string     `json:"detail,omitempty"`
}

type CreateSchoolRequest struct {
	Name string `json:"name" validate:"required"`
}

type CreateInviteRequest struct {
	Role       string     `json:"role" validate:"required"`
	SchoolID   *uuid.UUID `json:"school_id,omitempty"`
	ClassID    *uuid.UUID `json:"class_id,omitempty"`
	UsageLimit int32      `json:"usage_limit,omitempty"`
	TTLMillis  int64      `json:"ttl_ms,omitempty"`
}

type CreateRegistrationRequest struct {
	// ID is the identity id assigned by the identity provider.
	ID uuid.UUID `json:"id" validate:"required"`
	// InviteToken is the credential being redeemed.
	InviteToken string `json:"invite_token"`
	Email       string `json:"email" validate:"required,email"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type RegistrationResponse struct {
	User User `json:"user"`
	// SessionToken authenticates subsequent requests.
	SessionToken string `json:"session_token"`
}

type BootstrapRequest struct {
	TTLMillis int64 `json:"ttl_ms,omitempty"`
}

type BootstrapResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UpdateUserRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type UpdateUserSchoolRequest struct {
	SchoolID *uuid.UUID `json:"school_id"`
}
