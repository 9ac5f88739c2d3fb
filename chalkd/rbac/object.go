package rbac

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Object is the resource an action is performed on. Database models
// implement Objecter to describe themselves for policy evaluation.
type Object struct {
	// Type is "school", "user", "invite", etc. It selects the rule
	// table used for evaluation.
	Type string `json:"type"`
	// ID is the resource's uuid. May be uuid.Nil when authorizing
	// creation or a whole collection.
	ID uuid.UUID `json:"id"`
	// Owner is the user the resource belongs to, when the resource is
	// user-owned (a user row owns itself, an api key is owned by its
	// user). uuid.Nil otherwise.
	Owner uuid.UUID `json:"owner"`
	// SchoolID is the owning tenant. Null marks a platform-scoped
	// object that only site admins (or the owner, for owner rules) may
	// touch.
	SchoolID uuid.NullUUID `json:"school_id"`
}

// Objecter returns the RBAC object for authorization checks.
type Objecter interface {
	RBACObject() Object
}

func (o Object) RBACObject() Object {
	return o
}

// WithID returns the object with the resource id set.
func (o Object) WithID(id uuid.UUID) Object {
	o.ID = id
	return o
}

// WithOwner returns the object with the owning user set.
func (o Object) WithOwner(id uuid.UUID) Object {
	o.Owner = id
	return o
}

// InSchool returns the object bound to the given tenant.
func (o Object) InSchool(id uuid.UUID) Object {
	o.SchoolID = uuid.NullUUID{UUID: id, Valid: true}
	return o
}

// String is decent enough for logging, not guaranteed stable.
func (o Object) String() string {
	parts := []string{o.Type}
	if o.SchoolID.Valid {
		parts = append(parts, fmt.Sprintf("school:%s", o.SchoolID.UUID))
	}
	if o.Owner != uuid.Nil {
		parts = append(parts, fmt.Sprintf("owner:%s", o.Owner))
	}
	if o.ID != uuid.Nil {
		parts = append(parts, fmt.Sprintf("id:%s", o.ID))
	}
	return strings.Join(parts, ".")
}

var (
	ResourceSchool = Object{Type: "school"}

	ResourceUser = Object{Type: "user"}

	ResourceInvite = Object{Type: "invite"}

	ResourceClass = Object{Type: "class"}

	ResourceGroup = Object{Type: "group"}

	ResourceAuditLog = Object{Type: "audit_log"}

	ResourceAPIKey = Object{Type: "api_key"}
)
