package rbac

import (
	"fmt"

	"github.com/google/uuid"
)

// Subject is the actor performing an action. It is resolved once per
// request by the principal resolver and threaded through the call stack
// in the request context. It must never be cached across requests; a
// mid-session role change takes effect on the next request.
type Subject struct {
	// ID is the user (identity) id. uuid.Nil for the system subject.
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
	// SchoolID is null only for site admins and the system subject.
	SchoolID uuid.NullUUID `json:"school_id"`

	// system marks the privileged internal subject. It is only
	// constructable via the System() function.
	system bool
}

// System returns the privileged subject used by internal code paths
// (relationship predicates, the principal resolver, and the mutation
// funnel inside the issuance and provisioning services). The authorized
// store recognizes it and bypasses policy evaluation entirely, which is
// what keeps predicate evaluation from re-entering the authorizer.
func System() Subject {
	return Subject{
		ID:     uuid.Nil,
		Role:   RoleSiteAdmin,
		system: true,
	}
}

// IsSystem reports whether the subject is the internal privileged
// subject.
func (s Subject) IsSystem() bool {
	return s.system
}

func (s Subject) Valid() bool {
	if s.system {
		return true
	}
	if s.ID == uuid.Nil {
		return false
	}
	if err := s.Role.Valid(); err != nil {
		return false
	}
	// Everyone below site admin belongs to a school.
	if s.Role.SchoolScoped() && !s.SchoolID.Valid {
		return false
	}
	return true
}

// String is used in logs and error internals, never shown to clients.
func (s Subject) String() string {
	if s.system {
		return "system"
	}
	school := "<none>"
	if s.SchoolID.Valid {
		school = s.SchoolID.UUID.String()
	}
	return fmt.Sprintf("%s/%s@%s", s.ID.String(), s.Role, school)
}
