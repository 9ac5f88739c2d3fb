package rbac

import (
	"golang.org/x/xerrors"
)

// Role is a single ordered role in the platform hierarchy. Every user
// holds exactly one role. Administrative reach strictly increases with
// rank, so "is X at least a Y" questions are answered by comparing
// ranks instead of enumerating role pairs.
type Role string

const (
	// RoleSiteAdmin is the platform-level role. Site admins are not
	// bound to a school and their school id is null.
	RoleSiteAdmin Role = "site-admin"
	// RoleSchoolAdmin administers a single school (tenant).
	RoleSchoolAdmin Role = "school-admin"
	RoleTeacher     Role = "teacher"
	RoleGuardian    Role = "guardian"
	RoleStudent     Role = "student"
)

// roleRanks orders the hierarchy: site-admin > school-admin > teacher >
// guardian/student. Guardian and student share the bottom of the
// administrative ordering; guardians rank above students only so that
// Compare is total.
var roleRanks = map[Role]int{
	RoleSiteAdmin:   4,
	RoleSchoolAdmin: 3,
	RoleTeacher:     2,
	RoleGuardian:    1,
	RoleStudent:     0,
}

// Roles returns all valid roles, highest rank first.
func Roles() []Role {
	return []Role{RoleSiteAdmin, RoleSchoolAdmin, RoleTeacher, RoleGuardian, RoleStudent}
}

func (r Role) Valid() error {
	if _, ok := roleRanks[r]; !ok {
		return xerrors.Errorf("invalid role %q", string(r))
	}
	return nil
}

// Compare returns a negative number if r ranks below other, zero if the
// ranks are equal, and a positive number otherwise. Unknown roles rank
// below every valid role.
func (r Role) Compare(other Role) int {
	return roleRanks[r] - roleRanks[other]
}

// AtLeast reports whether r ranks at or above other in the hierarchy.
func (r Role) AtLeast(other Role) bool {
	if r.Valid() != nil {
		return false
	}
	return r.Compare(other) >= 0
}

// SchoolScoped reports whether the role must be bound to a school.
// Only site admins exist outside a tenant.
func (r Role) SchoolScoped() bool {
	return r != RoleSiteAdmin
}

func (r Role) DisplayName() string {
	switch r {
	case RoleSiteAdmin:
		return "Site Admin"
	case RoleSchoolAdmin:
		return "School Admin"
	case RoleTeacher:
		return "Teacher"
	case RoleGuardian:
		return "Guardian"
	case RoleStudent:
		return "Student"
	default:
		return string(r)
	}
}
