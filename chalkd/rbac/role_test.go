package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

var assertedInternal = xerrors.New("internal detail")

func TestRoleOrdering(t *testing.T) {
	t.Parallel()

	// The hierarchy is strict from student up to site admin.
	ordered := []rbac.Role{rbac.RoleStudent, rbac.RoleGuardian, rbac.RoleTeacher, rbac.RoleSchoolAdmin, rbac.RoleSiteAdmin}
	for i, lower := range ordered {
		require.True(t, lower.AtLeast(lower))
		for _, higher := range ordered[i+1:] {
			require.True(t, higher.AtLeast(lower), "%s should be at least %s", higher, lower)
			require.False(t, lower.AtLeast(higher), "%s should not be at least %s", lower, higher)
			require.Negative(t, lower.Compare(higher))
			require.Positive(t, higher.Compare(lower))
		}
	}
}

func TestRoleValid(t *testing.T) {
	t.Parallel()

	for _, role := range rbac.Roles() {
		require.NoError(t, role.Valid())
	}
	require.Error(t, rbac.Role("janitor").Valid())
	require.Error(t, rbac.Role("").Valid())

	// Unknown roles never outrank anything.
	require.False(t, rbac.Role("janitor").AtLeast(rbac.RoleStudent))
}

func TestRoleSchoolScoped(t *testing.T) {
	t.Parallel()

	require.False(t, rbac.RoleSiteAdmin.SchoolScoped())
	for _, role := range []rbac.Role{rbac.RoleSchoolAdmin, rbac.RoleTeacher, rbac.RoleGuardian, rbac.RoleStudent} {
		require.True(t, role.SchoolScoped())
	}
}

func TestUnauthorizedError(t *testing.T) {
	t.Parallel()

	sub := rbac.Subject{Role: rbac.RoleStudent}
	err := rbac.ForbiddenWithInternal(assertedInternal, sub, rbac.ActionRead, rbac.ResourceClass)

	// The outward message never leaks the internal reason.
	require.EqualError(t, err, "rbac: forbidden")
	require.True(t, rbac.IsUnauthorizedError(err))
	require.ErrorIs(t, err, assertedInternal)
}
