package chalkd_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chalkboard/chalkboard/chalkd/chalkdtest"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/chalksdk"
	"github.com/chalkboard/chalkboard/testutil"
)

// requireStatusCode asserts err is an API error with the given status.
func requireStatusCode(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *chalksdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode)
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitLong)
	client, _ := chalkdtest.New(t, nil)

	// No session, no API.
	_, err := client.Me(ctx)
	requireStatusCode(t, err, http.StatusUnauthorized)

	admin := chalkdtest.CreateFirstAdmin(t, client)
	require.Equal(t, string(rbac.RoleSiteAdmin), admin.Role)
	require.Nil(t, admin.SchoolID)

	me, err := client.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, admin.ID, me.ID)

	// Once an admin exists the bootstrap door is closed for good.
	_, err = client.Bootstrap(ctx, chalksdk.BootstrapRequest{})
	requireStatusCode(t, err, http.StatusConflict)
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitLong)
	client, _ := chalkdtest.New(t, nil)
	chalkdtest.CreateFirstAdmin(t, client)
	school := chalkdtest.CreateSchool(t, client, "Northside")

	invite, err := client.CreateInvite(ctx, chalksdk.CreateInviteRequest{
		Role:       string(rbac.RoleStudent),
		SchoolID:   &school.ID,
		UsageLimit: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, invite.Token)

	t.Run("TokenRequired", func(t *testing.T) {
		_, err := client.Register(ctx, chalksdk.CreateRegistrationRequest{
			ID:    uuid.New(),
			Email: "no.token@example.com",
		})
		requireStatusCode(t, err, http.StatusBadRequest)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		_, err := client.Register(ctx, chalksdk.CreateRegistrationRequest{
			ID:          uuid.New(),
			InviteToken: "nosuchtk",
			Email:       "ghost@example.com",
		})
		requireStatusCode(t, err, http.StatusNotFound)
	})

	t.Run("GrantDecidesRoleAndSchool", func(t *testing.T) {
		_, student := chalkdtest.RegisterUser(t, client, invite.Token, "s1@example.com")
		require.Equal(t, string(rbac.RoleStudent), student.Role)
		require.NotNil(t, student.SchoolID)
		require.Equal(t, school.ID, *student.SchoolID)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, err := client.Register(ctx, chalksdk.CreateRegistrationRequest{
			ID:          uuid.New(),
			InviteToken: invite.Token,
			Email:       "s1@example.com",
		})
		requireStatusCode(t, err, http.StatusConflict)
	})

	t.Run("UsageLimitEnforced", func(t *testing.T) {
		// The failed duplicate above must not have burned a use.
		chalkdtest.RegisterUser(t, client, invite.Token, "s2@example.com")

		_, err := client.Register(ctx, chalksdk.CreateRegistrationRequest{
			ID:          uuid.New(),
			InviteToken: invite.Token,
			Email:       "s3@example.com",
		})
		requireStatusCode(t, err, http.StatusGone)
	})
}

func TestInvites(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitLong)
	client, _ := chalkdtest.New(t, nil)
	chalkdtest.CreateFirstAdmin(t, client)
	schoolA := chalkdtest.CreateSchool(t, client, "Northside")
	schoolB := chalkdtest.CreateSchool(t, client, "Southside")

	teacherInvite, err := client.CreateInvite(ctx, chalksdk.CreateInviteRequest{
		Role:     string(rbac.RoleTeacher),
		SchoolID: &schoolA.ID,
	})
	require.NoError(t, err)
	teacherClient, teacher := chalkdtest.RegisterUser(t, client, teacherInvite.Token, "t@example.com")
	require.Equal(t, string(rbac.RoleTeacher), teacher.Role)

	t.Run("TeachersCannotCreateSchools", func(t *testing.T) {
		_, err := teacherClient.CreateSchool(ctx, chalksdk.CreateSchoolRequest{Name: "Rogue High"})
		requireStatusCode(t, err, http.StatusForbidden)
	})

	t.Run("TeacherInvitesNeedAClass", func(t *testing.T) {
		_, err := teacherClient.CreateInvite(ctx, chalksdk.CreateInviteRequest{
			Role: string(rbac.RoleStudent),
		})
		requireStatusCode(t, err, http.StatusBadRequest)
	})

	t.Run("SchoolAdminDefaultsToOwnSchool", func(t *testing.T) {
		saInvite, err := client.CreateInvite(ctx, chalksdk.CreateInviteRequest{
			Role:     string(rbac.RoleSchoolAdmin),
			SchoolID: &schoolA.ID,
		})
		require.NoError(t, err)
		saClient, _ := chalkdtest.RegisterUser(t, client, saInvite.Token, "sa@example.com")

		invite, err := saClient.CreateInvite(ctx, chalksdk.CreateInviteRequest{
			Role: string(rbac.RoleStudent),
		})
		require.NoError(t, err)
		require.NotNil(t, invite.SchoolID)
		require.Equal(t, schoolA.ID, *invite.SchoolID)
	})

	t.Run("StudentsCannotMint", func(t *testing.T) {
		invite, err := client.CreateInvite(ctx, chalksdk.CreateInviteRequest{
			Role:     string(rbac.RoleStudent),
			SchoolID: &schoolA.ID,
		})
		require.NoError(t, err)
		studentClient, _ := chalkdtest.RegisterUser(t, client, invite.Token, "s@example.com")

		_, err = studentClient.CreateInvite(ctx, chalksdk.CreateInviteRequest{
			Role: string(rbac.RoleStudent),
		})
		requireStatusCode(t, err, http.StatusForbidden)
	})

	t.Run("ListingNeverLeaksTokens", func(t *testing.T) {
		listed, err := client.SchoolInvites(ctx, schoolA.ID)
		require.NoError(t, err)
		require.NotEmpty(t, listed)
		for _, invite := range listed {
			require.Empty(t, invite.Token)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := teacherClient.School(ctx, schoolB.ID)
		requireStatusCode(t, err, http.StatusForbidden)

		schools, err := teacherClient.Schools(ctx)
		require.NoError(t, err)
		require.Len(t, schools, 1)
		require.Equal(t, schoolA.ID, schools[0].ID)
	})
}

func TestRevokeInvite(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitLong)
	client, _ := chalkdtest.New(t, nil)
	chalkdtest.CreateFirstAdmin(t, client)
	school := chalkdtest.CreateSchool(t, client, "Northside")

	invite, err := client.CreateInvite(ctx, chalksdk.CreateInviteRequest{
		Role:     string(rbac.RoleStudent),
		SchoolID: &school.ID,
	})
	require.NoError(t, err)

	require.NoError(t, client.RevokeInvite(ctx, invite.Token))

	// A revoked token redeems like an expired one.
	_, err = client.Register(ctx, chalksdk.CreateRegistrationRequest{
		ID:          uuid.New(),
		InviteToken: invite.Token,
		Email:       "late@example.com",
	})
	requireStatusCode(t, err, http.StatusGone)

	// Revoking again is harmless, revoking garbage is not found.
	require.NoError(t, client.RevokeInvite(ctx, invite.Token))
	err = client.RevokeInvite(ctx, "nosuchtk")
	requireStatusCode(t, err, http.StatusNotFound)
}

func TestUserAdministration(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitLong)
	client, _ := chalkdtest.New(t, nil)
	admin := chalkdtest.CreateFirstAdmin(t, client)
	school := chalkdtest.CreateSchool(t, client, "Northside")

	invite, err := client.CreateInvite(ctx, chalksdk.CreateInviteRequest{
		Role:       string(rbac.RoleTeacher),
		SchoolID:   &school.ID,
		UsageLimit: 1,
	})
	require.NoError(t, err)
	teacherClient, teacher := chalkdtest.RegisterUser(t, client, invite.Token, "t@example.com")

	t.Run("RoleChange", func(t *testing.T) {
		updated, err := client.UpdateUserRole(ctx, teacher.ID, chalksdk.UpdateUserRoleRequest{
			Role: string(rbac.RoleSchoolAdmin),
		})
		require.NoError(t, err)
		require.Equal(t, string(rbac.RoleSchoolAdmin), updated.Role)
	})

	t.Run("DeleteKillsSessions", func(t *testing.T) {
		require.NoError(t, client.DeleteUser(ctx, teacher.ID))

		_, err := teacherClient.Me(ctx)
		requireStatusCode(t, err, http.StatusUnauthorized)

		restored, err := client.RestoreUser(ctx, teacher.ID)
		require.NoError(t, err)
		require.False(t, restored.Deleted)
	})

	t.Run("AdminSelfDelete", func(t *testing.T) {
		err := client.DeleteUser(ctx, admin.ID)
		requireStatusCode(t, err, http.StatusConflict)
	})
}

func TestAuditLogs(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitLong)
	client, _ := chalkdtest.New(t, nil)
	chalkdtest.CreateFirstAdmin(t, client)
	school := chalkdtest.CreateSchool(t, client, "Northside")

	invite, err := client.CreateInvite(ctx, chalksdk.CreateInviteRequest{
		Role:     string(rbac.RoleSchoolAdmin),
		SchoolID: &school.ID,
	})
	require.NoError(t, err)
	saClient, _ := chalkdtest.RegisterUser(t, client, invite.Token, "sa@example.com")

	// The platform trail has the mint and the redemption, and never the
	// token itself.
	logs, err := client.AuditLogs(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	for _, alog := range logs {
		require.NotContains(t, alog.Detail, invite.Token)
	}

	// School admins read their own school's slice only.
	_, err = saClient.AuditLogs(ctx, &school.ID)
	require.NoError(t, err)
	_, err = saClient.AuditLogs(ctx, nil)
	requireStatusCode(t, err, http.StatusForbidden)
}
