package provision_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/audit/audittest"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbgen"
	"github.com/chalkboard/chalkboard/chalkd/database/dbmem"
	"github.com/chalkboard/chalkboard/chalkd/invites"
	"github.com/chalkboard/chalkboard/chalkd/provision"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/chalkd/relations"
	"github.com/chalkboard/chalkboard/testutil"
)

type testEnv struct {
	db  database.Store
	svc *provision.Service
}

func newEnv(t *testing.T, effects ...provision.SideEffect) *testEnv {
	t.Helper()
	db := dbmem.New()
	log := testutil.Logger(t)
	rel := relations.New(db)
	inviteSvc := invites.New(invites.Options{
		Database:   db,
		Relations:  rel,
		Authorizer: rbac.NewAuthorizer(rel, log),
		Auditor:    audittest.New(),
		Logger:     log,
	})
	svc := provision.New(provision.Options{
		Database:    db,
		Invites:     inviteSvc,
		Logger:      log,
		SideEffects: effects,
	})
	return &testEnv{db: db, svc: svc}
}

func (e *testEnv) invite(t *testing.T, seed database.Invite) database.Invite {
	if seed.ExpiresAt.IsZero() {
		seed.ExpiresAt = time.Now().Add(time.Hour)
	}
	return dbgen.Invite(t, e.db, seed)
}

func TestProvisionIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("CreatesUserFromGrant", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)
		school := dbgen.School(t, env.db, database.School{})
		invite := env.invite(t, database.Invite{
			Role:     rbac.RoleTeacher,
			SchoolID: uuid.NullUUID{UUID: school.ID, Valid: true},
		})

		identityID := uuid.New()
		user, err := env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:    identityID,
			Token: invite.Token,
			Email: "new.teacher@example.com",
		})
		require.NoError(t, err)
		require.Equal(t, identityID, user.ID)
		// Role and school come from the invite, nowhere else.
		require.Equal(t, rbac.RoleTeacher, user.Role)
		require.Equal(t, school.ID, user.SchoolID.UUID)
		// Username falls back to the email local part.
		require.Equal(t, "new.teacher", user.Username)

		consumed, err := env.db.GetInviteByID(ctx, invite.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, consumed.TimesUsed)
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)
		school := dbgen.School(t, env.db, database.School{})
		existing := dbgen.User(t, env.db, database.User{
			Role:     rbac.RoleStudent,
			SchoolID: uuid.NullUUID{UUID: school.ID, Valid: true},
		})

		// Re-invocation with the same identity returns the existing
		// user without touching any invite.
		user, err := env.svc.ProvisionIdentity(ctx, provision.Identity{ID: existing.ID})
		require.NoError(t, err)
		require.Equal(t, existing.ID, user.ID)
	})

	t.Run("MissingTokenRejected", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)

		_, err := env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:    uuid.New(),
			Email: "no.token@example.com",
		})
		require.ErrorIs(t, err, provision.ErrCredentialRequired)
	})

	t.Run("UnknownTokenRejected", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)

		_, err := env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:    uuid.New(),
			Token: "never-minted",
			Email: "ghost@example.com",
		})
		require.ErrorIs(t, err, invites.ErrNotFound)
	})

	t.Run("AutoEnrollsStudent", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)
		school := dbgen.School(t, env.db, database.School{})
		class := dbgen.Class(t, env.db, database.Class{SchoolID: school.ID})
		invite := env.invite(t, database.Invite{
			Role:     rbac.RoleStudent,
			SchoolID: uuid.NullUUID{UUID: school.ID, Valid: true},
			ClassID:  uuid.NullUUID{UUID: class.ID, Valid: true},
		})

		user, err := env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:    uuid.New(),
			Token: invite.Token,
			Email: "student@example.com",
		})
		require.NoError(t, err)

		_, err = env.db.GetEnrollment(ctx, user.ID, class.ID)
		require.NoError(t, err, "class-scoped invite must enroll the student")
	})

	t.Run("SideEffectFailureRollsBack", func(t *testing.T) {
		t.Parallel()
		boom := xerrors.New("seat allocation failed")
		env := newEnv(t, func(context.Context, database.Store, database.User, invites.Redemption) error {
			return boom
		})
		school := dbgen.School(t, env.db, database.School{})
		invite := env.invite(t, database.Invite{
			Role:     rbac.RoleStudent,
			SchoolID: uuid.NullUUID{UUID: school.ID, Valid: true},
		})

		identityID := uuid.New()
		_, err := env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:    identityID,
			Token: invite.Token,
			Email: "unlucky@example.com",
		})
		require.ErrorIs(t, err, boom)

		// Nothing happened: no user, and the token kept its use.
		_, err = env.db.GetUserByID(ctx, identityID)
		require.ErrorIs(t, err, database.ErrNoRows)
		after, err := env.db.GetInviteByID(ctx, invite.ID)
		require.NoError(t, err)
		require.EqualValues(t, 0, after.TimesUsed)

		// The token survives repeated failed attempts.
		_, err = env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:    identityID,
			Token: invite.Token,
			Email: "unlucky@example.com",
		})
		require.ErrorIs(t, err, boom)
		after, err = env.db.GetInviteByID(ctx, invite.ID)
		require.NoError(t, err)
		require.EqualValues(t, 0, after.TimesUsed)
	})

	t.Run("DuplicateEmailRollsBack", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)
		school := dbgen.School(t, env.db, database.School{})
		schoolID := uuid.NullUUID{UUID: school.ID, Valid: true}
		existing := dbgen.User(t, env.db, database.User{Role: rbac.RoleStudent, SchoolID: schoolID})
		invite := env.invite(t, database.Invite{Role: rbac.RoleStudent, SchoolID: schoolID})

		_, err := env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:    uuid.New(),
			Token: invite.Token,
			Email: existing.Email,
		})
		require.ErrorIs(t, err, database.ErrUniqueViolation)

		after, err := env.db.GetInviteByID(ctx, invite.ID)
		require.NoError(t, err)
		require.EqualValues(t, 0, after.TimesUsed, "failed provisioning must not consume the token")
	})

	t.Run("PayloadClaimsIgnored", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)
		school := dbgen.School(t, env.db, database.School{})
		invite := env.invite(t, database.Invite{
			Role:     rbac.RoleStudent,
			SchoolID: uuid.NullUUID{UUID: school.ID, Valid: true},
		})

		// The identity payload has no say in role or school; there is
		// simply no field for them. The grant decides.
		user, err := env.svc.ProvisionIdentity(ctx, provision.Identity{
			ID:        uuid.New(),
			Token:     invite.Token,
			Email:     "claims@example.com",
			Username:  "picked-name",
			FirstName: "Ada",
		})
		require.NoError(t, err)
		require.Equal(t, rbac.RoleStudent, user.Role)
		require.Equal(t, school.ID, user.SchoolID.UUID)
		require.Equal(t, "picked-name", user.Username)
		require.Equal(t, "Ada", user.FirstName)
	})
}
