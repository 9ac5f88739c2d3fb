package bootstrap_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coder/quartz"

	"github.com/chalkboard/chalkboard/chalkd/audit/audittest"
	"github.com/chalkboard/chalkboard/chalkd/bootstrap"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbgen"
	"github.com/chalkboard/chalkboard/chalkd/database/dbmem"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/invites"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/testutil"
)

type testEnv struct {
	db      database.Store
	svc     *bootstrap.Service
	clock   *quartz.Mock
	auditor *audittest.Recorder
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbmem.New()
	clock := quartz.NewMock(t)
	auditor := audittest.New()
	svc := bootstrap.New(bootstrap.Options{
		Database: db,
		Auditor:  auditor,
		Logger:   testutil.Logger(t),
		Clock:    clock,
	})
	return &testEnv{db: db, svc: svc, clock: clock, auditor: auditor}
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("MintsLongLivedSecret", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)

		invite, err := env.svc.GenerateToken(ctx, 0)
		require.NoError(t, err)
		require.True(t, invite.Bootstrap)
		require.Len(t, invite.Token, invites.BootstrapTokenLength)
		require.Equal(t, rbac.RoleSiteAdmin, invite.Role)
		require.False(t, invite.SchoolID.Valid)
		require.EqualValues(t, 1, invite.UsageLimit)
		require.True(t, env.auditor.Contains(database.AuditActionBootstrapGenerated))

		// The audit trail never carries the full secret.
		for _, alog := range env.auditor.Logs() {
			require.NotContains(t, alog.Detail, invite.Token)
		}
	})

	t.Run("TTLClampedAndDefaulted", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)
		now := dbtime.Time(env.clock.Now())

		invite, err := env.svc.GenerateToken(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, now.Add(bootstrap.DefaultTTL), invite.ExpiresAt)

		invite, err = env.svc.GenerateToken(ctx, 365*24*time.Hour)
		require.NoError(t, err)
		require.Equal(t, now.Add(bootstrap.MaxTTL), invite.ExpiresAt)
	})

	t.Run("ReissueInvalidatesPrevious", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)

		first, err := env.svc.GenerateToken(ctx, time.Hour)
		require.NoError(t, err)
		second, err := env.svc.GenerateToken(ctx, time.Hour)
		require.NoError(t, err)
		require.NotEqual(t, first.Token, second.Token)

		// At most one live bootstrap token exists.
		now := dbtime.Time(env.clock.Now())
		live, err := env.db.GetLiveBootstrapInvite(ctx, now)
		require.NoError(t, err)
		require.Equal(t, second.ID, live.ID)

		old, err := env.db.GetInviteByID(ctx, first.ID)
		require.NoError(t, err)
		require.False(t, old.Live(now))
	})

	t.Run("ConflictOnceAdminExists", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)
		dbgen.User(t, env.db, database.User{Role: rbac.RoleSiteAdmin})

		_, err := env.svc.GenerateToken(ctx, time.Hour)
		require.ErrorIs(t, err, bootstrap.ErrConflict)
		require.True(t, env.auditor.Contains(database.AuditActionBootstrapConflict))
	})

	t.Run("ExpiredTokenUnusable", func(t *testing.T) {
		t.Parallel()
		env := newEnv(t)

		invite, err := env.svc.GenerateToken(ctx, time.Hour)
		require.NoError(t, err)
		env.clock.Advance(2 * time.Hour)

		now := dbtime.Time(env.clock.Now())
		_, err = env.db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: now})
		require.ErrorIs(t, err, database.ErrInviteExpired)
	})
}

func TestBootstrapSingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newEnv(t)

	invite, err := env.svc.GenerateToken(ctx, time.Hour)
	require.NoError(t, err)

	now := dbtime.Time(env.clock.Now())
	_, err = env.db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: now})
	require.NoError(t, err)
	_, err = env.db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: now})
	require.ErrorIs(t, err, database.ErrInviteExhausted)
}
