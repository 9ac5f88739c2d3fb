package dbmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbgen"
	"github.com/chalkboard/chalkboard/chalkd/database/dbmem"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
)

func TestConsumeInvite(t *testing.T) {
	t.Parallel()

	t.Run("Increments", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ctx := context.Background()
		invite := dbgen.Invite(t, db, database.Invite{UsageLimit: 2})

		consumed, err := db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: dbtime.Now()})
		require.NoError(t, err)
		require.EqualValues(t, 1, consumed.TimesUsed)

		consumed, err = db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: dbtime.Now()})
		require.NoError(t, err)
		require.EqualValues(t, 2, consumed.TimesUsed)

		_, err = db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: dbtime.Now()})
		require.ErrorIs(t, err, database.ErrInviteExhausted)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		_, err := db.ConsumeInvite(context.Background(), database.ConsumeInviteParams{Token: "nope", Now: dbtime.Now()})
		require.ErrorIs(t, err, database.ErrNoRows)
	})

	t.Run("Expired", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		invite := dbgen.Invite(t, db, database.Invite{ExpiresAt: dbtime.Now().Add(-time.Minute)})

		_, err := db.ConsumeInvite(context.Background(), database.ConsumeInviteParams{Token: invite.Token, Now: dbtime.Now()})
		require.ErrorIs(t, err, database.ErrInviteExpired)
	})

	t.Run("ExpiryBeatsExhaustion", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ctx := context.Background()
		invite := dbgen.Invite(t, db, database.Invite{UsageLimit: 1, ExpiresAt: dbtime.Now().Add(time.Minute)})

		_, err := db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: dbtime.Now()})
		require.NoError(t, err)

		// Both used up and expired: the expiry reason wins.
		_, err = db.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: dbtime.Now().Add(2 * time.Minute)})
		require.ErrorIs(t, err, database.ErrInviteExpired)
	})
}

func TestInTxRollback(t *testing.T) {
	t.Parallel()

	db := dbmem.New()
	ctx := context.Background()
	invite := dbgen.Invite(t, db, database.Invite{UsageLimit: 5})

	failure := xerrors.New("side effect failed")
	err := db.InTx(func(tx database.Store) error {
		_, err := tx.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: invite.Token, Now: dbtime.Now()})
		require.NoError(t, err)
		_, err = tx.InsertUser(ctx, database.InsertUserParams{
			ID:       uuid.New(),
			Email:    "rollback@example.com",
			Username: "rollback",
			Role:     "student",
		})
		require.NoError(t, err)
		return failure
	})
	require.ErrorIs(t, err, failure)

	// Neither the consumption nor the insert survived.
	after, err := db.GetInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, after.TimesUsed)
	_, err = db.GetUserByEmail(ctx, "rollback@example.com")
	require.ErrorIs(t, err, database.ErrNoRows)
}

func TestUniqueViolations(t *testing.T) {
	t.Parallel()

	db := dbmem.New()
	ctx := context.Background()
	user := dbgen.User(t, db, database.User{})

	// Duplicate identity id.
	_, err := db.InsertUser(ctx, database.InsertUserParams{
		ID:       user.ID,
		Email:    "fresh@example.com",
		Username: "fresh",
		Role:     "student",
	})
	require.ErrorIs(t, err, database.ErrUniqueViolation)

	// Duplicate email.
	_, err = db.InsertUser(ctx, database.InsertUserParams{
		ID:       uuid.New(),
		Email:    user.Email,
		Username: "fresh",
		Role:     "student",
	})
	require.ErrorIs(t, err, database.ErrUniqueViolation)

	// Duplicate invite token.
	invite := dbgen.Invite(t, db, database.Invite{})
	_, err = db.InsertInvite(ctx, database.InsertInviteParams{
		ID:         uuid.New(),
		Token:      invite.Token,
		Role:       "student",
		UsageLimit: 1,
		ExpiresAt:  dbtime.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, database.ErrUniqueViolation)
}

func TestGetLiveBootstrapInvite(t *testing.T) {
	t.Parallel()

	db := dbmem.New()
	ctx := context.Background()
	now := dbtime.Now()

	// Expired and consumed bootstrap invites do not count as live.
	dbgen.Invite(t, db, database.Invite{Bootstrap: true, ExpiresAt: now.Add(-time.Hour)})
	_, err := db.GetLiveBootstrapInvite(ctx, now)
	require.ErrorIs(t, err, database.ErrNoRows)

	live := dbgen.Invite(t, db, database.Invite{Bootstrap: true, ExpiresAt: now.Add(time.Hour)})
	found, err := db.GetLiveBootstrapInvite(ctx, now)
	require.NoError(t, err)
	require.Equal(t, live.ID, found.ID)

	// Ordinary invites are never returned here.
	db = dbmem.New()
	dbgen.Invite(t, db, database.Invite{ExpiresAt: now.Add(time.Hour)})
	_, err = db.GetLiveBootstrapInvite(ctx, now)
	require.ErrorIs(t, err, database.ErrNoRows)
}

func TestSoftDeleteVisibility(t *testing.T) {
	t.Parallel()

	db := dbmem.New()
	ctx := context.Background()
	school := dbgen.School(t, db, database.School{})
	kept := dbgen.User(t, db, database.User{SchoolID: uuid.NullUUID{UUID: school.ID, Valid: true}})
	gone := dbgen.User(t, db, database.User{SchoolID: uuid.NullUUID{UUID: school.ID, Valid: true}, Deleted: true})

	users, err := db.GetUsers(ctx, database.GetUsersParams{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, kept.ID, users[0].ID)

	users, err = db.GetUsers(ctx, database.GetUsersParams{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, users, 2)

	// Deleted users are still fetchable by id; callers decide.
	fetched, err := db.GetUserByID(ctx, gone.ID)
	require.NoError(t, err)
	require.True(t, fetched.Deleted)
}
