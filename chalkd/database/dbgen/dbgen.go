// Package dbgen generates test fixtures. All methods take a seed
// object; any provided fields are maintained and omitted fields get
// sensible defaults.
package dbgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbauthz"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/cryptorand"
)

// Ctx gives generator calls permission when the store is wrapped by
// dbauthz.
var Ctx = dbauthz.AsSystem(context.Background())

func School(t testing.TB, db database.Store, seed database.School) database.School {
	school, err := db.InsertSchool(Ctx, database.InsertSchoolParams{
		ID:   takeFirst(seed.ID, uuid.New()),
		Name: takeFirst(seed.Name, "school-"+mustToken(t, 6)),
	})
	require.NoError(t, err, "insert school")
	return school
}

func User(t testing.TB, db database.Store, seed database.User) database.User {
	id := takeFirst(seed.ID, uuid.New())
	user, err := db.InsertUser(Ctx, database.InsertUserParams{
		ID:        id,
		Email:     takeFirst(seed.Email, id.String()+"@example.com"),
		Username:  takeFirst(seed.Username, "user-"+mustToken(t, 6)),
		Role:      takeFirst(seed.Role, rbac.RoleStudent),
		SchoolID:  seed.SchoolID,
		FirstName: seed.FirstName,
		LastName:  seed.LastName,
		AvatarURL: seed.AvatarURL,
	})
	require.NoError(t, err, "insert user")
	if seed.Deleted {
		user, err = db.UpdateUserDeleted(Ctx, database.UpdateUserDeletedParams{ID: user.ID, Deleted: true})
		require.NoError(t, err, "soft delete user")
	}
	return user
}

func Class(t testing.TB, db database.Store, seed database.Class) database.Class {
	class, err := db.InsertClass(Ctx, database.InsertClassParams{
		ID:       takeFirst(seed.ID, uuid.New()),
		SchoolID: takeFirst(seed.SchoolID, uuid.New()),
		Name:     takeFirst(seed.Name, "class-"+mustToken(t, 6)),
	})
	require.NoError(t, err, "insert class")
	return class
}

func Group(t testing.TB, db database.Store, seed database.Group) database.Group {
	group, err := db.InsertGroup(Ctx, database.InsertGroupParams{
		ID:       takeFirst(seed.ID, uuid.New()),
		SchoolID: takeFirst(seed.SchoolID, uuid.New()),
		Name:     takeFirst(seed.Name, "group-"+mustToken(t, 6)),
	})
	require.NoError(t, err, "insert group")
	return group
}

func Invite(t testing.TB, db database.Store, seed database.Invite) database.Invite {
	invite, err := db.InsertInvite(Ctx, database.InsertInviteParams{
		ID:         takeFirst(seed.ID, uuid.New()),
		Token:      takeFirst(seed.Token, mustToken(t, 8)),
		Role:       takeFirst(seed.Role, rbac.RoleStudent),
		SchoolID:   seed.SchoolID,
		ClassID:    seed.ClassID,
		UsageLimit: takeFirst(seed.UsageLimit, 1),
		ExpiresAt:  takeFirst(seed.ExpiresAt, dbtime.Now().Add(time.Hour)),
		IssuerID:   seed.IssuerID,
		Bootstrap:  seed.Bootstrap,
	})
	require.NoError(t, err, "insert invite")
	return invite
}

func TeachingAssignment(t testing.TB, db database.Store, seed database.TeachingAssignment) database.TeachingAssignment {
	assignment, err := db.InsertTeachingAssignment(Ctx, database.InsertTeachingAssignmentParams{
		TeacherID: takeFirst(seed.TeacherID, uuid.New()),
		ClassID:   takeFirst(seed.ClassID, uuid.New()),
	})
	require.NoError(t, err, "insert teaching assignment")
	return assignment
}

func Guardianship(t testing.TB, db database.Store, seed database.Guardianship) database.Guardianship {
	guardianship, err := db.InsertGuardianship(Ctx, database.InsertGuardianshipParams{
		GuardianID: takeFirst(seed.GuardianID, uuid.New()),
		StudentID:  takeFirst(seed.StudentID, uuid.New()),
	})
	require.NoError(t, err, "insert guardianship")
	return guardianship
}

func GroupMembership(t testing.TB, db database.Store, seed database.GroupMembership) database.GroupMembership {
	membership, err := db.InsertGroupMembership(Ctx, database.InsertGroupMembershipParams{
		UserID:  takeFirst(seed.UserID, uuid.New()),
		GroupID: takeFirst(seed.GroupID, uuid.New()),
	})
	require.NoError(t, err, "insert group membership")
	return membership
}

func Enrollment(t testing.TB, db database.Store, seed database.Enrollment) database.Enrollment {
	enrollment, err := db.InsertEnrollment(Ctx, database.InsertEnrollmentParams{
		StudentID: takeFirst(seed.StudentID, uuid.New()),
		ClassID:   takeFirst(seed.ClassID, uuid.New()),
	})
	require.NoError(t, err, "insert enrollment")
	return enrollment
}

// APIKey returns the key row and the raw secret to authenticate with.
func APIKey(t testing.TB, db database.Store, seed database.APIKey) (database.APIKey, string) {
	secret := mustToken(t, 22)
	hashed := sha256.Sum256([]byte(secret))
	key, err := db.InsertAPIKey(Ctx, database.InsertAPIKeyParams{
		ID:           takeFirst(seed.ID, uuid.New()),
		UserID:       takeFirst(seed.UserID, uuid.New()),
		HashedSecret: takeFirst(seed.HashedSecret, hex.EncodeToString(hashed[:])),
		ExpiresAt:    takeFirst(seed.ExpiresAt, dbtime.Now().Add(time.Hour)),
	})
	require.NoError(t, err, "insert api key")
	return key, secret
}

func AuditLog(t testing.TB, db database.Store, seed database.AuditLog) database.AuditLog {
	log, err := db.InsertAuditLog(Ctx, database.InsertAuditLogParams{
		ID:           takeFirst(seed.ID, uuid.New()),
		Time:         takeFirst(seed.Time, dbtime.Now()),
		ActorID:      seed.ActorID,
		Action:       takeFirst(seed.Action, database.AuditActionInviteGenerated),
		ResourceType: takeFirst(seed.ResourceType, rbac.ResourceInvite.Type),
		ResourceID:   takeFirst(seed.ResourceID, uuid.New()),
		SchoolID:     seed.SchoolID,
		Detail:       seed.Detail,
	})
	require.NoError(t, err, "insert audit log")
	return log
}

func mustToken(t testing.TB, n int) string {
	t.Helper()
	s, err := cryptorand.StringCharset(cryptorand.Human, n)
	require.NoError(t, err)
	return s
}
