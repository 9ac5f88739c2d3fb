package rbac_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/testutil"
)

// fakeRelations answers predicates from fixed pair sets.
type fakeRelations struct {
	teaches      map[[2]uuid.UUID]bool
	guardianOf   map[[2]uuid.UUID]bool
	memberOf     map[[2]uuid.UUID]bool
	enrolled     map[[2]uuid.UUID]bool
	wardEnrolled map[[2]uuid.UUID]bool
	err          error
}

func (f *fakeRelations) Teaches(_ context.Context, teacherID, classID uuid.UUID) (bool, error) {
	return f.teaches[[2]uuid.UUID{teacherID, classID}], f.err
}

func (f *fakeRelations) GuardianOf(_ context.Context, guardianID, studentID uuid.UUID) (bool, error) {
	return f.guardianOf[[2]uuid.UUID{guardianID, studentID}], f.err
}

func (f *fakeRelations) MemberOf(_ context.Context, userID, groupID uuid.UUID) (bool, error) {
	return f.memberOf[[2]uuid.UUID{userID, groupID}], f.err
}

func (f *fakeRelations) Enrolled(_ context.Context, studentID, classID uuid.UUID) (bool, error) {
	return f.enrolled[[2]uuid.UUID{studentID, classID}], f.err
}

func (f *fakeRelations) WardEnrolled(_ context.Context, guardianID, classID uuid.UUID) (bool, error) {
	return f.wardEnrolled[[2]uuid.UUID{guardianID, classID}], f.err
}

func subject(role rbac.Role, schoolID uuid.UUID) rbac.Subject {
	s := rbac.Subject{ID: uuid.New(), Role: role}
	if schoolID != uuid.Nil {
		s.SchoolID = uuid.NullUUID{UUID: schoolID, Valid: true}
	}
	return s
}

func TestAuthorizeTenantIsolation(t *testing.T) {
	t.Parallel()

	auth := rbac.NewAuthorizer(&fakeRelations{}, testutil.Logger(t))
	ctx := context.Background()
	schoolA := uuid.New()
	schoolB := uuid.New()

	// No school-scoped role crosses the school boundary, whatever the
	// action or resource.
	for _, role := range []rbac.Role{rbac.RoleSchoolAdmin, rbac.RoleTeacher, rbac.RoleGuardian, rbac.RoleStudent} {
		sub := subject(role, schoolA)
		for _, resource := range []rbac.Object{rbac.ResourceUser, rbac.ResourceClass, rbac.ResourceInvite, rbac.ResourceGroup, rbac.ResourceAuditLog} {
			obj := resource.WithID(uuid.New()).InSchool(schoolB)
			for _, action := range rbac.AllActions() {
				err := auth.Authorize(ctx, sub, action, obj)
				require.Error(t, err, "%s should not %s %s in another school", role, action, resource.Type)
				require.True(t, rbac.IsUnauthorizedError(err))
			}
		}
	}

	// Site admins cross freely.
	admin := subject(rbac.RoleSiteAdmin, uuid.Nil)
	require.NoError(t, auth.Authorize(ctx, admin, rbac.ActionDelete, rbac.ResourceUser.WithID(uuid.New()).InSchool(schoolB)))
}

func TestAuthorizeDefaultDeny(t *testing.T) {
	t.Parallel()

	auth := rbac.NewAuthorizer(&fakeRelations{}, testutil.Logger(t))
	ctx := context.Background()
	school := uuid.New()

	// Unknown resource types have no table and deny.
	unknown := rbac.Object{Type: "mystery", ID: uuid.New(), SchoolID: uuid.NullUUID{UUID: school, Valid: true}}
	err := auth.Authorize(ctx, subject(rbac.RoleSchoolAdmin, school), rbac.ActionRead, unknown)
	require.True(t, rbac.IsUnauthorizedError(err))

	// A student updating a class has no rule either.
	class := rbac.ResourceClass.WithID(uuid.New()).InSchool(school)
	err = auth.Authorize(ctx, subject(rbac.RoleStudent, school), rbac.ActionUpdate, class)
	require.True(t, rbac.IsUnauthorizedError(err))
}

func TestAuthorizeInvalidSubject(t *testing.T) {
	t.Parallel()

	auth := rbac.NewAuthorizer(&fakeRelations{}, testutil.Logger(t))
	ctx := context.Background()
	school := uuid.New()
	obj := rbac.ResourceClass.WithID(uuid.New()).InSchool(school)

	// Zero subject.
	err := auth.Authorize(ctx, rbac.Subject{}, rbac.ActionRead, obj)
	require.True(t, rbac.IsUnauthorizedError(err))

	// School-scoped role without a school.
	err = auth.Authorize(ctx, rbac.Subject{ID: uuid.New(), Role: rbac.RoleTeacher}, rbac.ActionRead, obj)
	require.True(t, rbac.IsUnauthorizedError(err))

	// Unknown role.
	err = auth.Authorize(ctx, subject("superuser", school), rbac.ActionRead, obj)
	require.True(t, rbac.IsUnauthorizedError(err))
}

func TestAuthorizeSystemBypass(t *testing.T) {
	t.Parallel()

	auth := rbac.NewAuthorizer(&fakeRelations{}, testutil.Logger(t))
	ctx := context.Background()

	// The system subject passes everything, including objects no role
	// rule covers.
	unknown := rbac.Object{Type: "mystery", ID: uuid.New()}
	require.NoError(t, auth.Authorize(ctx, rbac.System(), rbac.ActionDelete, unknown))
}

func TestAuthorizeOwner(t *testing.T) {
	t.Parallel()

	auth := rbac.NewAuthorizer(&fakeRelations{}, testutil.Logger(t))
	ctx := context.Background()
	school := uuid.New()
	student := subject(rbac.RoleStudent, school)

	own := rbac.ResourceUser.WithID(student.ID).WithOwner(student.ID).InSchool(school)
	require.NoError(t, auth.Authorize(ctx, student, rbac.ActionRead, own))

	// A peer in the same school is invisible.
	peer := rbac.ResourceUser.WithID(uuid.New()).WithOwner(uuid.New()).InSchool(school)
	err := auth.Authorize(ctx, student, rbac.ActionRead, peer)
	require.True(t, rbac.IsUnauthorizedError(err))
}

func TestAuthorizePlatformScopedObject(t *testing.T) {
	t.Parallel()

	auth := rbac.NewAuthorizer(&fakeRelations{}, testutil.Logger(t))
	ctx := context.Background()
	school := uuid.New()
	teacher := subject(rbac.RoleTeacher, school)

	// API keys carry no school; owners still manage their own.
	ownKey := rbac.ResourceAPIKey.WithID(uuid.New()).WithOwner(teacher.ID)
	require.NoError(t, auth.Authorize(ctx, teacher, rbac.ActionDelete, ownKey))

	otherKey := rbac.ResourceAPIKey.WithID(uuid.New()).WithOwner(uuid.New())
	err := auth.Authorize(ctx, teacher, rbac.ActionDelete, otherKey)
	require.True(t, rbac.IsUnauthorizedError(err))
}

func TestAuthorizePredicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	school := uuid.New()
	classID := uuid.New()
	groupID := uuid.New()

	teacher := subject(rbac.RoleTeacher, school)
	studentSub := subject(rbac.RoleStudent, school)
	guardian := subject(rbac.RoleGuardian, school)
	ward := uuid.New()

	rel := &fakeRelations{
		teaches:      map[[2]uuid.UUID]bool{{teacher.ID, classID}: true},
		enrolled:     map[[2]uuid.UUID]bool{{studentSub.ID, classID}: true},
		guardianOf:   map[[2]uuid.UUID]bool{{guardian.ID, ward}: true},
		wardEnrolled: map[[2]uuid.UUID]bool{{guardian.ID, classID}: true},
		memberOf:     map[[2]uuid.UUID]bool{{studentSub.ID, groupID}: true},
	}
	auth := rbac.NewAuthorizer(rel, testutil.Logger(t))

	class := rbac.ResourceClass.WithID(classID).InSchool(school)
	otherClass := rbac.ResourceClass.WithID(uuid.New()).InSchool(school)

	// Teachers update only classes they teach.
	require.NoError(t, auth.Authorize(ctx, teacher, rbac.ActionUpdate, class))
	require.Error(t, auth.Authorize(ctx, teacher, rbac.ActionUpdate, otherClass))

	// Students read only classes they attend.
	require.NoError(t, auth.Authorize(ctx, studentSub, rbac.ActionRead, class))
	require.Error(t, auth.Authorize(ctx, studentSub, rbac.ActionRead, otherClass))

	// Guardians read their wards and classes their wards attend.
	wardObj := rbac.ResourceUser.WithID(ward).WithOwner(ward).InSchool(school)
	require.NoError(t, auth.Authorize(ctx, guardian, rbac.ActionRead, wardObj))
	stranger := rbac.ResourceUser.WithID(uuid.New()).WithOwner(uuid.New()).InSchool(school)
	require.Error(t, auth.Authorize(ctx, guardian, rbac.ActionRead, stranger))
	require.NoError(t, auth.Authorize(ctx, guardian, rbac.ActionRead, class))
	require.Error(t, auth.Authorize(ctx, guardian, rbac.ActionRead, otherClass))

	// Group visibility follows membership.
	group := rbac.ResourceGroup.WithID(groupID).InSchool(school)
	require.NoError(t, auth.Authorize(ctx, studentSub, rbac.ActionRead, group))
	require.Error(t, auth.Authorize(ctx, guardian, rbac.ActionRead, group))
}

func TestAuthorizePredicateErrorDenies(t *testing.T) {
	t.Parallel()

	rel := &fakeRelations{err: xerrors.New("store down")}
	auth := rbac.NewAuthorizer(rel, testutil.Logger(t))
	ctx := context.Background()
	school := uuid.New()

	teacher := subject(rbac.RoleTeacher, school)
	class := rbac.ResourceClass.WithID(uuid.New()).InSchool(school)

	// A failing predicate is a deny, not an internal error, and the
	// client-facing message stays generic.
	err := auth.Authorize(ctx, teacher, rbac.ActionUpdate, class)
	require.True(t, rbac.IsUnauthorizedError(err))
	require.EqualError(t, err, "rbac: forbidden")
}

func TestFilter(t *testing.T) {
	t.Parallel()

	auth := rbac.NewAuthorizer(&fakeRelations{}, testutil.Logger(t))
	ctx := context.Background()
	school := uuid.New()
	student := subject(rbac.RoleStudent, school)

	objects := []rbac.Object{
		rbac.ResourceUser.WithID(student.ID).WithOwner(student.ID).InSchool(school),
		rbac.ResourceUser.WithID(uuid.New()).WithOwner(uuid.New()).InSchool(school),
		rbac.ResourceUser.WithID(uuid.New()).WithOwner(uuid.New()).InSchool(uuid.New()),
	}
	filtered, err := rbac.Filter(ctx, auth, student, rbac.ActionRead, objects)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, student.ID, filtered[0].Owner)

	// Mixed types are a developer error.
	mixed := []rbac.Object{rbac.ResourceUser.WithID(uuid.New()), rbac.ResourceClass.WithID(uuid.New())}
	_, err = rbac.Filter(ctx, auth, student, rbac.ActionRead, mixed)
	require.Error(t, err)
}
