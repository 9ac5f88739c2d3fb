// Package dbmem is the in-memory database.Store used in development
// and tests. It replicates relational behavior closely enough for the
// core: a global lock provides serializable transactions, and InTx
// snapshots the data so a failed transaction rolls back completely.
package dbmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// New returns an empty in-memory store.
func New() database.Store {
	return &querier{
		mutex: &sync.RWMutex{},
		data: &data{
			schools:             make([]database.School, 0),
			users:               make([]database.User, 0),
			invites:             make([]database.Invite, 0),
			classes:             make([]database.Class, 0),
			groups:              make([]database.Group, 0),
			teachingAssignments: make([]database.TeachingAssignment, 0),
			guardianships:       make([]database.Guardianship, 0),
			groupMemberships:    make([]database.GroupMembership, 0),
			enrollments:         make([]database.Enrollment, 0),
			apiKeys:             make([]database.APIKey, 0),
			auditLogs:           make([]database.AuditLog, 0),
		},
	}
}

type rwMutex interface {
	Lock()
	RLock()
	Unlock()
	RUnlock()
}

// inTxMutex is a no-op, since inside a transaction we already hold the
// global lock.
type inTxMutex struct{}

func (inTxMutex) Lock()    {}
func (inTxMutex) RLock()   {}
func (inTxMutex) Unlock()  {}
func (inTxMutex) RUnlock() {}

type querier struct {
	mutex rwMutex
	*data
}

type data struct {
	schools             []database.School
	users               []database.User
	invites             []database.Invite
	classes             []database.Class
	groups              []database.Group
	teachingAssignments []database.TeachingAssignment
	guardianships       []database.Guardianship
	groupMemberships    []database.GroupMembership
	enrollments         []database.Enrollment
	apiKeys             []database.APIKey
	auditLogs           []database.AuditLog
}

// snapshot copies every table. Rows are value types with no interior
// pointers, so cloning the slices is a full deep copy.
func (d *data) snapshot() data {
	return data{
		schools:             slices.Clone(d.schools),
		users:               slices.Clone(d.users),
		invites:             slices.Clone(d.invites),
		classes:             slices.Clone(d.classes),
		groups:              slices.Clone(d.groups),
		teachingAssignments: slices.Clone(d.teachingAssignments),
		guardianships:       slices.Clone(d.guardianships),
		groupMemberships:    slices.Clone(d.groupMemberships),
		enrollments:         slices.Clone(d.enrollments),
		apiKeys:             slices.Clone(d.apiKeys),
		auditLogs:           slices.Clone(d.auditLogs),
	}
}

// InTx holds the global lock for the duration of fn, giving the
// serializable-equivalent isolation the redemption path requires. If fn
// fails, the pre-transaction snapshot is restored so no partial
// mutation survives.
func (q *querier) InTx(fn func(database.Store) error) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	before := q.data.snapshot()
	err := fn(&querier{mutex: inTxMutex{}, data: q.data})
	if err != nil {
		*q.data = before
		return err
	}
	return nil
}

// Schools

func (q *querier) InsertSchool(_ context.Context, arg database.InsertSchoolParams) (database.School, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, school := range q.schools {
		if school.ID == arg.ID || strings.EqualFold(school.Name, arg.Name) {
			return database.School{}, database.ErrUniqueViolation
		}
	}
	school := database.School{
		ID:        arg.ID,
		Name:      arg.Name,
		CreatedAt: dbtime.Now(),
		UpdatedAt: dbtime.Now(),
	}
	q.schools = append(q.schools, school)
	return school, nil
}

func (q *querier) GetSchoolByID(_ context.Context, id uuid.UUID) (database.School, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, school := range q.schools {
		if school.ID == id {
			return school, nil
		}
	}
	return database.School{}, database.ErrNoRows
}

func (q *querier) GetSchools(_ context.Context) ([]database.School, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	out := slices.Clone(q.schools)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Users

func (q *querier) InsertUser(_ context.Context, arg database.InsertUserParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, user := range q.users {
		if user.ID == arg.ID || strings.EqualFold(user.Email, arg.Email) {
			return database.User{}, database.ErrUniqueViolation
		}
	}
	user := database.User{
		ID:        arg.ID,
		Email:     arg.Email,
		Username:  arg.Username,
		Role:      arg.Role,
		SchoolID:  arg.SchoolID,
		FirstName: arg.FirstName,
		LastName:  arg.LastName,
		AvatarURL: arg.AvatarURL,
		CreatedAt: dbtime.Now(),
		UpdatedAt: dbtime.Now(),
	}
	q.users = append(q.users, user)
	return user, nil
}

func (q *querier) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, user := range q.users {
		if user.ID == id {
			return user, nil
		}
	}
	return database.User{}, database.ErrNoRows
}

func (q *querier) GetUserByEmail(_ context.Context, email string) (database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, user := range q.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return database.User{}, database.ErrNoRows
}

func (q *querier) GetUsers(_ context.Context, arg database.GetUsersParams) ([]database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	out := make([]database.User, 0, len(q.users))
	for _, user := range q.users {
		if user.Deleted && !arg.IncludeDeleted {
			continue
		}
		if arg.SchoolID.Valid && (!user.SchoolID.Valid || user.SchoolID.UUID != arg.SchoolID.UUID) {
			continue
		}
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *querier) CountUsersByRole(_ context.Context, role rbac.Role) (int64, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	var n int64
	for _, user := range q.users {
		if !user.Deleted && user.Role == role {
			n++
		}
	}
	return n, nil
}

func (q *querier) UpdateUserRole(_ context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.users {
		if user.ID != arg.ID {
			continue
		}
		user.Role = arg.Role
		user.UpdatedAt = dbtime.Now()
		q.users[i] = user
		return user, nil
	}
	return database.User{}, database.ErrNoRows
}

func (q *querier) UpdateUserSchool(_ context.Context, arg database.UpdateUserSchoolParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.users {
		if user.ID != arg.ID {
			continue
		}
		user.SchoolID = arg.SchoolID
		user.UpdatedAt = dbtime.Now()
		q.users[i] = user
		return user, nil
	}
	return database.User{}, database.ErrNoRows
}

func (q *querier) UpdateUserDeleted(_ context.Context, arg database.UpdateUserDeletedParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.users {
		if user.ID != arg.ID {
			continue
		}
		user.Deleted = arg.Deleted
		user.UpdatedAt = dbtime.Now()
		q.users[i] = user
		return user, nil
	}
	return database.User{}, database.ErrNoRows
}

func (q *querier) UpdateUserProfile(_ context.Context, arg database.UpdateUserProfileParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.users {
		if user.ID != arg.ID {
			continue
		}
		user.FirstName = arg.FirstName
		user.LastName = arg.LastName
		user.AvatarURL = arg.AvatarURL
		user.UpdatedAt = dbtime.Now()
		q.users[i] = user
		return user, nil
	}
	return database.User{}, database.ErrNoRows
}

// Invites

func (q *querier) InsertInvite(_ context.Context, arg database.InsertInviteParams) (database.Invite, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, invite := range q.invites {
		if invite.ID == arg.ID || invite.Token == arg.Token {
			return database.Invite{}, database.ErrUniqueViolation
		}
	}
	invite := database.Invite{
		ID:         arg.ID,
		Token:      arg.Token,
		Role:       arg.Role,
		SchoolID:   arg.SchoolID,
		ClassID:    arg.ClassID,
		UsageLimit: arg.UsageLimit,
		ExpiresAt:  arg.ExpiresAt,
		IssuerID:   arg.IssuerID,
		Bootstrap:  arg.Bootstrap,
		CreatedAt:  dbtime.Now(),
		UpdatedAt:  dbtime.Now(),
	}
	q.invites = append(q.invites, invite)
	return invite, nil
}

func (q *querier) GetInviteByID(_ context.Context, id uuid.UUID) (database.Invite, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, invite := range q.invites {
		if invite.ID == id {
			return invite, nil
		}
	}
	return database.Invite{}, database.ErrNoRows
}

func (q *querier) GetInviteByToken(_ context.Context, token string) (database.Invite, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, invite := range q.invites {
		if invite.Token == token {
			return invite, nil
		}
	}
	return database.Invite{}, database.ErrNoRows
}

func (q *querier) GetInvitesBySchool(_ context.Context, schoolID uuid.UUID) ([]database.Invite, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	out := make([]database.Invite, 0)
	for _, invite := range q.invites {
		if invite.SchoolID.Valid && invite.SchoolID.UUID == schoolID {
			out = append(out, invite)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *querier) GetLiveBootstrapInvite(_ context.Context, now time.Time) (database.Invite, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, invite := range q.invites {
		if invite.Bootstrap && invite.Live(now) {
			return invite, nil
		}
	}
	return database.Invite{}, database.ErrNoRows
}

// ConsumeInvite is the atomic check-and-increment at the heart of
// redemption. The global lock makes consumption linearizable: under
// concurrent redemption the successes never exceed the usage limit.
func (q *querier) ConsumeInvite(_ context.Context, arg database.ConsumeInviteParams) (database.Invite, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, invite := range q.invites {
		if invite.Token != arg.Token {
			continue
		}
		if invite.TimesUsed > invite.UsageLimit {
			return database.Invite{}, &database.IntegrityError{
				Table:  "invites",
				ID:     invite.ID,
				Detail: "times_used exceeds usage_limit",
			}
		}
		if !invite.ExpiresAt.After(arg.Now) {
			return database.Invite{}, database.ErrInviteExpired
		}
		if invite.TimesUsed >= invite.UsageLimit {
			return database.Invite{}, database.ErrInviteExhausted
		}
		invite.TimesUsed++
		invite.UpdatedAt = dbtime.Time(arg.Now)
		q.invites[i] = invite
		return invite, nil
	}
	return database.Invite{}, database.ErrNoRows
}

func (q *querier) ExpireInvite(_ context.Context, arg database.ExpireInviteParams) (database.Invite, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, invite := range q.invites {
		if invite.ID != arg.ID {
			continue
		}
		invite.ExpiresAt = dbtime.Time(arg.Now)
		invite.UpdatedAt = dbtime.Time(arg.Now)
		q.invites[i] = invite
		return invite, nil
	}
	return database.Invite{}, database.ErrNoRows
}

// Classes and groups

func (q *querier) InsertClass(_ context.Context, arg database.InsertClassParams) (database.Class, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, class := range q.classes {
		if class.ID == arg.ID {
			return database.Class{}, database.ErrUniqueViolation
		}
	}
	class := database.Class{
		ID:        arg.ID,
		SchoolID:  arg.SchoolID,
		Name:      arg.Name,
		CreatedAt: dbtime.Now(),
	}
	q.classes = append(q.classes, class)
	return class, nil
}

func (q *querier) GetClassByID(_ context.Context, id uuid.UUID) (database.Class, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, class := range q.classes {
		if class.ID == id {
			return class, nil
		}
	}
	return database.Class{}, database.ErrNoRows
}

func (q *querier) InsertGroup(_ context.Context, arg database.InsertGroupParams) (database.Group, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, group := range q.groups {
		if group.ID == arg.ID {
			return database.Group{}, database.ErrUniqueViolation
		}
	}
	group := database.Group{
		ID:        arg.ID,
		SchoolID:  arg.SchoolID,
		Name:      arg.Name,
		CreatedAt: dbtime.Now(),
	}
	q.groups = append(q.groups, group)
	return group, nil
}

func (q *querier) GetGroupByID(_ context.Context, id uuid.UUID) (database.Group, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, group := range q.groups {
		if group.ID == id {
			return group, nil
		}
	}
	return database.Group{}, database.ErrNoRows
}

func (q *querier) InsertTeachingAssignment(_ context.Context, arg database.InsertTeachingAssignmentParams) (database.TeachingAssignment, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	assignment := database.TeachingAssignment{
		TeacherID: arg.TeacherID,
		ClassID:   arg.ClassID,
		CreatedAt: dbtime.Now(),
	}
	q.teachingAssignments = append(q.teachingAssignments, assignment)
	return assignment, nil
}

func (q *querier) GetTeachingAssignment(_ context.Context, teacherID, classID uuid.UUID) (database.TeachingAssignment, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, assignment := range q.teachingAssignments {
		if assignment.TeacherID == teacherID && assignment.ClassID == classID {
			return assignment, nil
		}
	}
	return database.TeachingAssignment{}, database.ErrNoRows
}

func (q *querier) InsertGuardianship(_ context.Context, arg database.InsertGuardianshipParams) (database.Guardianship, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	guardianship := database.Guardianship{
		GuardianID: arg.GuardianID,
		StudentID:  arg.StudentID,
		CreatedAt:  dbtime.Now(),
	}
	q.guardianships = append(q.guardianships, guardianship)
	return guardianship, nil
}

func (q *querier) GetGuardianship(_ context.Context, guardianID, studentID uuid.UUID) (database.Guardianship, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, guardianship := range q.guardianships {
		if guardianship.GuardianID == guardianID && guardianship.StudentID == studentID {
			return guardianship, nil
		}
	}
	return database.Guardianship{}, database.ErrNoRows
}

func (q *querier) GetGuardianshipsByGuardian(_ context.Context, guardianID uuid.UUID) ([]database.Guardianship, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	out := make([]database.Guardianship, 0)
	for _, guardianship := range q.guardianships {
		if guardianship.GuardianID == guardianID {
			out = append(out, guardianship)
		}
	}
	return out, nil
}

func (q *querier) InsertGroupMembership(_ context.Context, arg database.InsertGroupMembershipParams) (database.GroupMembership, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	membership := database.GroupMembership{
		UserID:    arg.UserID,
		GroupID:   arg.GroupID,
		CreatedAt: dbtime.Now(),
	}
	q.groupMemberships = append(q.groupMemberships, membership)
	return membership, nil
}

func (q *querier) GetGroupMembership(_ context.Context, userID, groupID uuid.UUID) (database.GroupMembership, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, membership := range q.groupMemberships {
		if membership.UserID == userID && membership.GroupID == groupID {
			return membership, nil
		}
	}
	return database.GroupMembership{}, database.ErrNoRows
}

func (q *querier) InsertEnrollment(_ context.Context, arg database.InsertEnrollmentParams) (database.Enrollment, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, enrollment := range q.enrollments {
		if enrollment.StudentID == arg.StudentID && enrollment.ClassID == arg.ClassID {
			return database.Enrollment{}, database.ErrUniqueViolation
		}
	}
	enrollment := database.Enrollment{
		StudentID: arg.StudentID,
		ClassID:   arg.ClassID,
		CreatedAt: dbtime.Now(),
	}
	q.enrollments = append(q.enrollments, enrollment)
	return enrollment, nil
}

func (q *querier) GetEnrollment(_ context.Context, studentID, classID uuid.UUID) (database.Enrollment, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, enrollment := range q.enrollments {
		if enrollment.StudentID == studentID && enrollment.ClassID == classID {
			return enrollment, nil
		}
	}
	return database.Enrollment{}, database.ErrNoRows
}

// API keys

func (q *querier) InsertAPIKey(_ context.Context, arg database.InsertAPIKeyParams) (database.APIKey, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	key := database.APIKey{
		ID:           arg.ID,
		UserID:       arg.UserID,
		HashedSecret: arg.HashedSecret,
		ExpiresAt:    arg.ExpiresAt,
		CreatedAt:    dbtime.Now(),
	}
	q.apiKeys = append(q.apiKeys, key)
	return key, nil
}

func (q *querier) GetAPIKeyByHashedSecret(_ context.Context, hashedSecret string) (database.APIKey, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, key := range q.apiKeys {
		if key.HashedSecret == hashedSecret {
			return key, nil
		}
	}
	return database.APIKey{}, database.ErrNoRows
}

func (q *querier) UpdateAPIKeyLastUsed(_ context.Context, arg database.UpdateAPIKeyLastUsedParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, key := range q.apiKeys {
		if key.ID != arg.ID {
			continue
		}
		key.LastUsed = dbtime.Time(arg.LastUsed)
		q.apiKeys[i] = key
		return nil
	}
	return database.ErrNoRows
}

func (q *querier) DeleteAPIKeysByUserID(_ context.Context, userID uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	kept := q.apiKeys[:0]
	for _, key := range q.apiKeys {
		if key.UserID != userID {
			kept = append(kept, key)
		}
	}
	q.apiKeys = kept
	return nil
}

// Audit

func (q *querier) InsertAuditLog(_ context.Context, arg database.InsertAuditLogParams) (database.AuditLog, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	alog := database.AuditLog{
		ID:           arg.ID,
		Time:         dbtime.Time(arg.Time),
		ActorID:      arg.ActorID,
		Action:       arg.Action,
		ResourceType: arg.ResourceType,
		ResourceID:   arg.ResourceID,
		SchoolID:     arg.SchoolID,
		Detail:       arg.Detail,
	}
	q.auditLogs = append(q.auditLogs, alog)
	return alog, nil
}

func (q *querier) GetAuditLogs(_ context.Context, arg database.GetAuditLogsParams) ([]database.AuditLog, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	out := make([]database.AuditLog, 0, len(q.auditLogs))
	for _, alog := range q.auditLogs {
		if arg.SchoolID.Valid && (!alog.SchoolID.Valid || alog.SchoolID.UUID != arg.SchoolID.UUID) {
			continue
		}
		out = append(out, alog)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out, nil
}
