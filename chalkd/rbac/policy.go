package rbac

// This file is the single source of truth for what each role may do to
// each resource type. Site admins never reach these tables (they are
// allowed unconditionally), and tenant isolation is enforced before any
// table lookup, so a rule here can never grant access across schools.

// Predicate names a relationship that must hold between the subject and
// the object for the rule to allow. Predicates are evaluated through
// the privileged relationship reader and therefore never re-enter
// authorization.
type Predicate string

const (
	// PredicateTeachesClass: the object is a class the subject teaches.
	PredicateTeachesClass Predicate = "teaches_class"
	// PredicateEnrolled: the object is a class the subject is enrolled in.
	PredicateEnrolled Predicate = "enrolled"
	// PredicateWardEnrolled: the object is a class one of the subject's
	// wards is enrolled in.
	PredicateWardEnrolled Predicate = "ward_enrolled"
	// PredicateGuardianOf: the object is a user who is a ward of the
	// subject.
	PredicateGuardianOf Predicate = "guardian_of"
	// PredicateMemberOf: the object is a group the subject belongs to.
	PredicateMemberOf Predicate = "member_of"
)

// Rule decides a single {role, action, resource type} cell. The rule
// allows if any enabled condition holds: Allow unconditionally, Owner
// when the subject owns the object, Predicate when the named
// relationship holds. A zero Rule always denies.
type Rule struct {
	Allow     bool
	Owner     bool
	Predicate Predicate
}

var (
	allow     = Rule{Allow: true}
	ownerOnly = Rule{Owner: true}
)

// crud grants the same rule for create, read, update and delete.
func crud(r Rule) map[Action]Rule {
	m := make(map[Action]Rule, 4)
	for _, a := range AllActions() {
		m[a] = r
	}
	return m
}

// rulesByType maps resource type -> role -> action -> rule. Anything
// not present denies. Site-admin rows are intentionally absent; the
// evaluator allows site admins before consulting the table.
var rulesByType = map[string]map[Role]map[Action]Rule{
	ResourceSchool.Type: {
		// School admins manage their own school's settings; creation
		// and deletion of schools is platform-level.
		RoleSchoolAdmin: {
			ActionRead:   allow,
			ActionUpdate: allow,
		},
		RoleTeacher:  {ActionRead: allow},
		RoleGuardian: {ActionRead: allow},
		RoleStudent:  {ActionRead: allow},
	},

	ResourceUser.Type: {
		RoleSchoolAdmin: crud(allow),
		// Teachers see the people in their school.
		RoleTeacher: {ActionRead: allow},
		// Guardians see themselves and their wards.
		RoleGuardian: {ActionRead: {Owner: true, Predicate: PredicateGuardianOf}},
		RoleStudent:  {ActionRead: ownerOnly},
	},

	ResourceInvite.Type: {
		// Revocation is modeled as an update (forced expiry); invites
		// are never deleted.
		RoleSchoolAdmin: {
			ActionCreate: allow,
			ActionRead:   allow,
			ActionUpdate: allow,
		},
		// Teachers may mint invites (the issuance table further
		// restricts them to student invites bound to a class they
		// teach) and manage only the ones they issued.
		RoleTeacher: {
			ActionCreate: allow,
			ActionRead:   ownerOnly,
			ActionUpdate: ownerOnly,
		},
	},

	ResourceClass.Type: {
		RoleSchoolAdmin: crud(allow),
		RoleTeacher: {
			ActionRead:   allow,
			ActionUpdate: {Predicate: PredicateTeachesClass},
		},
		RoleStudent:  {ActionRead: {Predicate: PredicateEnrolled}},
		RoleGuardian: {ActionRead: {Predicate: PredicateWardEnrolled}},
	},

	ResourceGroup.Type: {
		RoleSchoolAdmin: crud(allow),
		RoleTeacher:     {ActionRead: {Predicate: PredicateMemberOf}},
		RoleGuardian:    {ActionRead: {Predicate: PredicateMemberOf}},
		RoleStudent:     {ActionRead: {Predicate: PredicateMemberOf}},
	},

	ResourceAuditLog.Type: {
		RoleSchoolAdmin: {ActionRead: allow},
	},

	ResourceAPIKey.Type: {
		RoleSchoolAdmin: crud(ownerOnly),
		RoleTeacher:     crud(ownerOnly),
		RoleGuardian:    crud(ownerOnly),
		RoleStudent:     crud(ownerOnly),
	},
}

// ruleFor looks up the table cell. The zero Rule (deny) is returned for
// unknown types, roles and actions.
func ruleFor(objectType string, role Role, action Action) Rule {
	return rulesByType[objectType][role][action]
}
