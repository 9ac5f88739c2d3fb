package database

import (
	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// RBACObject implementations describe each model for policy
// evaluation. Keep these in sync with the rule tables: the object's
// school decides tenant isolation, the owner decides owner rules.

func (s School) RBACObject() rbac.Object {
	// A school is scoped to itself so its own members can pass the
	// tenant check when reading it.
	return rbac.ResourceSchool.WithID(s.ID).InSchool(s.ID)
}

func (u User) RBACObject() rbac.Object {
	obj := rbac.ResourceUser.WithID(u.ID).WithOwner(u.ID)
	if u.SchoolID.Valid {
		obj = obj.InSchool(u.SchoolID.UUID)
	}
	return obj
}

func (i Invite) RBACObject() rbac.Object {
	obj := rbac.ResourceInvite.WithID(i.ID)
	if i.IssuerID.Valid {
		obj = obj.WithOwner(i.IssuerID.UUID)
	}
	if i.SchoolID.Valid {
		obj = obj.InSchool(i.SchoolID.UUID)
	}
	return obj
}

func (c Class) RBACObject() rbac.Object {
	return rbac.ResourceClass.WithID(c.ID).InSchool(c.SchoolID)
}

func (g Group) RBACObject() rbac.Object {
	return rbac.ResourceGroup.WithID(g.ID).InSchool(g.SchoolID)
}

func (k APIKey) RBACObject() rbac.Object {
	return rbac.ResourceAPIKey.WithID(k.ID).WithOwner(k.UserID)
}

func (a AuditLog) RBACObject() rbac.Object {
	obj := rbac.ResourceAuditLog.WithID(a.ID)
	if a.SchoolID.Valid {
		obj = obj.InSchool(a.SchoolID.UUID)
	}
	return obj
}

// Subject converts a user row into the rbac subject used for all
// authorization decisions on this request.
func (u User) Subject() rbac.Subject {
	return rbac.Subject{
		ID:       u.ID,
		Role:     u.Role,
		SchoolID: u.SchoolID,
	}
}

// NullUUID is shorthand for a valid uuid.NullUUID.
func NullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
