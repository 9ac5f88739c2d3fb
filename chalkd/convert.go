package chalkd

import (
	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalksdk"
)

// Converters from database models to wire types. Secrets stay out of
// wire types except where the endpoint exists to hand them over.

func nullable(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func convertUser(user database.User) chalksdk.User {
	return chalksdk.User{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      string(user.Role),
		SchoolID:  nullable(user.SchoolID),
		FirstName: user.FirstName,
		LastName:  user.LastName,
		AvatarURL: user.AvatarURL,
		Deleted:   user.Deleted,
		CreatedAt: user.CreatedAt,
	}
}

func convertUsers(users []database.User) []chalksdk.User {
	converted := make([]chalksdk.User, 0, len(users))
	for _, user := range users {
		converted = append(converted, convertUser(user))
	}
	return converted
}

func convertSchool(school database.School) chalksdk.School {
	return chalksdk.School{
		ID:        school.ID,
		Name:      school.Name,
		CreatedAt: school.CreatedAt,
	}
}

func convertSchools(schools []database.School) []chalksdk.School {
	converted := make([]chalksdk.School, 0, len(schools))
	for _, school := range schools {
		converted = append(converted, convertSchool(school))
	}
	return converted
}

// convertInvite includes the token only when includeToken is set: the
// issuer gets it back once, listings never carry it.
func convertInvite(invite database.Invite, includeToken bool) chalksdk.Invite {
	converted := chalksdk.Invite{
		ID:         invite.ID,
		Role:       string(invite.Role),
		SchoolID:   nullable(invite.SchoolID),
		ClassID:    nullable(invite.ClassID),
		UsageLimit: invite.UsageLimit,
		TimesUsed:  invite.TimesUsed,
		ExpiresAt:  invite.ExpiresAt,
		Bootstrap:  invite.Bootstrap,
	}
	if includeToken {
		converted.Token = invite.Token
	}
	return converted
}

func convertAuditLog(log database.AuditLog) chalksdk.AuditLog {
	return chalksdk.AuditLog{
		ID:           log.ID,
		Time:         log.Time,
		ActorID:      nullable(log.ActorID),
		Action:       string(log.Action),
		ResourceType: log.ResourceType,
		ResourceID:   log.ResourceID,
		SchoolID:     nullable(log.SchoolID),
		Detail:       log.Detail,
	}
}
