// Package audit is the append-only audit sink for security-relevant
// events: invite issuance and redemption, role and school changes,
// soft deletes, and bootstrap activity.
package audit

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbauthz"
)

// Auditor exports audit events. Export must never carry secrets: token
// values are reduced to prefixes before they reach an event's detail.
type Auditor interface {
	Export(ctx context.Context, alog database.AuditLog) error
}

// TokenPrefix reduces a token to the loggable prefix used in audit
// detail. The secret itself never appears in the trail.
func TokenPrefix(token string) string {
	const n = 4
	if len(token) <= n {
		return token
	}
	return token[:n] + "…"
}

// NewNop returns an auditor that discards everything.
func NewNop() Auditor {
	return nop{}
}

type nop struct{}

func (nop) Export(context.Context, database.AuditLog) error {
	return nil
}

// NewStoreBacked returns an auditor that appends events to the
// database and mirrors them to the log. Writes run as system: the
// audit trail is not subject to the caller's permissions.
func NewStoreBacked(db database.Store, log slog.Logger) Auditor {
	return &storeBacked{db: db, log: log}
}

type storeBacked struct {
	db  database.Store
	log slog.Logger
}

func (a *storeBacked) Export(ctx context.Context, alog database.AuditLog) error {
	if alog.ID == uuid.Nil {
		alog.ID = uuid.New()
	}
	_, err := a.db.InsertAuditLog(dbauthz.AsSystem(ctx), database.InsertAuditLogParams{
		ID:           alog.ID,
		Time:         alog.Time,
		ActorID:      alog.ActorID,
		Action:       alog.Action,
		ResourceType: alog.ResourceType,
		ResourceID:   alog.ResourceID,
		SchoolID:     alog.SchoolID,
		Detail:       alog.Detail,
	})
	if err != nil {
		return xerrors.Errorf("insert audit log: %w", err)
	}
	a.log.Info(ctx, "audit",
		slog.F("action", alog.Action),
		slog.F("resource_type", alog.ResourceType),
		slog.F("resource_id", alog.ResourceID),
		slog.F("detail", alog.Detail),
	)
	return nil
}
