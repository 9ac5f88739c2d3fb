// Package bootstrap mints the one-time credential for the very first
// site admin. It is self-invalidating: at most one live bootstrap
// token exists, and the path closes permanently once any site admin
// has been provisioned.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chalkboard/chalkboard/chalkd/audit"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/invites"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// MaxTTL is the hard cap on bootstrap token lifetime.
const MaxTTL = 7 * 24 * time.Hour

// DefaultTTL is used when the caller does not request a lifetime.
const DefaultTTL = 24 * time.Hour

// ErrConflict rejects bootstrap once a site admin exists. Always
// logged as security-relevant: someone asked for platform access on a
// platform that is already claimed.
var ErrConflict = xerrors.New("bootstrap rejected: a site admin already exists")

type Options struct {
	Database database.Store
	Auditor  audit.Auditor
	Logger   slog.Logger
	Clock    quartz.Clock
}

type Service struct {
	db      database.Store
	auditor audit.Auditor
	log     slog.Logger
	clock   quartz.Clock
}

func New(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.NewNop()
	}
	return &Service{
		db:      opts.Database,
		auditor: opts.Auditor,
		log:     opts.Logger,
		clock:   opts.Clock,
	}
}

// GenerateToken mints a fresh bootstrap invite. Permitted only while
// zero site admins exist. Any previously issued, still-live bootstrap
// invite is expired first, so concurrent calls cannot leave two live
// tokens. A ttl of zero uses DefaultTTL; anything above MaxTTL is
// clamped.
func (s *Service) GenerateToken(ctx context.Context, ttl time.Duration) (database.Invite, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := dbtime.Time(s.clock.Now())
	var invite database.Invite
	err := s.db.InTx(func(tx database.Store) error {
		admins, err := tx.CountUsersByRole(ctx, rbac.RoleSiteAdmin)
		if err != nil {
			return xerrors.Errorf("count site admins: %w", err)
		}
		if admins > 0 {
			return ErrConflict
		}

		// Invalidate the previous live bootstrap invite, if any: at
		// most one live at a time.
		previous, err := tx.GetLiveBootstrapInvite(ctx, now)
		if err == nil {
			_, err = tx.ExpireInvite(ctx, database.ExpireInviteParams{ID: previous.ID, Now: now})
			if err != nil {
				return xerrors.Errorf("expire previous bootstrap invite: %w", err)
			}
		} else if !errors.Is(err, database.ErrNoRows) {
			return xerrors.Errorf("find live bootstrap invite: %w", err)
		}

		invite, err = invites.Mint(ctx, tx, database.InsertInviteParams{
			Role:       rbac.RoleSiteAdmin,
			UsageLimit: 1,
			ExpiresAt:  now.Add(ttl),
			Bootstrap:  true,
		}, invites.BootstrapTokenLength)
		if err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		s.log.Warn(ctx, "bootstrap attempted with site admin present")
		_ = s.auditor.Export(ctx, database.AuditLog{
			Time:         now,
			Action:       database.AuditActionBootstrapConflict,
			ResourceType: rbac.ResourceInvite.Type,
			Detail:       "bootstrap rejected: site admin exists",
		})
		return database.Invite{}, err
	}
	if err != nil {
		return database.Invite{}, err
	}

	// The audit record carries only the prefix, never the secret.
	_ = s.auditor.Export(ctx, database.AuditLog{
		Time:         now,
		Action:       database.AuditActionBootstrapGenerated,
		ResourceType: rbac.ResourceInvite.Type,
		ResourceID:   invite.ID,
		Detail:       "token " + audit.TokenPrefix(invite.Token) + " expires " + invite.ExpiresAt.Format(time.RFC3339),
	})
	s.log.Info(ctx, "bootstrap token generated",
		slog.F("invite_id", invite.ID),
		slog.F("expires_at", invite.ExpiresAt),
	)
	return invite, nil
}
