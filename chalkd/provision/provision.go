// Package provision is the onboarding workflow. It runs synchronously
// when the identity provider reports a new identity: the registration
// must carry an invite token, and redeeming it, creating the user, and
// executing the bound side effects happen in one transaction. No
// identity ever exists without a principal, and no failure consumes a
// token.
package provision

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/invites"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

// ErrCredentialRequired rejects registrations that carry no invite
// token.
var ErrCredentialRequired = xerrors.New("registration requires an invite token")

// Identity is the payload the identity provider sends on creation. Any
// role or school claims embedded alongside these fields are advisory
// and ignored: the redeemed invite is the only source of authority.
type Identity struct {
	ID        uuid.UUID
	Token     string
	Email     string
	Username  string
	FirstName string
	LastName  string
	AvatarURL string
}

// SideEffect runs inside the provisioning transaction after the user
// row exists. Returning an error aborts the whole onboarding,
// including the token consumption.
type SideEffect func(ctx context.Context, tx database.Store, user database.User, grant invites.Redemption) error

type Options struct {
	Database database.Store
	Invites  *invites.Service
	Logger   slog.Logger
	// SideEffects run after the built-in auto-enrollment. Used by
	// collaborator domains (and fault-injection tests).
	SideEffects []SideEffect
}

type Service struct {
	db          database.Store
	invites     *invites.Service
	log         slog.Logger
	sideEffects []SideEffect
}

func New(opts Options) *Service {
	return &Service{
		db:          opts.Database,
		invites:     opts.Invites,
		log:         opts.Logger,
		sideEffects: opts.SideEffects,
	}
}

// ProvisionIdentity creates the principal for a new identity.
// Idempotent: an identity that already owns a user is returned as-is.
func (s *Service) ProvisionIdentity(ctx context.Context, identity Identity) (database.User, error) {
	if identity.ID == uuid.Nil {
		return database.User{}, xerrors.New("identity id required")
	}

	existing, err := s.db.GetUserByID(ctx, identity.ID)
	if err == nil {
		// Re-invocation is a no-op, not an error.
		return existing, nil
	}
	if !errors.Is(err, database.ErrNoRows) {
		return database.User{}, xerrors.Errorf("lookup identity: %w", err)
	}

	if identity.Token == "" {
		return database.User{}, ErrCredentialRequired
	}
	if identity.Email == "" {
		return database.User{}, xerrors.New("email required")
	}
	if identity.Username == "" {
		identity.Username = usernameFromEmail(identity.Email)
	}

	var user database.User
	err = s.db.InTx(func(tx database.Store) error {
		grant, err := s.invites.RedeemTx(ctx, tx, identity.Token, identity.ID)
		if err != nil {
			return xerrors.Errorf("redeem credential: %w", err)
		}

		user, err = tx.InsertUser(ctx, database.InsertUserParams{
			ID:        identity.ID,
			Email:     identity.Email,
			Username:  identity.Username,
			Role:      grant.Role,
			SchoolID:  grant.SchoolID,
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			AvatarURL: identity.AvatarURL,
		})
		if err != nil {
			return xerrors.Errorf("insert user: %w", err)
		}

		// Bound side effect: a class-scoped student invite enrolls the
		// new student immediately.
		if user.Role == rbac.RoleStudent && grant.ClassID.Valid {
			_, err = tx.InsertEnrollment(ctx, database.InsertEnrollmentParams{
				StudentID: user.ID,
				ClassID:   grant.ClassID.UUID,
			})
			if err != nil {
				return xerrors.Errorf("auto-enroll: %w", err)
			}
		}

		for _, effect := range s.sideEffects {
			if err := effect(ctx, tx, user, grant); err != nil {
				return xerrors.Errorf("side effect: %w", err)
			}
		}

		// A timeout that fired mid-provisioning aborts before commit,
		// leaving the token unconsumed.
		return ctx.Err()
	})
	if err != nil {
		return database.User{}, err
	}

	s.log.Info(ctx, "identity provisioned",
		slog.F("user_id", user.ID),
		slog.F("role", user.Role),
	)
	return user, nil
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.ToLower(local)
}
