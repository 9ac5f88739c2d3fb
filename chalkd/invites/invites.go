// Package invites is the credential issuance service: it mints,
// redeems and revokes the invite tokens that provision every account
// on the platform.
//
// All mutation of invite usage runs through this package (and the
// store methods it alone is allowed to call), which is what keeps the
// times_used <= usage_limit invariant enforceable in one place.
package invites

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chalkboard/chalkboard/chalkd/audit"
	"github.com/chalkboard/chalkboard/chalkd/chalkmetrics"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/cryptorand"
)

const (
	// TokenLength is the human-copyable invite code length. Codes are
	// drawn from the confusable-free alphabet, so 8 characters is
	// enough entropy for a short-lived, usage-limited credential.
	TokenLength = 8
	// BootstrapTokenLength is used for platform bootstrap tokens,
	// which gate site-admin creation and therefore carry full-secret
	// entropy.
	BootstrapTokenLength = 40

	// maxTokenAttempts bounds collision retries. Running out is a hard
	// failure, never a silent fallback to a weaker token.
	maxTokenAttempts = 5
)

// Redemption failure reasons. These are user-facing and deliberately
// distinct, unlike authorization denials.
var (
	ErrNotFound  = xerrors.New("invite not found")
	ErrExpired   = xerrors.New("invite expired")
	ErrExhausted = xerrors.New("invite exhausted")
)

type Options struct {
	Database database.Store
	// Relations is consulted for the teacher issuance rule. It reads
	// through the privileged path.
	Relations rbac.RelationshipReader
	// Authorizer gates revocation against the invite rule table.
	Authorizer rbac.Authorizer
	Auditor    audit.Auditor
	Logger     slog.Logger
	Clock      quartz.Clock
	Metrics    *chalkmetrics.Metrics
}

// Service implements invite issuance and redemption. It holds the raw
// store: issuer permission is checked against the issuance table here,
// and everything else it does is the mutation funnel itself.
type Service struct {
	db      database.Store
	rel     rbac.RelationshipReader
	auth    rbac.Authorizer
	auditor audit.Auditor
	log     slog.Logger
	clock   quartz.Clock
	metrics *chalkmetrics.Metrics
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
		rel:     opts.Relations,
		auth:    opts.Authorizer,
		auditor: opts.Auditor,
		log:     opts.Logger,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
}

// GenerateParams describes the invite to mint. UsageLimit defaults to
// a single use.
type GenerateParams struct {
	Role       rbac.Role
	SchoolID   uuid.NullUUID
	ClassID    uuid.NullUUID
	UsageLimit int32
	TTL        time.Duration
}

// Generate validates the issuer against the role-hierarchy issuance
// table and mints the invite.
//
// Issuance rules: site admins mint any role anywhere; school admins
// mint any non-site-admin role within their own school; teachers mint
// only student invites pre-bound to a class they teach. Everyone else
// is rejected.
func (s *Service) Generate(ctx context.Context, issuer rbac.Subject, params GenerateParams) (database.Invite, error) {
	if err := params.Role.Valid(); err != nil {
		return database.Invite{}, xerrors.Errorf("target role: %w", err)
	}
	if params.UsageLimit == 0 {
		params.UsageLimit = 1
	}
	if params.UsageLimit < 1 {
		return database.Invite{}, xerrors.New("usage limit must be at least 1")
	}
	if params.TTL <= 0 {
		return database.Invite{}, xerrors.New("ttl must be positive")
	}
	if params.Role.SchoolScoped() != params.SchoolID.Valid {
		return database.Invite{}, xerrors.New("school id must be set exactly when the role is school-scoped")
	}

	// The rule table decides whether this role may mint invites at all;
	// the issuance table below narrows what it may mint.
	object := rbac.ResourceInvite
	if params.SchoolID.Valid {
		object = object.InSchool(params.SchoolID.UUID)
	}
	if err := s.auth.Authorize(ctx, issuer, rbac.ActionCreate, object); err != nil {
		return database.Invite{}, err
	}
	if err := s.canIssue(ctx, issuer, params); err != nil {
		return database.Invite{}, err
	}

	if params.ClassID.Valid {
		class, err := s.db.GetClassByID(ctx, params.ClassID.UUID)
		if err != nil {
			return database.Invite{}, xerrors.Errorf("class scope: %w", err)
		}
		if !params.SchoolID.Valid || class.SchoolID != params.SchoolID.UUID {
			return database.Invite{}, xerrors.New("class scope must belong to the invite's school")
		}
	}

	now := dbtime.Time(s.clock.Now())
	invite, err := Mint(ctx, s.db, database.InsertInviteParams{
		Role:       params.Role,
		SchoolID:   params.SchoolID,
		ClassID:    params.ClassID,
		UsageLimit: params.UsageLimit,
		ExpiresAt:  now.Add(params.TTL),
		IssuerID:   database.NullUUID(issuer.ID),
	}, TokenLength)
	if err != nil {
		return database.Invite{}, err
	}

	_ = s.auditor.Export(ctx, database.AuditLog{
		Time:         now,
		ActorID:      database.NullUUID(issuer.ID),
		Action:       database.AuditActionInviteGenerated,
		ResourceType: rbac.ResourceInvite.Type,
		ResourceID:   invite.ID,
		SchoolID:     invite.SchoolID,
		Detail:       "token " + audit.TokenPrefix(invite.Token) + " role " + string(invite.Role),
	})
	s.log.Info(ctx, "invite generated",
		slog.F("invite_id", invite.ID),
		slog.F("role", invite.Role),
		slog.F("usage_limit", invite.UsageLimit),
	)
	return invite, nil
}

// canIssue is the issuance table. Rejections are authorization
// denials: generic to the caller, detailed in logs.
func (s *Service) canIssue(ctx context.Context, issuer rbac.Subject, params GenerateParams) error {
	deny := func(reason string) error {
		return rbac.ForbiddenWithInternal(xerrors.New(reason), issuer, rbac.ActionCreate, rbac.ResourceInvite)
	}
	if !issuer.Valid() || issuer.IsSystem() {
		return deny("invalid issuer")
	}
	switch issuer.Role {
	case rbac.RoleSiteAdmin:
		return nil
	case rbac.RoleSchoolAdmin:
		if params.Role == rbac.RoleSiteAdmin {
			return deny("school admins cannot mint site admins")
		}
		if !params.SchoolID.Valid || !issuer.SchoolID.Valid || params.SchoolID.UUID != issuer.SchoolID.UUID {
			return deny("school admins mint only within their school")
		}
		return nil
	case rbac.RoleTeacher:
		if params.Role != rbac.RoleStudent {
			return deny("teachers mint only student invites")
		}
		if !params.SchoolID.Valid || !issuer.SchoolID.Valid || params.SchoolID.UUID != issuer.SchoolID.UUID {
			return deny("teachers mint only within their school")
		}
		if !params.ClassID.Valid {
			return deny("teacher invites must be bound to a class")
		}
		teaches, err := s.rel.Teaches(ctx, issuer.ID, params.ClassID.UUID)
		if err != nil {
			return deny("teaching assignment lookup failed: " + err.Error())
		}
		if !teaches {
			return deny("issuer does not teach the scoped class")
		}
		return nil
	default:
		return deny("role cannot mint invites")
	}
}

// Redemption is the grant produced by a successful redemption.
type Redemption struct {
	InviteID uuid.UUID
	Role     rbac.Role
	SchoolID uuid.NullUUID
	ClassID  uuid.NullUUID
}

// Redeem consumes one use of the token in its own transaction.
func (s *Service) Redeem(ctx context.Context, token string, redeemerID uuid.UUID) (Redemption, error) {
	var redemption Redemption
	err := s.db.InTx(func(tx database.Store) error {
		var err error
		redemption, err = s.RedeemTx(ctx, tx, token, redeemerID)
		return err
	})
	return redemption, err
}

// RedeemTx consumes one use of the token inside the caller's
// transaction, so bound side effects commit or roll back with the
// consumption. The caller must pass the transaction store it received
// from InTx.
func (s *Service) RedeemTx(ctx context.Context, tx database.Store, token string, redeemerID uuid.UUID) (Redemption, error) {
	// A caller-imposed timeout that already fired leaves the token
	// unconsumed.
	if err := ctx.Err(); err != nil {
		return Redemption{}, err
	}

	now := dbtime.Time(s.clock.Now())
	invite, err := tx.ConsumeInvite(ctx, database.ConsumeInviteParams{Token: token, Now: now})
	switch {
	case errors.Is(err, database.ErrNoRows):
		s.metrics.RecordRedemption("not_found")
		return Redemption{}, ErrNotFound
	case errors.Is(err, database.ErrInviteExpired):
		s.metrics.RecordRedemption("expired")
		return Redemption{}, ErrExpired
	case errors.Is(err, database.ErrInviteExhausted):
		s.metrics.RecordRedemption("exhausted")
		return Redemption{}, ErrExhausted
	case err != nil:
		s.metrics.RecordRedemption("error")
		var integrity *database.IntegrityError
		if errors.As(err, &integrity) {
			// Unreachable if consumption is atomic. Treat as a bug.
			s.log.Critical(ctx, "invite integrity violation", slog.Error(integrity))
		}
		return Redemption{}, xerrors.Errorf("consume invite: %w", err)
	}

	// The audit row rides in the same transaction as the consumption.
	_, err = tx.InsertAuditLog(ctx, database.InsertAuditLogParams{
		ID:           uuid.New(),
		Time:         now,
		ActorID:      database.NullUUID(redeemerID),
		Action:       database.AuditActionInviteRedeemed,
		ResourceType: rbac.ResourceInvite.Type,
		ResourceID:   invite.ID,
		SchoolID:     invite.SchoolID,
		Detail:       "token " + audit.TokenPrefix(token),
	})
	if err != nil {
		return Redemption{}, xerrors.Errorf("audit redemption: %w", err)
	}

	s.metrics.RecordRedemption("success")
	return Redemption{
		InviteID: invite.ID,
		Role:     invite.Role,
		SchoolID: invite.SchoolID,
		ClassID:  invite.ClassID,
	}, nil
}

// Invalidate forces immediate expiry (revocation). The subject must be
// allowed to update the invite per the rule table; issuers can revoke
// their own invites, school admins any invite in their school.
func (s *Service) Invalidate(ctx context.Context, subject rbac.Subject, token string) error {
	invite, err := s.db.GetInviteByToken(ctx, token)
	if errors.Is(err, database.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return xerrors.Errorf("get invite: %w", err)
	}
	if err := s.auth.Authorize(ctx, subject, rbac.ActionUpdate, invite.RBACObject()); err != nil {
		return err
	}

	now := dbtime.Time(s.clock.Now())
	_, err = s.db.ExpireInvite(ctx, database.ExpireInviteParams{ID: invite.ID, Now: now})
	if err != nil {
		return xerrors.Errorf("expire invite: %w", err)
	}
	_ = s.auditor.Export(ctx, database.AuditLog{
		Time:         now,
		ActorID:      database.NullUUID(subject.ID),
		Action:       database.AuditActionInviteRevoked,
		ResourceType: rbac.ResourceInvite.Type,
		ResourceID:   invite.ID,
		SchoolID:     invite.SchoolID,
		Detail:       "token " + audit.TokenPrefix(token),
	})
	return nil
}

// Mint inserts an invite with a freshly generated token, retrying a
// bounded number of times on token collision.
func Mint(ctx context.Context, db database.Store, arg database.InsertInviteParams, tokenLength int) (database.Invite, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := cryptorand.StringCharset(cryptorand.Human, tokenLength)
		if err != nil {
			return database.Invite{}, xerrors.Errorf("generate token: %w", err)
		}
		arg.ID = uuid.New()
		arg.Token = token
		invite, err := db.InsertInvite(ctx, arg)
		if errors.Is(err, database.ErrUniqueViolation) {
			continue
		}
		if err != nil {
			return database.Invite{}, xerrors.Errorf("insert invite: %w", err)
		}
		return invite, nil
	}
	return database.Invite{}, xerrors.Errorf("exhausted %d token generation attempts", maxTokenAttempts)
}
