// Package chalkd is the platform server: it wires the storage,
// authorization, issuance, provisioning and bootstrap subsystems and
// exposes them over an HTTP API.
package chalkd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/coder/quartz"

	"github.com/chalkboard/chalkboard/chalkd/audit"
	"github.com/chalkboard/chalkboard/chalkd/bootstrap"
	"github.com/chalkboard/chalkboard/chalkd/chalkmetrics"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbauthz"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/httpapi"
	"github.com/chalkboard/chalkboard/chalkd/httpmw"
	"github.com/chalkboard/chalkboard/chalkd/invites"
	"github.com/chalkboard/chalkboard/chalkd/principal"
	"github.com/chalkboard/chalkboard/chalkd/provision"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/chalkd/relations"
	"github.com/chalkboard/chalkboard/chalkd/users"
	"github.com/chalkboard/chalkboard/cryptorand"
)

// Session lifetime for keys minted on registration.
const sessionDuration = 7 * 24 * time.Hour

type Options struct {
	Logger slog.Logger
	// Database is the raw store. The API wraps it with dbauthz for all
	// request handling.
	Database database.Store
	Auditor  audit.Auditor
	Clock    quartz.Clock
	// PrometheusRegistry receives the authorization and redemption
	// counters. Optional.
	PrometheusRegistry *prometheus.Registry
}

// API holds the wired subsystems and the HTTP handler.
type API struct {
	Options

	// AuthzStore is the dbauthz-wrapped store used by handlers.
	AuthzStore database.Store
	Authorizer rbac.Authorizer
	Resolver   *principal.Resolver
	Invites    *invites.Service
	Bootstrap  *bootstrap.Service
	Provision  *provision.Service
	Users      *users.Service

	Handler http.Handler
}

func New(options Options) *API {
	if options.Clock == nil {
		options.Clock = quartz.NewReal()
	}
	if options.Auditor == nil {
		options.Auditor = audit.NewStoreBacked(options.Database, options.Logger)
	}

	var metrics *chalkmetrics.Metrics
	if options.PrometheusRegistry != nil {
		var err error
		metrics, err = chalkmetrics.Register(options.PrometheusRegistry)
		if err != nil {
			// Duplicate registration is a developer error.
			panic(err)
		}
	}

	rel := relations.New(options.Database)
	authorizer := metrics.InstrumentAuthorizer(rbac.NewAuthorizer(rel, options.Logger.Named("authz")))
	authzStore := dbauthz.New(options.Database, authorizer, options.Logger.Named("dbauthz"))

	api := &API{
		Options:    options,
		AuthzStore: authzStore,
		Authorizer: authorizer,
		Resolver:   principal.New(options.Database),
	}
	api.Invites = invites.New(invites.Options{
		Database:   options.Database,
		Relations:  rel,
		Authorizer: authorizer,
		Auditor:    options.Auditor,
		Logger:     options.Logger.Named("invites"),
		Clock:      options.Clock,
		Metrics:    metrics,
	})
	api.Bootstrap = bootstrap.New(bootstrap.Options{
		Database: options.Database,
		Auditor:  options.Auditor,
		Logger:   options.Logger.Named("bootstrap"),
		Clock:    options.Clock,
	})
	api.Provision = provision.New(provision.Options{
		Database: options.Database,
		Invites:  api.Invites,
		Logger:   options.Logger.Named("provision"),
	})
	api.Users = users.New(users.Options{
		Database: authzStore,
		Auditor:  options.Auditor,
		Logger:   options.Logger.Named("users"),
	})

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
	)
	r.Route("/api/v2", func(r chi.Router) {
		r.Get("/", func(rw http.ResponseWriter, _ *http.Request) {
			httpapi.Write(rw, http.StatusOK, httpapi.Response{Message: "chalkd"})
		})
		r.Post("/bootstrap", api.postBootstrap)
		r.Post("/register", api.postRegister)

		r.Group(func(r chi.Router) {
			r.Use(httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{
				DB:       options.Database,
				Resolver: api.Resolver,
				Logger:   options.Logger.Named("httpmw"),
			}))
			r.Route("/schools", func(r chi.Router) {
				r.Get("/", api.schools)
				r.Post("/", api.postSchool)
				r.Route("/{school}", func(r chi.Router) {
					r.Get("/", api.school)
					r.Get("/invites", api.schoolInvites)
				})
			})
			r.Route("/invites", func(r chi.Router) {
				r.Post("/", api.postInvite)
				r.Delete("/{token}", api.deleteInvite)
			})
			r.Route("/users", func(r chi.Router) {
				r.Get("/", api.listUsers)
				r.Get("/me", api.userMe)
				r.Route("/{user}", func(r chi.Router) {
					r.Get("/", api.user)
					r.Patch("/role", api.patchUserRole)
					r.Patch("/school", api.patchUserSchool)
					r.Delete("/", api.deleteUser)
					r.Put("/restore", api.restoreUser)
				})
			})
			r.Get("/auditlogs", api.auditLogs)
		})
	})
	api.Handler = r
	return api
}

// createSession mints a session key for the user and returns the raw
// secret. Only called from the registration flow, where the caller has
// just proven possession of an invite token.
func (api *API) createSession(ctx context.Context, userID uuid.UUID) (string, error) {
	secret, err := cryptorand.String(40)
	if err != nil {
		return "", xerrors.Errorf("generate session secret: %w", err)
	}
	hashed := sha256.Sum256([]byte(secret))
	_, err = api.Database.InsertAPIKey(ctx, database.InsertAPIKeyParams{
		ID:           uuid.New(),
		UserID:       userID,
		HashedSecret: hex.EncodeToString(hashed[:]),
		ExpiresAt:    dbtime.Time(api.Clock.Now()).Add(sessionDuration),
	})
	if err != nil {
		return "", xerrors.Errorf("insert api key: %w", err)
	}
	return secret, nil
}
