package chalkd

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/httpapi"
	"github.com/chalkboard/chalkboard/chalkd/httpmw"
	"github.com/chalkboard/chalkboard/chalkd/invites"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/chalksdk"
)

// defaultInviteTTL applies when the issuer does not pick a lifetime.
const defaultInviteTTL = 7 * 24 * time.Hour

// postInvite mints an invite token. The response is the only place the
// token value ever appears.
func (api *API) postInvite(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmw.UserAuthorization(r)

	var req chalksdk.CreateInviteRequest
	if !httpapi.Read(rw, r, &req) {
		return
	}

	ttl := time.Duration(req.TTLMillis) * time.Millisecond
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	params := invites.GenerateParams{
		Role:       rbac.Role(req.Role),
		UsageLimit: req.UsageLimit,
		TTL:        ttl,
	}
	if req.SchoolID != nil {
		params.SchoolID = uuid.NullUUID{UUID: *req.SchoolID, Valid: true}
	} else if subject.SchoolID.Valid && rbac.Role(req.Role).SchoolScoped() {
		// School admins and teachers mint for their own school without
		// spelling it out.
		params.SchoolID = subject.SchoolID
	}
	if req.ClassID != nil {
		params.ClassID = uuid.NullUUID{UUID: *req.ClassID, Valid: true}
	}

	invite, err := api.Invites.Generate(ctx, subject, params)
	if rbac.IsUnauthorizedError(err) {
		httpapi.Forbidden(rw)
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: err.Error(),
		})
		return
	}
	httpapi.Write(rw, http.StatusCreated, convertInvite(invite, true))
}

// deleteInvite revokes by token. Revocation is idempotent in effect: a
// second call finds the invite already expired and still succeeds.
func (api *API) deleteInvite(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmw.UserAuthorization(r)
	token := chi.URLParam(r, "token")

	err := api.Invites.Invalidate(ctx, subject, token)
	if rbac.IsUnauthorizedError(err) {
		httpapi.Forbidden(rw)
		return
	}
	if errors.Is(err, database.ErrNoRows) || errors.Is(err, invites.ErrNotFound) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "invite not found",
		})
		return
	}
	if err != nil {
		httpapi.InternalServerError(rw)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}
