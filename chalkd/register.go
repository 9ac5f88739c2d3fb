package chalkd

import (
	"errors"
	"net/http"
	"time"

	"github.com/chalkboard/chalkboard/chalkd/bootstrap"
	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/httpapi"
	"github.com/chalkboard/chalkboard/chalkd/invites"
	"github.com/chalkboard/chalkboard/chalkd/provision"
	"github.com/chalkboard/chalkboard/chalksdk"
)

// postBootstrap mints the one-time platform bootstrap token. The
// endpoint is unauthenticated; the service rejects it the moment a
// site admin exists.
func (api *API) postBootstrap(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req chalksdk.BootstrapRequest
	if r.ContentLength > 0 && !httpapi.Read(rw, r, &req) {
		return
	}

	invite, err := api.Bootstrap.GenerateToken(ctx, time.Duration(req.TTLMillis)*time.Millisecond)
	if errors.Is(err, bootstrap.ErrConflict) {
		httpapi.Write(rw, http.StatusConflict, httpapi.Response{
			Message: err.Error(),
		})
		return
	}
	if err != nil {
		httpapi.InternalServerError(rw)
		return
	}
	httpapi.Write(rw, http.StatusCreated, chalksdk.BootstrapResponse{
		Token:     invite.Token,
		ExpiresAt: invite.ExpiresAt,
	})
}

// postRegister provisions the principal for a new identity. The invite
// token is the only credential; role and school come from it alone.
func (api *API) postRegister(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req chalksdk.CreateRegistrationRequest
	if !httpapi.Read(rw, r, &req) {
		return
	}

	user, err := api.Provision.ProvisionIdentity(ctx, provision.Identity{
		ID:        req.ID,
		Token:     req.InviteToken,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AvatarURL: req.AvatarURL,
	})
	switch {
	case errors.Is(err, provision.ErrCredentialRequired):
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: err.Error(),
		})
		return
	case errors.Is(err, invites.ErrNotFound):
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: err.Error(),
		})
		return
	case errors.Is(err, invites.ErrExpired), errors.Is(err, invites.ErrExhausted):
		httpapi.Write(rw, http.StatusGone, httpapi.Response{
			Message: err.Error(),
		})
		return
	case errors.Is(err, database.ErrUniqueViolation):
		httpapi.Write(rw, http.StatusConflict, httpapi.Response{
			Message: "a user with that email already exists",
		})
		return
	case err != nil:
		httpapi.InternalServerError(rw)
		return
	}

	token, err := api.createSession(ctx, user.ID)
	if err != nil {
		httpapi.InternalServerError(rw)
		return
	}
	httpapi.Write(rw, http.StatusCreated, chalksdk.RegistrationResponse{
		User:         convertUser(user),
		SessionToken: token,
	})
}
