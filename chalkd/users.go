package chalkd

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/httpapi"
	"github.com/chalkboard/chalkboard/chalkd/httpmw"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/chalkd/users"
	"github.com/chalkboard/chalkboard/chalksdk"
)

func (api *API) userMe(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmw.UserAuthorization(r)

	user, err := api.AuthzStore.GetUserByID(ctx, subject.ID)
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	httpapi.Write(rw, http.StatusOK, convertUser(user))
}

// listUsers returns users the caller may see. Visibility is enforced
// by the store's post-filter, so a student sees one row and a school
// admin the whole school.
func (api *API) listUsers(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := database.GetUsersParams{}
	if raw := r.URL.Query().Get("school_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
				Message: "school_id is not a valid uuid",
			})
			return
		}
		params.SchoolID = uuid.NullUUID{UUID: id, Valid: true}
	}

	dbUsers, err := api.AuthzStore.GetUsers(ctx, params)
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	httpapi.Write(rw, http.StatusOK, convertUsers(dbUsers))
}

func (api *API) user(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httpmw.ParseUUIDParam(rw, r, "user")
	if !ok {
		return
	}

	user, err := api.AuthzStore.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrNoRows) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "user not found",
		})
		return
	}
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	httpapi.Write(rw, http.StatusOK, convertUser(user))
}

func (api *API) patchUserRole(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmw.UserAuthorization(r)
	userID, ok := httpmw.ParseUUIDParam(rw, r, "user")
	if !ok {
		return
	}
	var req chalksdk.UpdateUserRoleRequest
	if !httpapi.Read(rw, r, &req) {
		return
	}

	user, err := api.Users.UpdateRole(ctx, subject, userID, rbac.Role(req.Role))
	api.writeUserMutation(rw, user, err)
}

func (api *API) patchUserSchool(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmw.UserAuthorization(r)
	userID, ok := httpmw.ParseUUIDParam(rw, r, "user")
	if !ok {
		return
	}
	var req chalksdk.UpdateUserSchoolRequest
	if !httpapi.Read(rw, r, &req) {
		return
	}

	var schoolID uuid.NullUUID
	if req.SchoolID != nil {
		schoolID = uuid.NullUUID{UUID: *req.SchoolID, Valid: true}
	}
	user, err := api.Users.UpdateSchool(ctx, subject, userID, schoolID)
	api.writeUserMutation(rw, user, err)
}

func (api *API) deleteUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmw.UserAuthorization(r)
	userID, ok := httpmw.ParseUUIDParam(rw, r, "user")
	if !ok {
		return
	}

	_, err := api.Users.SoftDelete(ctx, subject, userID)
	if err != nil {
		api.writeUserMutation(rw, database.User{}, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *API) restoreUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmw.UserAuthorization(r)
	userID, ok := httpmw.ParseUUIDParam(rw, r, "user")
	if !ok {
		return
	}

	user, err := api.Users.Restore(ctx, subject, userID)
	api.writeUserMutation(rw, user, err)
}

// writeUserMutation maps the users service error taxonomy onto status
// codes and writes the updated user on success.
func (api *API) writeUserMutation(rw http.ResponseWriter, user database.User, err error) {
	switch {
	case rbac.IsUnauthorizedError(err):
		httpapi.Forbidden(rw)
	case errors.Is(err, users.ErrLastSiteAdmin), errors.Is(err, users.ErrSelfDelete):
		httpapi.Write(rw, http.StatusConflict, httpapi.Response{
			Message: err.Error(),
		})
	case errors.Is(err, database.ErrNoRows):
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "user not found",
		})
	case err != nil:
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: err.Error(),
		})
	default:
		httpapi.Write(rw, http.StatusOK, convertUser(user))
	}
}
