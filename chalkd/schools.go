package chalkd

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/httpapi"
	"github.com/chalkboard/chalkboard/chalkd/httpmw"
	"github.com/chalkboard/chalkboard/chalksdk"
)

// postSchool creates a tenant. Only site admins pass the store's
// create check.
func (api *API) postSchool(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req chalksdk.CreateSchoolRequest
	if !httpapi.Read(rw, r, &req) {
		return
	}

	school, err := api.AuthzStore.InsertSchool(ctx, database.InsertSchoolParams{
		ID:   uuid.New(),
		Name: req.Name,
	})
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	httpapi.Write(rw, http.StatusCreated, convertSchool(school))
}

func (api *API) schools(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schools, err := api.AuthzStore.GetSchools(ctx)
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	httpapi.Write(rw, http.StatusOK, convertSchools(schools))
}

func (api *API) school(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID, ok := httpmw.ParseUUIDParam(rw, r, "school")
	if !ok {
		return
	}

	school, err := api.AuthzStore.GetSchoolByID(ctx, schoolID)
	if errors.Is(err, database.ErrNoRows) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "school not found",
		})
		return
	}
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	httpapi.Write(rw, http.StatusOK, convertSchool(school))
}

// schoolInvites lists the school's invites visible to the caller.
// Tokens are never included; the issuer saw the token exactly once at
// creation.
func (api *API) schoolInvites(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID, ok := httpmw.ParseUUIDParam(rw, r, "school")
	if !ok {
		return
	}

	dbInvites, err := api.AuthzStore.GetInvitesBySchool(ctx, schoolID)
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	converted := make([]chalksdk.Invite, 0, len(dbInvites))
	for _, invite := range dbInvites {
		converted = append(converted, convertInvite(invite, false))
	}
	httpapi.Write(rw, http.StatusOK, converted)
}
