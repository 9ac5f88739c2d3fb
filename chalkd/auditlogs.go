package chalkd

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/httpapi"
	"github.com/chalkboard/chalkboard/chalksdk"
)

// auditLogs lists audit rows. School admins must filter to their own
// school; the unfiltered listing is site-admin only.
func (api *API) auditLogs(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := database.GetAuditLogsParams{}
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

	logs, err := api.AuthzStore.GetAuditLogs(ctx, params)
	if err != nil {
		httpapi.WriteError(rw, http.StatusInternalServerError, err)
		return
	}
	converted := make([]chalksdk.AuditLog, 0, len(logs))
	for _, log := range logs {
		converted = append(converted, convertAuditLog(log))
	}
	httpapi.Write(rw, http.StatusOK, converted)
}
