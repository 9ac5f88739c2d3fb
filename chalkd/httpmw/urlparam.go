package httpmw

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chalkboard/chalkboard/chalkd/httpapi"
)

// ParseUUIDParam consumes a url parameter and parses it as a UUID,
// writing a 400 on failure.
func ParseUUIDParam(rw http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: fmt.Sprintf("url parameter %q is required", name),
		})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: fmt.Sprintf("url parameter %q is not a valid uuid", name),
		})
		return uuid.Nil, false
	}
	return id, true
}
