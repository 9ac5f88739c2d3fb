package httpmw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"cdr.dev/slog"

	"github.com/chalkboard/chalkboard/chalkd/database"
	"github.com/chalkboard/chalkboard/chalkd/database/dbauthz"
	"github.com/chalkboard/chalkboard/chalkd/database/dbtime"
	"github.com/chalkboard/chalkboard/chalkd/httpapi"
	"github.com/chalkboard/chalkboard/chalkd/principal"
	"github.com/chalkboard/chalkboard/chalkd/rbac"
	"github.com/chalkboard/chalkboard/chalksdk"
)

const signedOutErrorMessage = "You are signed out or your session has expired. Please sign in again to continue."

type apiKeyContextKey struct{}

func contextWithAPIKey(ctx context.Context, key database.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, key)
}

// APIKey returns the API key from the ExtractAPIKey handler.
func APIKey(r *http.Request) database.APIKey {
	key, ok := r.Context().Value(apiKeyContextKey{}).(database.APIKey)
	if !ok {
		panic("developer error: ExtractAPIKey middleware not provided")
	}
	return key
}

// UserAuthorization returns the subject used for authorization. Depends
// on the ExtractAPIKey handler.
func UserAuthorization(r *http.Request) rbac.Subject {
	subject, ok := dbauthz.SubjectFromContext(r.Context())
	if !ok {
		panic("developer error: ExtractAPIKey middleware not provided")
	}
	return subject
}

type ExtractAPIKeyConfig struct {
	// DB is the raw store. Session lookup is part of the privileged
	// authentication path and runs before any subject exists.
	DB       database.Store
	Resolver *principal.Resolver
	Logger   slog.Logger
}

// ExtractAPIKey authenticates the request from the session token
// header. On success the request context carries the API key and the
// resolved subject, so the authorized store works for all downstream
// handlers.
func ExtractAPIKey(cfg ExtractAPIKeyConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(chalksdk.SessionTokenHeader)
			if token == "" {
				httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
					Message: signedOutErrorMessage,
				})
				return
			}

			hashed := sha256.Sum256([]byte(token))
			key, err := cfg.DB.GetAPIKeyByHashedSecret(ctx, hex.EncodeToString(hashed[:]))
			if err != nil {
				httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
					Message: signedOutErrorMessage,
				})
				return
			}
			now := dbtime.Now()
			if !key.ExpiresAt.After(now) {
				httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
					Message: signedOutErrorMessage,
				})
				return
			}

			subject, err := cfg.Resolver.Resolve(ctx, key.UserID)
			if err != nil {
				// Deleted users keep their key rows until revocation
				// catches up; either way the session is dead.
				httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
					Message: signedOutErrorMessage,
				})
				return
			}

			// Throttled to once an hour to keep reads cheap.
			if now.Sub(key.LastUsed) > time.Hour {
				err = cfg.DB.UpdateAPIKeyLastUsed(ctx, database.UpdateAPIKeyLastUsedParams{
					ID:       key.ID,
					LastUsed: now,
				})
				if err != nil {
					cfg.Logger.Warn(ctx, "update api key last used", slog.Error(err))
				}
			}

			ctx = dbauthz.As(ctx, subject)
			ctx = contextWithAPIKey(ctx, key)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
