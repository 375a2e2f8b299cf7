// Package api implements the stash REST API using chi.
package api

import (
	"net/http"

	"github.com/starford/stash/internal/identity"
)

// AuthMiddleware resolves the calling user with p and stores it in the request
// context. Requests the provider rejects get 401.
func AuthMiddleware(p identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := p.Authenticate(r)
			if err != nil || user == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), user)))
		})
	}
}
