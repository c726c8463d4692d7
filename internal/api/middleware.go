// Package api implements the Evolve HTTP API using chi.
package api

import (
	"context"
	"net/http"

	"github.com/starford/evolve/internal/authgate"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "evolve_session"

type ctxKey struct{}

// SessionMiddleware rejects requests without a valid session cookie and
// stores the session token in the request context.
func SessionMiddleware(sessions *authgate.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := sessionToken(r)
			if !sessions.Valid(tok) {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, tok)))
		})
	}
}

// sessionToken returns the raw cookie value, or "" when absent.
func sessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// sessionFrom returns the token SessionMiddleware validated.
func sessionFrom(ctx context.Context) string {
	tok, _ := ctx.Value(ctxKey{}).(string)
	return tok
}
