package middleware

import (
	"context"
	"net/http"

	"github.com/planora/server/internal/api/problem"
	"github.com/planora/server/internal/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal returns the authenticated identity, if the request carried one.
func Principal(r *http.Request) (auth.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(auth.Principal)
	return p, ok
}

// Authenticate resolves the bearer token and rejects requests without a
// valid one.
func Authenticate(jwt *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
					"Unauthorized", err, env)
				return
			}
			principal, err := jwt.Resolve(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
					"Unauthorized", err, env)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthenticate attaches a principal when a valid token is present
// but lets anonymous requests through. Read endpoints use it: listings are
// public, yet an admin's listing includes inactive events.
func OptionalAuthenticate(jwt *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, err := auth.TokenFromHeader(r.Header.Get("Authorization")); err == nil {
				if principal, err := jwt.Resolve(token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), principalKey, principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects authenticated principals lacking any of the roles.
// It assumes Authenticate ran first.
func RequireRole(env string, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := Principal(r)
			if !ok {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
					"Unauthorized", auth.ErrMissingToken, env)
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden,
				"Forbidden", auth.ErrForbidden, env)
		})
	}
}
