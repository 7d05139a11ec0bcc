package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/planora/server/internal/api/middleware"
	"github.com/planora/server/internal/api/problem"
	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/domain/events"
	"github.com/planora/server/internal/domain/registrations"
	"github.com/planora/server/internal/domain/users"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.PathValue(key))
}

func requirePrincipal(w http.ResponseWriter, r *http.Request, env string) (auth.Principal, bool) {
	principal, ok := middleware.Principal(r)
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
			"Unauthorized", auth.ErrMissingToken, env)
	}
	return principal, ok
}

// writeDomainError maps expected domain outcomes to problem responses.
// Anything unmapped is a fault and comes back as a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var eventsField events.FieldError
	var usersField users.FieldError

	switch {
	case errors.As(err, &eventsField):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Validation Failed", err, env,
			problem.WithErrors(map[string]any{eventsField.Field: eventsField.Message}))
	case errors.As(err, &usersField):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Validation Failed", err, env,
			problem.WithErrors(map[string]any{usersField.Field: usersField.Message}))
	case errors.Is(err, events.ErrNotFound),
		errors.Is(err, registrations.ErrNotFound),
		errors.Is(err, users.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound,
			"Not Found", err, env)
	case errors.Is(err, events.ErrForbidden), errors.Is(err, auth.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden,
			"Forbidden", err, env)
	case errors.Is(err, registrations.ErrEventFull):
		problem.Write(w, r, http.StatusConflict, problem.TypeEventFull,
			"Event Full", err, env)
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		problem.Write(w, r, http.StatusConflict, problem.TypeDuplicateRegistration,
			"Already Registered", err, env)
	case errors.Is(err, users.ErrEmailTaken):
		problem.Write(w, r, http.StatusConflict, problem.TypeEmailTaken,
			"Email Taken", err, env)
	case errors.Is(err, users.ErrInvalidCredentials):
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
			"Invalid Credentials", err, env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal,
			"Internal Server Error", err, env)
	}
}
