package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/planora/server/internal/api/problem"
	"github.com/planora/server/internal/domain/registrations"
	"github.com/planora/server/internal/metrics"
)

type RegistrationsHandler struct {
	Service *registrations.Service
	Env     string
}

func NewRegistrationsHandler(service *registrations.Service, env string) *RegistrationsHandler {
	return &RegistrationsHandler{Service: service, Env: env}
}

type registerRequest struct {
	EventID string `json:"event_id"`
}

type registrationResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	EventID   string `json:"event_id"`
	CreatedAt string `json:"created_at"`
}

func (h *RegistrationsHandler) Register(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Invalid Request", err, h.Env,
			problem.WithErrors(map[string]any{"event_id": "required"}))
		return
	}

	reg, err := h.Service.Register(r.Context(), principal, req.EventID)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(registrationOutcome(err)).Inc()
		writeDomainError(w, r, err, h.Env)
		return
	}
	metrics.RegistrationsTotal.WithLabelValues("admitted").Inc()

	writeJSON(w, http.StatusCreated, registrationResponse{
		ID:        reg.ID.String(),
		UserID:    reg.UserID,
		EventID:   reg.EventID,
		CreatedAt: reg.CreatedAt.Format(time.RFC3339),
	})
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, registrations.ErrEventFull):
		return "full"
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		return "duplicate"
	case errors.Is(err, registrations.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

type registeredEventResponse struct {
	ID         string  `json:"id"`
	EventID    string  `json:"event_id"`
	EventTitle string  `json:"event_title"`
	EventDate  string  `json:"event_date"`
	Location   string  `json:"location"`
	MainImage  *string `json:"main_image,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func (h *RegistrationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	mine, err := h.Service.ListMine(r.Context(), principal)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}

	items := make([]registeredEventResponse, 0, len(mine))
	for _, re := range mine {
		items = append(items, registeredEventResponse{
			ID:         re.ID.String(),
			EventID:    re.EventID,
			EventTitle: re.EventTitle,
			EventDate:  re.EventDate.Format("2006-01-02"),
			Location:   re.Location,
			MainImage:  re.MainImage,
			CreatedAt:  re.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type attendeeResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RegisteredAt string `json:"registered_at"`
}

func (h *RegistrationsHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	attendees, err := h.Service.ListAttendees(r.Context(), principal, pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}

	items := make([]attendeeResponse, 0, len(attendees))
	for _, a := range attendees {
		items = append(items, attendeeResponse{
			ID:           a.ID.String(),
			UserID:       a.UserID,
			Name:         a.Name,
			Email:        a.Email,
			RegisteredAt: a.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
