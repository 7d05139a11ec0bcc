package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/planora/server/internal/api/problem"
	"github.com/planora/server/internal/domain/users"
)

type UsersHandler struct {
	Service *users.Service
	Env     string
}

func NewUsersHandler(service *users.Service, env string) *UsersHandler {
	return &UsersHandler{Service: service, Env: env}
}

type userResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toUserResponse(u *users.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	user, err := h.Service.GetByID(r.Context(), principal.ID)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type updateProfileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Invalid Request", err, h.Env)
		return
	}

	user, err := h.Service.UpdateProfile(r.Context(), principal, pathParam(r, "id"), users.ProfileInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	listed, err := h.Service.List(r.Context(), principal)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	items := make([]userResponse, 0, len(listed))
	for i := range listed {
		items = append(items, toUserResponse(&listed[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type organizerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Organizers serves the organizer directory to signed-in users.
func (h *UsersHandler) Organizers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r, h.Env); !ok {
		return
	}
	listed, err := h.Service.ListOrganizers(r.Context())
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	items := make([]organizerResponse, 0, len(listed))
	for _, u := range listed {
		items = append(items, organizerResponse{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type setUserStatusRequest struct {
	Status string `json:"status"`
}

func (h *UsersHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	var req setUserStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Invalid Request", err, h.Env)
		return
	}
	err := h.Service.SetStatus(r.Context(), principal, pathParam(r, "id"), users.Status(req.Status))
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
