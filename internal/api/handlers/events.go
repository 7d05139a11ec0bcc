package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/planora/server/internal/api/middleware"
	"github.com/planora/server/internal/api/problem"
	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/domain/events"
	"github.com/planora/server/internal/metrics"
)

// maxUploadBytes bounds a single multipart request, not a single image.
const maxUploadBytes = 32 << 20

type EventsHandler struct {
	Service   *events.Service
	Lifecycle *events.LifecycleService
	Env       string
}

func NewEventsHandler(service *events.Service, lifecycle *events.LifecycleService, env string) *EventsHandler {
	return &EventsHandler{Service: service, Lifecycle: lifecycle, Env: env}
}

type eventResponse struct {
	ID            string   `json:"id"`
	OrganizerID   string   `json:"organizer_id"`
	OrganizerName string   `json:"organizer_name,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
	Location      string   `json:"location"`
	Date          string   `json:"date"`
	StartTime     string   `json:"start_time,omitempty"`
	Capacity      int      `json:"capacity"`
	Registered    int      `json:"registered"`
	SpotsLeft     int      `json:"spots_left"`
	Status        string   `json:"status"`
	MainImage     *string  `json:"main_image,omitempty"`
	Images        []string `json:"images"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func toEventResponse(e *events.Event) eventResponse {
	images := e.Images
	if images == nil {
		images = []string{}
	}
	return eventResponse{
		ID:            e.ID,
		OrganizerID:   e.OrganizerID,
		OrganizerName: e.OrganizerName,
		Title:         e.Title,
		Description:   e.Description,
		Category:      e.Category,
		Location:      e.Location,
		Date:          e.Date.Format("2006-01-02"),
		StartTime:     e.StartTime,
		Capacity:      e.Capacity,
		Registered:    e.Registered,
		SpotsLeft:     e.Capacity - e.Registered,
		Status:        string(e.Status),
		MainImage:     e.MainImage,
		Images:        images,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     e.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := events.Filters{
		Category:        r.URL.Query().Get("category"),
		IncludeInactive: r.URL.Query().Get("include_inactive") == "true",
	}

	listed, err := h.Service.List(r.Context(), principalOrNil(r), filters)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}

	items := make([]eventResponse, 0, len(listed))
	for i := range listed {
		items = append(items, toEventResponse(&listed[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *EventsHandler) ListByOrganizer(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	listed, err := h.Service.ListByOrganizer(r.Context(), principal, pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	items := make([]eventResponse, 0, len(listed))
	for i := range listed {
		items = append(items, toEventResponse(&listed[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Create accepts multipart/form-data (fields plus optional main_image and
// images parts) or plain JSON when there is nothing to upload.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}

	input, mainImage, gallery, cleanup, err := h.parseCreate(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Invalid Request", err, h.Env)
		return
	}
	defer cleanup()

	event, err := h.Lifecycle.Create(r.Context(), principal, input, mainImage, gallery)
	if err != nil {
		metrics.EventsLifecycleTotal.WithLabelValues("create", "error").Inc()
		writeDomainError(w, r, err, h.Env)
		return
	}
	metrics.EventsLifecycleTotal.WithLabelValues("create", "ok").Inc()
	writeJSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}

	input, mainImage, gallery, cleanup, err := h.parseUpdate(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Invalid Request", err, h.Env)
		return
	}
	defer cleanup()

	event, err := h.Lifecycle.Update(r.Context(), principal, pathParam(r, "id"), input, mainImage, gallery)
	if err != nil {
		metrics.EventsLifecycleTotal.WithLabelValues("update", "error").Inc()
		writeDomainError(w, r, err, h.Env)
		return
	}
	metrics.EventsLifecycleTotal.WithLabelValues("update", "ok").Inc()
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	if err := h.Lifecycle.Delete(r.Context(), principal, pathParam(r, "id")); err != nil {
		metrics.EventsLifecycleTotal.WithLabelValues("delete", "error").Inc()
		writeDomainError(w, r, err, h.Env)
		return
	}
	metrics.EventsLifecycleTotal.WithLabelValues("delete", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

type deleteImageRequest struct {
	Ref string `json:"ref"`
}

func (h *EventsHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	var req deleteImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ref == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Invalid Request", err, h.Env,
			problem.WithErrors(map[string]any{"ref": "required"}))
		return
	}
	if err := h.Lifecycle.DeleteImage(r.Context(), principal, pathParam(r, "id"), req.Ref); err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *EventsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.Env)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Invalid Request", err, h.Env)
		return
	}
	if err := h.Lifecycle.SetStatus(r.Context(), principal, pathParam(r, "id"), req.Status); err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) parseCreate(r *http.Request) (events.CreateInput, *events.BlobInput, []events.BlobInput, func(), error) {
	var input events.CreateInput
	noop := func() {}

	if !isMultipart(r) {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return input, nil, nil, noop, err
		}
		return input, nil, nil, noop, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return input, nil, nil, noop, err
	}
	input = events.CreateInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Location:    r.FormValue("location"),
		Date:        r.FormValue("date"),
		StartTime:   r.FormValue("start_time"),
		OrganizerID: r.FormValue("organizer_id"),
	}
	if raw := r.FormValue("capacity"); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil {
			return input, nil, nil, noop, err
		}
		input.Capacity = capacity
	}

	mainImage, gallery, cleanup, err := openUploads(r)
	return input, mainImage, gallery, cleanup, err
}

func (h *EventsHandler) parseUpdate(r *http.Request) (events.UpdateInput, *events.BlobInput, []events.BlobInput, func(), error) {
	var input events.UpdateInput
	noop := func() {}

	if !isMultipart(r) {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return input, nil, nil, noop, err
		}
		return input, nil, nil, noop, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return input, nil, nil, noop, err
	}
	formPtr := func(key string) *string {
		if values, ok := r.MultipartForm.Value[key]; ok && len(values) > 0 {
			return &values[0]
		}
		return nil
	}
	input = events.UpdateInput{
		Title:       formPtr("title"),
		Description: formPtr("description"),
		Category:    formPtr("category"),
		Location:    formPtr("location"),
		Date:        formPtr("date"),
		StartTime:   formPtr("start_time"),
		Status:      formPtr("status"),
	}
	if raw := formPtr("capacity"); raw != nil {
		capacity, err := strconv.Atoi(*raw)
		if err != nil {
			return input, nil, nil, noop, err
		}
		input.Capacity = &capacity
	}
	input.ImagesToDelete = r.MultipartForm.Value["delete_images"]

	mainImage, gallery, cleanup, err := openUploads(r)
	return input, mainImage, gallery, cleanup, err
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// openUploads opens the main_image and images parts. The returned cleanup
// closes every opened file and must run after the lifecycle call finishes
// reading them.
func openUploads(r *http.Request) (*events.BlobInput, []events.BlobInput, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, close := range closers {
			_ = close()
		}
	}

	var mainImage *events.BlobInput
	file, header, err := r.FormFile("main_image")
	switch {
	case err == nil:
		closers = append(closers, file.Close)
		mainImage = &events.BlobInput{Name: header.Filename, Reader: file}
	case errors.Is(err, http.ErrMissingFile):
		// no main image in this request
	default:
		return nil, nil, func() {}, err
	}

	var gallery []events.BlobInput
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["images"] {
			file, err := header.Open()
			if err != nil {
				cleanup()
				return nil, nil, func() {}, err
			}
			closers = append(closers, file.Close)
			gallery = append(gallery, events.BlobInput{Name: header.Filename, Reader: file})
		}
	}
	return mainImage, gallery, cleanup, nil
}

func principalOrNil(r *http.Request) *auth.Principal {
	if principal, ok := middleware.Principal(r); ok {
		return &principal
	}
	return nil
}
