// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/admission"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/service"
)

// multipartMemory is how much of a registration form is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

// EventHandler holds all HTTP handlers for the volunteer registration API.
type EventHandler struct {
	svc            *service.EventService
	maxUploadBytes int64
}

// NewEventHandler constructs an EventHandler. maxUploadBytes caps the identity document size.
func NewEventHandler(svc *service.EventService, maxUploadBytes int64) *EventHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = admission.DefaultMaxBytes
	}
	return &EventHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, field string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Field: field})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain errors to status codes. Unexpected errors are logged and hidden.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var status int
	switch {
	case errors.Is(err, admission.ErrValidation), errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, admission.ErrAlreadyRegistered),
		errors.Is(err, admission.ErrEventClosed),
		errors.Is(err, admission.ErrCapacityExceeded),
		errors.Is(err, repository.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, admission.ErrEventNotFound), errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, admission.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, admission.ErrArtifactWriteFailed):
		status = http.StatusBadGateway
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback, "")
		return
	}
	writeError(w, status, publicMessage(err), admission.FieldOf(err))
}

// publicMessage hides storage details behind the error kind.
func publicMessage(err error) string {
	var ae *admission.Error
	if errors.As(err, &ae) {
		if ae.Kind == admission.ErrValidation && ae.Err != nil {
			return ae.Err.Error()
		}
		return ae.Kind.Error()
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not found"
	case errors.Is(err, repository.ErrInvalidTransition):
		return "registration has already been decided"
	}
	return err.Error()
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events?status=open
// Returns events with the requested status ordered by event date.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	status := model.EventStatus(r.URL.Query().Get("status"))
	events, err := h.svc.ListEvents(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, err, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
// Returns the event together with the caller's registration, if any.
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := h.svc.EventDetail(r.Context(), id, IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Register handles POST /events/{id}/register
// Accepts a multipart form with the applicant profile and an idCard file.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := IdentityFromContext(r.Context())

	app, closeDoc, field, err := h.parseApplication(w, r, id)
	if closeDoc != nil {
		defer closeDoc()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), field)
		return
	}

	reg, err := h.svc.Register(r.Context(), identity, app)
	if err != nil {
		writeServiceError(w, r, err, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// parseApplication reads the registration form. On error it returns the offending field.
func (h *EventHandler) parseApplication(w http.ResponseWriter, r *http.Request, eventID string) (model.Application, func(), string, error) {
	// Room for the profile fields on top of the document.
	limit := h.maxUploadBytes + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > limit {
			return model.Application{}, nil, "idCard", errors.New("identity document is too large")
		}
		return model.Application{}, nil, "", errors.New("expected a multipart form")
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	age, err := strconv.Atoi(strings.TrimSpace(r.FormValue("age")))
	if err != nil {
		return model.Application{}, cleanup, "age", errors.New("age must be a whole number")
	}

	app := model.Application{
		EventID: eventID,
		Profile: model.Profile{
			FullName:    strings.TrimSpace(r.FormValue("fullName")),
			Phone:       strings.TrimSpace(r.FormValue("phone")),
			Address:     strings.TrimSpace(r.FormValue("address")),
			Institution: strings.TrimSpace(r.FormValue("institution")),
			Age:         age,
			Gender:      model.NormalizeGender(r.FormValue("gender")),
			Motivation:  strings.TrimSpace(r.FormValue("motivation")),
		},
	}

	file, header, err := r.FormFile("idCard")
	if errors.Is(err, http.ErrMissingFile) {
		// Leave Document nil; admission reports the missing field.
		return app, cleanup, "", nil
	}
	if err != nil {
		return model.Application{}, cleanup, "idCard", errors.New("could not read identity document")
	}
	closeAll := func() {
		_ = file.Close()
		cleanup()
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType, err = sniff(file)
		if err != nil {
			return model.Application{}, closeAll, "idCard", errors.New("could not read identity document")
		}
	}

	app.Document = &model.Document{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}
	return app, closeAll, "", nil
}

// sniff detects the content type from the first bytes and rewinds the file.
func sniff(f io.ReadSeeker) (string, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns all registrations for a given event.
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	regs, err := h.svc.ListRegistrations(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// MyRegistrations handles GET /me/registrations
// Returns the caller's registrations with event summaries, newest first.
func (h *EventHandler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.MyRegistrations(r.Context(), IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.RegistrationWithEvent{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// UpdateRegistrationStatus handles PATCH /registrations/{id}/status
// Applies a moderation decision to a pending registration.
func (h *EventHandler) UpdateRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return
	}

	reg, err := h.svc.Moderate(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, r, err, "failed to update registration")
		return
	}

	writeJSON(w, http.StatusOK, reg)
}
