// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the storage and admission layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/admission"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

// ErrInvalidInput marks request errors the caller can fix.
var ErrInvalidInput = errors.New("invalid input")

// MaxCapacity bounds max_participants on new events.
const MaxCapacity = 100_000

// EventStore reads and seeds events.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	List(ctx context.Context, status model.EventStatus) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// RegistrationStore reads registrations and applies moderation decisions.
type RegistrationStore interface {
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByIdentity(ctx context.Context, identityID string) ([]model.RegistrationWithEvent, error)
	UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error)
}

// Registrar runs admission for one application.
type Registrar interface {
	Register(ctx context.Context, identity model.Identity, app model.Application) (*model.Registration, error)
}

// EventService orchestrates event and registration operations.
type EventService struct {
	events        EventStore
	registrations RegistrationStore
	registrar     Registrar
	gate          *admission.Gate
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	events EventStore,
	registrations RegistrationStore,
	registrar Registrar,
	gate *admission.Gate,
) *EventService {
	return &EventService{events: events, registrations: registrations, registrar: registrar, gate: gate}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// CreateEvent validates the request and delegates to the store.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, invalidf("title is required")
	}
	if req.MaxParticipants <= 0 {
		return nil, invalidf("max_participants must be a positive integer")
	}
	if req.MaxParticipants > MaxCapacity {
		return nil, invalidf("max_participants cannot exceed %d", MaxCapacity)
	}
	if req.Status == "" {
		req.Status = model.EventOpen
	}
	if !req.Status.Valid() {
		return nil, invalidf("unknown status %q", req.Status)
	}
	return s.events.Create(ctx, req)
}

// ListEvents returns events with the given status, open ones by default.
func (s *EventService) ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	if status == "" {
		status = model.EventOpen
	}
	if !status.Valid() {
		return nil, invalidf("unknown status %q", status)
	}
	return s.events.List(ctx, status)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, invalidf("event id is required")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// EventDetail returns an event with the caller's registration state.
// An anonymous caller is reported as not registered.
func (s *EventService) EventDetail(ctx context.Context, id string, identity model.Identity) (*model.EventDetailResponse, error) {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &model.EventDetailResponse{Event: event}
	if identity.Subject == "" {
		return resp, nil
	}
	status, err := s.gate.Lookup(ctx, id, identity.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup registration: %w", err)
	}
	resp.IsRegistered = status.IsRegistered
	resp.UserRegistration = status.Registration
	return resp, nil
}

// Register submits an application on behalf of identity.
func (s *EventService) Register(ctx context.Context, identity model.Identity, app model.Application) (*model.Registration, error) {
	return s.registrar.Register(ctx, identity, app)
}

// ListRegistrations returns all registrations for an event.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.registrations.ListByEvent(ctx, eventID)
}

// MyRegistrations returns the identity's registrations, newest first.
func (s *EventService) MyRegistrations(ctx context.Context, identity model.Identity) ([]model.RegistrationWithEvent, error) {
	if identity.Subject == "" {
		return nil, invalidf("identity is required")
	}
	return s.registrations.ListByIdentity(ctx, identity.Subject)
}

// Moderate moves a pending registration to approved or rejected.
func (s *EventService) Moderate(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error) {
	if id == "" {
		return nil, invalidf("registration id is required")
	}
	if status != model.StatusApproved && status != model.StatusRejected {
		return nil, invalidf("status must be %q or %q", model.StatusApproved, model.StatusRejected)
	}
	return s.registrations.UpdateStatus(ctx, id, status)
}
