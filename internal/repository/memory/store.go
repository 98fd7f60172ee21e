// Package memory provides an in-process record store for development and tests.
//
// Unlike the SQL stores it offers no multi-row transaction. It exposes the
// capacity ledger as a row-level compare-and-swap (Reserve / Release) and the
// registration insert separately, so the admission coordinator must order them
// and compensate a reservation when the insert fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

type pairKey struct {
	eventID    string
	identityID string
}

// Store keeps events and registrations in maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	events        map[string]*model.Event
	registrations map[string]*model.Registration
	byPair        map[pairKey]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		events:        make(map[string]*model.Event),
		registrations: make(map[string]*model.Registration),
		byPair:        make(map[pairKey]string),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Create inserts a new event.
func (s *Store) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	event := &model.Event{
		ID:              uuid.New().String(),
		Title:           req.Title,
		Description:     req.Description,
		Location:        req.Location,
		EventDate:       req.EventDate,
		MaxParticipants: req.MaxParticipants,
		Status:          req.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if event.Status == "" {
		event.Status = model.EventOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	cp := *event
	return &cp, nil
}

// Put stores an event as given, replacing any event with the same ID. Used to seed fixtures.
func (s *Store) Put(event model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = &event
}

// List returns events with the given status ordered by event date, undated last.
func (s *Store) List(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.Event
	for _, e := range s.events {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].EventDate, out[j].EventDate
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

// GetByID returns a copy of the event or repository.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Reserve takes one slot if the event is open and has room.
func (s *Store) Reserve(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	if !e.IsOpen() {
		return repository.ErrEventClosed
	}
	if e.IsFull() {
		return repository.ErrEventFull
	}
	e.CurrentParticipants++
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Release returns a slot taken by Reserve. It never drops the fill below zero.
func (s *Store) Release(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	if e.CurrentParticipants > 0 {
		e.CurrentParticipants--
		e.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Insert stores a registration, enforcing uniqueness on (event, identity).
func (s *Store) Insert(ctx context.Context, reg *model.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[reg.EventID]; !ok {
		return repository.ErrNotFound
	}
	key := pairKey{reg.EventID, reg.IdentityID}
	if _, exists := s.byPair[key]; exists {
		return repository.ErrAlreadyRegistered
	}
	cp := *reg
	s.registrations[reg.ID] = &cp
	s.byPair[key] = reg.ID
	return nil
}

// FindByPair returns the registration for (eventID, identityID) or repository.ErrNotFound.
func (s *Store) FindByPair(ctx context.Context, eventID, identityID string) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{eventID, identityID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s.registrations[id]
	return &cp, nil
}

// ListByEvent returns all registrations for an event, oldest first.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.Registration
	for _, r := range s.registrations {
		if r.EventID == eventID {
			out = append(out, *r)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByIdentity returns an identity's registrations with event summaries, newest first.
func (s *Store) ListByIdentity(ctx context.Context, identityID string) ([]model.RegistrationWithEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.RegistrationWithEvent
	for _, r := range s.registrations {
		if r.IdentityID != identityID {
			continue
		}
		item := model.RegistrationWithEvent{Registration: *r}
		if e, ok := s.events[r.EventID]; ok {
			item.Event = &model.EventSummary{
				ID: e.ID, Title: e.Title, EventDate: e.EventDate, Location: e.Location, Status: e.Status,
			}
		}
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateStatus applies a moderation decision. Only pending registrations can change.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !r.Status.CanTransitionTo(status) {
		return nil, repository.ErrInvalidTransition
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	return &cp, nil
}
