package admission

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

// EventReader loads an event record.
type EventReader interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// Snapshot is one consistent read of an event's capacity state.
type Snapshot struct {
	EventID string
	Status  model.EventStatus
	Current int
	Max     int
}

// HasRoom reports whether a slot was free at read time.
func (s Snapshot) HasRoom() bool { return s.Current < s.Max }

// EventIsOpen reports whether the event accepted registrations at read time.
func (s Snapshot) EventIsOpen() bool { return s.Status == model.EventOpen }

// Ledger is the advisory capacity check. The binding decision is the
// conditional increment made by the record store during the write phase.
type Ledger struct {
	events EventReader
}

// NewLedger constructs a Ledger reading from events.
func NewLedger(events EventReader) *Ledger {
	return &Ledger{events: events}
}

// Check reads the event once and returns its capacity snapshot.
// An unknown event is ErrEventNotFound; any other read failure is ErrUnavailable.
func (l *Ledger) Check(ctx context.Context, eventID string) (Snapshot, error) {
	if eventID == "" {
		return Snapshot{}, invalid("eventId", errors.New("event id is required"))
	}
	event, err := l.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Snapshot{}, newError(ErrEventNotFound, err)
		}
		return Snapshot{}, newError(ErrUnavailable, err)
	}
	return Snapshot{
		EventID: event.ID,
		Status:  event.Status,
		Current: event.CurrentParticipants,
		Max:     event.MaxParticipants,
	}, nil
}
