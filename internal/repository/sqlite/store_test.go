package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "volunteers.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createEvent(t *testing.T, store *Store, capacity int, status model.EventStatus) *model.Event {
	t.Helper()
	event, err := store.Create(context.Background(), model.CreateEventRequest{
		Title:           "Beach cleanup",
		MaxParticipants: capacity,
		Status:          status,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return event
}

func newRegistration(eventID, identityID string) *model.Registration {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Registration{
		ID:         uuid.NewString(),
		EventID:    eventID,
		IdentityID: identityID,
		Email:      identityID + "@example.com",
		Profile: model.Profile{
			FullName: "Test Volunteer", Phone: "0800", Address: "Somewhere",
			Institution: "UI", Age: 20, Gender: model.GenderMale, Motivation: "help",
		},
		ArtifactPath: identityID + "/" + eventID + ".png",
		ArtifactRef:  "http://files/" + identityID + "/" + eventID + ".png",
		Status:       model.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestAdmitRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	event := createEvent(t, store, 2, model.EventOpen)

	reg := newRegistration(event.ID, "alice")
	if err := store.Admit(ctx, reg); err != nil {
		t.Fatalf("admit: %v", err)
	}

	got, err := store.FindByPair(ctx, event.ID, "alice")
	if err != nil {
		t.Fatalf("find by pair: %v", err)
	}
	if got.ID != reg.ID || got.ArtifactRef != reg.ArtifactRef || got.Status != model.StatusPending {
		t.Fatalf("registration = %+v, want %+v", got, reg)
	}

	reloaded, err := store.GetByID(ctx, event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if reloaded.CurrentParticipants != 1 {
		t.Fatalf("current_participants = %d, want 1", reloaded.CurrentParticipants)
	}
}

func TestAdmitRejections(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	full := createEvent(t, store, 1, model.EventOpen)
	if err := store.Admit(ctx, newRegistration(full.ID, "first")); err != nil {
		t.Fatalf("admit first: %v", err)
	}
	closed := createEvent(t, store, 5, model.EventClosed)

	tests := []struct {
		name string
		reg  *model.Registration
		want error
	}{
		{"full event", newRegistration(full.ID, "second"), repository.ErrEventFull},
		{"closed event", newRegistration(closed.ID, "someone"), repository.ErrEventClosed},
		{"unknown event", newRegistration("missing", "someone"), repository.ErrNotFound},
	}
	for _, tt := range tests {
		if err := store.Admit(ctx, tt.reg); !errors.Is(err, tt.want) {
			t.Fatalf("%s: admit error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestAdmitDuplicateRollsBackIncrement(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	event := createEvent(t, store, 5, model.EventOpen)

	if err := store.Admit(ctx, newRegistration(event.ID, "alice")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	err := store.Admit(ctx, newRegistration(event.ID, "alice"))
	if !errors.Is(err, repository.ErrAlreadyRegistered) {
		t.Fatalf("duplicate admit error = %v, want %v", err, repository.ErrAlreadyRegistered)
	}

	reloaded, err := store.GetByID(ctx, event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if reloaded.CurrentParticipants != 1 {
		t.Fatalf("current_participants = %d, want 1 after rolled back duplicate", reloaded.CurrentParticipants)
	}
}

func TestAdmitConcurrentNeverOverfills(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	const capacity, attempts = 5, 20
	event := createEvent(t, store, capacity, model.EventOpen)

	var wg sync.WaitGroup
	var admitted, full atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Admit(ctx, newRegistration(event.ID, fmt.Sprintf("user-%d", i)))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, repository.ErrEventFull):
				full.Add(1)
			default:
				t.Errorf("unexpected admit error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if admitted.Load() != capacity || full.Load() != attempts-capacity {
		t.Fatalf("admitted=%d full=%d, want %d and %d", admitted.Load(), full.Load(), capacity, attempts-capacity)
	}
	regs, err := store.ListByEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(regs) != capacity {
		t.Fatalf("rows = %d, want %d", len(regs), capacity)
	}
}

func TestListByIdentityNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	first := createEvent(t, store, 3, model.EventOpen)
	second := createEvent(t, store, 3, model.EventOpen)

	older := newRegistration(first.ID, "alice")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	if err := store.Admit(ctx, older); err != nil {
		t.Fatalf("admit older: %v", err)
	}
	if err := store.Admit(ctx, newRegistration(second.ID, "alice")); err != nil {
		t.Fatalf("admit newer: %v", err)
	}

	got, err := store.ListByIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("list by identity: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].EventID != second.ID || got[0].Event == nil || got[0].Event.Title != "Beach cleanup" {
		t.Fatalf("first item = %+v, want newest registration with event summary", got[0])
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	event := createEvent(t, store, 3, model.EventOpen)
	reg := newRegistration(event.ID, "alice")
	if err := store.Admit(ctx, reg); err != nil {
		t.Fatalf("admit: %v", err)
	}

	updated, err := store.UpdateStatus(ctx, reg.ID, model.StatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if updated.Status != model.StatusApproved {
		t.Fatalf("status = %q, want approved", updated.Status)
	}

	if _, err := store.UpdateStatus(ctx, reg.ID, model.StatusRejected); !errors.Is(err, repository.ErrInvalidTransition) {
		t.Fatalf("re-decide error = %v, want %v", err, repository.ErrInvalidTransition)
	}
	if _, err := store.UpdateStatus(ctx, "missing", model.StatusApproved); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing error = %v, want %v", err, repository.ErrNotFound)
	}
	if _, err := store.UpdateStatus(ctx, reg.ID, model.StatusPending); !errors.Is(err, repository.ErrInvalidTransition) {
		t.Fatalf("back to pending error = %v, want %v", err, repository.ErrInvalidTransition)
	}
}
