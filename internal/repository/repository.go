// Package repository implements the PostgreSQL record store for events and
// registrations. It uses pgx directly (no ORM).
//
// The sentinel errors declared here are shared by every record store backend
// (see the sqlite and memory subpackages) so callers can translate them the
// same way regardless of storage.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is fully booked")

// ErrEventClosed is returned when an event does not accept registrations.
var ErrEventClosed = errors.New("event is not open for registration")

// ErrAlreadyRegistered is returned when the same identity registers twice for one event.
var ErrAlreadyRegistered = errors.New("identity already registered for this event")

// ErrInvalidTransition is returned when a moderation decision breaks the lifecycle.
var ErrInvalidTransition = errors.New("invalid registration status transition")

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// ClassifyFull decides why a conditional capacity increment touched no row.
// Shared by the SQL backends, which re-read the event inside the same transaction.
func ClassifyFull(status model.EventStatus) error {
	if status != model.EventOpen {
		return ErrEventClosed
	}
	// Open with room on re-read means a slot was released after the UPDATE
	// was evaluated; report full rather than retry inside the transaction.
	return ErrEventFull
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, description, location, event_date, max_participants,
	current_participants, status, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	var status string
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.EventDate,
		&e.MaxParticipants, &e.CurrentParticipants, &status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = model.EventStatus(status)
	return &e, nil
}

// Create inserts a new event and returns it with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
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

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)`,
		event.ID, event.Title, event.Description, event.Location, event.EventDate,
		event.MaxParticipants, string(event.Status), event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// List returns events with the given status ordered by event date, undated last.
func (r *EventRepository) List(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE status = $1
		 ORDER BY event_date ASC NULLS LAST, created_at ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrNotFound. This is the capacity ledger's read.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, event_id, identity_id, email, full_name, phone, address,
	institution, age, gender, motivation, artifact_path, artifact_ref, status, created_at, updated_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	var status string
	err := row.Scan(&reg.ID, &reg.EventID, &reg.IdentityID, &reg.Email, &reg.FullName,
		&reg.Phone, &reg.Address, &reg.Institution, &reg.Age, &reg.Gender, &reg.Motivation,
		&reg.ArtifactPath, &reg.ArtifactRef, &status, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	reg.Status = model.RegistrationStatus(status)
	return &reg, nil
}

// Admit increments the event's fill and inserts the registration in one transaction.
//
// The capacity check and the increment are a single conditional UPDATE, so two
// concurrent admissions can never both observe the last free slot: the second
// UPDATE blocks on the row lock taken by the first and re-evaluates its WHERE
// clause after the first commits. The INSERT runs in the same transaction, so a
// unique violation on (event_id, identity_id) rolls the increment back with it.
func (r *RegistrationRepository) Admit(ctx context.Context, reg *model.Registration) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE events
		 SET current_participants = current_participants + 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'open' AND current_participants < max_participants`,
		reg.EventID,
	)
	if err != nil {
		return fmt.Errorf("increment current_participants: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err = tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1`, reg.EventID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = ErrNotFound
				return err
			}
			return fmt.Errorf("read event after failed increment: %w", err)
		}
		err = ClassifyFull(model.EventStatus(status))
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		reg.ID, reg.EventID, reg.IdentityID, reg.Email, reg.FullName, reg.Phone, reg.Address,
		reg.Institution, reg.Age, reg.Gender, reg.Motivation, reg.ArtifactPath, reg.ArtifactRef,
		string(reg.Status), reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrAlreadyRegistered
			return err
		}
		return fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindByPair returns the registration for (eventID, identityID) or ErrNotFound.
func (r *RegistrationRepository) FindByPair(ctx context.Context, eventID, identityID string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations WHERE event_id = $1 AND identity_id = $2`,
		eventID, identityID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

// ListByEvent returns all registrations for a given event, oldest first.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// ListByIdentity returns an identity's registrations with their event summaries, newest first.
func (r *RegistrationRepository) ListByIdentity(ctx context.Context, identityID string) ([]model.RegistrationWithEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.event_id, r.identity_id, r.email, r.full_name, r.phone, r.address,
		        r.institution, r.age, r.gender, r.motivation, r.artifact_path, r.artifact_ref,
		        r.status, r.created_at, r.updated_at, e.id, e.title, e.event_date, e.location, e.status
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.identity_id = $1
		 ORDER BY r.created_at DESC`,
		identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by identity: %w", err)
	}
	defer rows.Close()

	var out []model.RegistrationWithEvent
	for rows.Next() {
		var item model.RegistrationWithEvent
		var regStatus, eventStatus string
		ev := &model.EventSummary{}
		reg := &item.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.IdentityID, &reg.Email, &reg.FullName,
			&reg.Phone, &reg.Address, &reg.Institution, &reg.Age, &reg.Gender, &reg.Motivation,
			&reg.ArtifactPath, &reg.ArtifactRef, &regStatus, &reg.CreatedAt, &reg.UpdatedAt,
			&ev.ID, &ev.Title, &ev.EventDate, &ev.Location, &eventStatus); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.Status = model.RegistrationStatus(regStatus)
		ev.Status = model.EventStatus(eventStatus)
		item.Event = ev
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateStatus applies a moderation decision. Only pending registrations can change.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error) {
	if !model.StatusPending.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`UPDATE registrations SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+registrationColumns,
		id, string(status),
	))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update registration status: %w", err)
	}
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check registration: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrInvalidTransition
}

// Ping checks database connectivity for health checks.
func (r *RegistrationRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
