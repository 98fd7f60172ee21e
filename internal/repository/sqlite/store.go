// Package sqlite provides an embedded SQLite record store for events and
// registrations, with the same admission semantics as the PostgreSQL store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

// Store persists events and registrations in SQLite.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens (creating if needed) a SQLite store at path and applies migrations.
//
// Transactions begin IMMEDIATE so a writer takes the database lock up front, and
// the pool holds a single connection: SQLite serialises writers anyway and this
// keeps busy errors out of the admission path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := clean + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database handle for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const eventColumns = `id, title, description, location, event_date, max_participants,
	current_participants, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var status string
	var date sql.NullInt64
	var created, updated int64
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &date,
		&e.MaxParticipants, &e.CurrentParticipants, &status, &created, &updated); err != nil {
		return nil, err
	}
	if date.Valid {
		d := fromMillis(date.Int64)
		e.EventDate = &d
	}
	e.Status = model.EventStatus(status)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}

// Create inserts a new event.
func (s *Store) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
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
	var date sql.NullInt64
	if event.EventDate != nil {
		date = sql.NullInt64{Int64: toMillis(*event.EventDate), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		event.ID, event.Title, event.Description, event.Location, date,
		event.MaxParticipants, string(event.Status), toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// List returns events with the given status ordered by event date, undated last.
func (s *Store) List(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE status = ?
		 ORDER BY event_date IS NULL, event_date ASC, created_at ASC`,
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

// GetByID returns a single event or repository.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

const registrationColumns = `id, event_id, identity_id, email, full_name, phone, address,
	institution, age, gender, motivation, artifact_path, artifact_ref, status, created_at, updated_at`

func scanRegistration(row rowScanner, extra ...any) (*model.Registration, error) {
	var reg model.Registration
	var status string
	var created, updated int64
	dest := []any{&reg.ID, &reg.EventID, &reg.IdentityID, &reg.Email, &reg.FullName,
		&reg.Phone, &reg.Address, &reg.Institution, &reg.Age, &reg.Gender, &reg.Motivation,
		&reg.ArtifactPath, &reg.ArtifactRef, &status, &created, &updated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	reg.Status = model.RegistrationStatus(status)
	reg.CreatedAt = fromMillis(created)
	reg.UpdatedAt = fromMillis(updated)
	return &reg, nil
}

// Admit increments the event's fill and inserts the registration in one transaction.
// See repository.RegistrationRepository.Admit for the semantics.
func (s *Store) Admit(ctx context.Context, reg *model.Registration) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := toMillis(time.Now())
	res, err := tx.ExecContext(ctx,
		`UPDATE events
		 SET current_participants = current_participants + 1, updated_at = ?
		 WHERE id = ? AND status = 'open' AND current_participants < max_participants`,
		now, reg.EventID,
	)
	if err != nil {
		return fmt.Errorf("increment current_participants: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment current_participants: %w", err)
	}
	if affected == 0 {
		var status string
		err = tx.QueryRowContext(ctx, `SELECT status FROM events WHERE id = ?`, reg.EventID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = repository.ErrNotFound
				return err
			}
			return fmt.Errorf("read event after failed increment: %w", err)
		}
		err = repository.ClassifyFull(model.EventStatus(status))
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.ID, reg.EventID, reg.IdentityID, reg.Email, reg.FullName, reg.Phone, reg.Address,
		reg.Institution, reg.Age, reg.Gender, reg.Motivation, reg.ArtifactPath, reg.ArtifactRef,
		string(reg.Status), toMillis(reg.CreatedAt), toMillis(reg.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = repository.ErrAlreadyRegistered
			return err
		}
		return fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindByPair returns the registration for (eventID, identityID) or repository.ErrNotFound.
func (s *Store) FindByPair(ctx context.Context, eventID, identityID string) (*model.Registration, error) {
	reg, err := scanRegistration(s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = ? AND identity_id = ?`,
		eventID, identityID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

// ListByEvent returns all registrations for an event, oldest first.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = ? ORDER BY created_at ASC`,
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

// ListByIdentity returns an identity's registrations with event summaries, newest first.
func (s *Store) ListByIdentity(ctx context.Context, identityID string) ([]model.RegistrationWithEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.event_id, r.identity_id, r.email, r.full_name, r.phone, r.address,
		        r.institution, r.age, r.gender, r.motivation, r.artifact_path, r.artifact_ref,
		        r.status, r.created_at, r.updated_at,
		        e.id, e.title, e.event_date, e.location, e.status
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.identity_id = ?
		 ORDER BY r.created_at DESC`,
		identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by identity: %w", err)
	}
	defer rows.Close()

	var out []model.RegistrationWithEvent
	for rows.Next() {
		ev := &model.EventSummary{}
		var date sql.NullInt64
		var eventStatus string
		reg, err := scanRegistration(rows, &ev.ID, &ev.Title, &date, &ev.Location, &eventStatus)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		if date.Valid {
			d := fromMillis(date.Int64)
			ev.EventDate = &d
		}
		ev.Status = model.EventStatus(eventStatus)
		out = append(out, model.RegistrationWithEvent{Registration: *reg, Event: ev})
	}
	return out, rows.Err()
}

// UpdateStatus applies a moderation decision. Only pending registrations can change.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error) {
	if !model.StatusPending.CanTransitionTo(status) {
		return nil, repository.ErrInvalidTransition
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		string(status), toMillis(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update registration status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update registration status: %w", err)
	}

	reg, err := scanRegistration(s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if affected == 0 {
		return nil, repository.ErrInvalidTransition
	}
	return reg, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
