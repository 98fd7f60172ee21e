// Package model defines the core domain types for the volunteer registration system.
package model

import (
	"io"
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventOpen      EventStatus = "open"
	EventClosed    EventStatus = "closed"
	EventCompleted EventStatus = "completed"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventOpen, EventClosed, EventCompleted:
		return true
	}
	return false
}

// RegistrationStatus is the moderation state of a registration.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

// Valid reports whether s is a known registration status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether moderation may move a registration from s to next.
// Only pending registrations can be decided; decisions are final.
func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// Event represents a volunteer event with a fixed number of slots.
type Event struct {
	ID                  string      `json:"id"`
	Title               string      `json:"title"`
	Description         string      `json:"description,omitempty"`
	Location            string      `json:"location,omitempty"`
	EventDate           *time.Time  `json:"event_date,omitempty"`
	MaxParticipants     int         `json:"max_participants"`
	CurrentParticipants int         `json:"current_participants"`
	Status              EventStatus `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Remaining returns the number of free slots.
func (e *Event) Remaining() int {
	return e.MaxParticipants - e.CurrentParticipants
}

// IsFull returns true when no slots remain.
func (e *Event) IsFull() bool {
	return e.CurrentParticipants >= e.MaxParticipants
}

// IsOpen returns true when the event accepts registrations.
func (e *Event) IsOpen() bool {
	return e.Status == EventOpen
}

// Accepted gender values, as stored on registrations.
const (
	GenderMale   = "Laki-laki"
	GenderFemale = "Perempuan"
)

// NormalizeGender maps any casing of the stored values, and the English
// "male"/"female", onto GenderMale or GenderFemale. Other input is returned trimmed.
func NormalizeGender(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "laki-laki", "male":
		return GenderMale
	case "perempuan", "female":
		return GenderFemale
	}
	return s
}

// Profile holds the applicant fields submitted with a registration.
type Profile struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	Phone       string `json:"phone" validate:"required,max=32"`
	Address     string `json:"address" validate:"required,max=500"`
	Institution string `json:"institution" validate:"required,max=200"`
	Age         int    `json:"age" validate:"gte=17,lte=120"`
	Gender      string `json:"gender" validate:"required,oneof=Laki-laki Perempuan"`
	Motivation  string `json:"motivation" validate:"required,max=4000"`
}

// Registration represents an identity's application for one event.
type Registration struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	IdentityID   string             `json:"identity_id"`
	Email        string             `json:"email"`
	Profile                         // flattened into the JSON object
	ArtifactPath string             `json:"artifact_path"`
	ArtifactRef  string             `json:"artifact_ref"`
	Status       RegistrationStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// RegistrationWithEvent pairs a registration with a summary of its event.
type RegistrationWithEvent struct {
	Registration
	Event *EventSummary `json:"event,omitempty"`
}

// EventSummary is the subset of event fields shown next to a registration.
type EventSummary struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	EventDate *time.Time  `json:"event_date,omitempty"`
	Location  string      `json:"location,omitempty"`
	Status    EventStatus `json:"status"`
}

// Identity is the authenticated caller as resolved upstream.
type Identity struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
}

// Document is the uploaded identity document.
type Document struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Application is a registration submission before admission.
type Application struct {
	EventID  string
	Profile  Profile
	Document *Document
}

// CreateEventRequest is the payload for seeding a new event.
type CreateEventRequest struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Location        string      `json:"location"`
	EventDate       *time.Time  `json:"event_date"`
	MaxParticipants int         `json:"max_participants"`
	Status          EventStatus `json:"status"`
}

// UpdateStatusRequest is the payload for moderating a registration.
type UpdateStatusRequest struct {
	Status RegistrationStatus `json:"status"`
}

// EventDetailResponse is the event detail view with the caller's registration state.
type EventDetailResponse struct {
	Event            *Event        `json:"event"`
	IsRegistered     bool          `json:"isRegistered"`
	UserRegistration *Registration `json:"userRegistration"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
