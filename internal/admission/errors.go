package admission

import (
	"errors"
	"strings"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

// Error kinds. Every error returned by the Coordinator, Guard and Ledger
// matches exactly one of these with errors.Is, except ErrCompensationFailed
// which is only ever attached next to a primary kind.
var (
	ErrValidation          = errors.New("invalid registration")
	ErrAlreadyRegistered   = errors.New("already registered for this event")
	ErrEventClosed         = errors.New("event is not open for registration")
	ErrCapacityExceeded    = errors.New("event is full")
	ErrEventNotFound       = errors.New("event not found")
	ErrUnavailable         = errors.New("registration temporarily unavailable")
	ErrArtifactWriteFailed = errors.New("failed to store identity document")
	ErrRecordWriteFailed   = errors.New("failed to save registration")
	ErrCompensationFailed  = errors.New("compensation failed")
)

// Error is a classified admission failure.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error
	// Field names the offending input for ErrValidation.
	Field string
	// Err is the underlying cause, if any.
	Err error
	// Compensation holds failures of compensating actions. It does not change Kind.
	Compensation error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		b.WriteString(" (")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Compensation != nil {
		b.WriteString("; ")
		b.WriteString(ErrCompensationFailed.Error())
		b.WriteString(": ")
		b.WriteString(e.Compensation.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Compensation != nil {
		errs = append(errs, ErrCompensationFailed, e.Compensation)
	}
	return errs
}

func newError(kind error, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func invalid(field string, cause error) *Error {
	return &Error{Kind: ErrValidation, Field: field, Err: cause}
}

// KindOf returns the primary kind of err, or nil if err is not an admission error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// FieldOf returns the offending field of a validation error.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// classifyRecordErr maps a record store failure during the write phase.
func classifyRecordErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return ErrAlreadyRegistered
	case errors.Is(err, repository.ErrEventClosed):
		return ErrEventClosed
	case errors.Is(err, repository.ErrEventFull):
		return ErrCapacityExceeded
	case errors.Is(err, repository.ErrNotFound):
		return ErrEventNotFound
	default:
		return ErrRecordWriteFailed
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch KindOf(err) {
	case nil:
		if err == nil {
			return "admitted"
		}
		return "error"
	case ErrValidation:
		return "invalid"
	case ErrAlreadyRegistered:
		return "duplicate"
	case ErrEventClosed:
		return "closed"
	case ErrCapacityExceeded:
		return "full"
	case ErrEventNotFound:
		return "not_found"
	case ErrUnavailable:
		return "unavailable"
	case ErrArtifactWriteFailed:
		return "artifact_failed"
	default:
		return "record_failed"
	}
}
