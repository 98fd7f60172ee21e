// Package admission decides whether a volunteer registration is accepted and
// keeps the identity document and the registration record consistent.
//
// A Register call validates input, consults the Guard and the Ledger, then
// runs the write phase as a Saga: the document is stored first, the record
// store admits the registration second, and a failed admit deletes the
// document again. The capacity invariant is enforced by the record store, never
// by the Ledger's advisory read.
package admission

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/artifact"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/validation"
)

// TxAdmitter is a record store that increments the fill and inserts the
// registration in one transaction.
type TxAdmitter interface {
	Admit(ctx context.Context, reg *model.Registration) error
}

// SlotReserver is a record store with only row-level atomic operations.
// Reserve is a conditional increment; Release undoes it.
type SlotReserver interface {
	Reserve(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
	Insert(ctx context.Context, reg *model.Registration) error
}

// Notifier announces committed registrations.
type Notifier interface {
	RegistrationCreated(ctx context.Context, reg *model.Registration) error
}

const (
	stepArtifact = "artifact"
	stepAdmit    = "admit"
	stepReserve  = "reserve"
	stepInsert   = "insert"
	stepNotify   = "notify"
)

// Defaults applied by NewCoordinator.
const (
	DefaultStepTimeout = 5 * time.Second
	DefaultMinAge      = 17
	DefaultMaxBytes    = 5 << 20
)

// DefaultAllowedTypes are the document content types accepted when none are configured.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// Coordinator runs registration attempts.
type Coordinator struct {
	guard     *Guard
	ledger    *Ledger
	records   PairFinder
	admitter  TxAdmitter
	reserver  SlotReserver
	artifacts artifact.Store
	notifier  Notifier
	metrics   *metrics.Metrics

	stepTimeout  time.Duration
	minAge       int
	maxBytes     int64
	allowedTypes []string
	now          func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records attempt outcomes and compensations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithNotifier adds a best-effort notification step after the registration is committed.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithStepTimeout bounds every storage call. Zero or negative disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.stepTimeout = d }
}

// WithMinAge sets the minimum applicant age. The profile rules never accept less than 17.
func WithMinAge(age int) Option {
	return func(c *Coordinator) { c.minAge = age }
}

// WithDocumentRules sets the maximum document size and accepted content types.
func WithDocumentRules(maxBytes int64, allowedTypes []string) Option {
	return func(c *Coordinator) {
		if maxBytes > 0 {
			c.maxBytes = maxBytes
		}
		if len(allowedTypes) > 0 {
			c.allowedTypes = allowedTypes
		}
	}
}

// WithClock replaces time.Now for registration timestamps and artifact keys.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator builds a Coordinator. records must implement TxAdmitter or
// SlotReserver; a store implementing both is used transactionally.
func NewCoordinator(events EventReader, records PairFinder, artifacts artifact.Store, opts ...Option) (*Coordinator, error) {
	if events == nil || records == nil || artifacts == nil {
		return nil, errors.New("admission: events, records and artifacts are required")
	}
	c := &Coordinator{
		guard:        NewGuard(records),
		ledger:       NewLedger(events),
		records:      records,
		artifacts:    artifacts,
		stepTimeout:  DefaultStepTimeout,
		minAge:       DefaultMinAge,
		maxBytes:     DefaultMaxBytes,
		allowedTypes: DefaultAllowedTypes,
		now:          time.Now,
	}
	switch s := records.(type) {
	case TxAdmitter:
		c.admitter = s
	case SlotReserver:
		c.reserver = s
	default:
		return nil, fmt.Errorf("admission: record store %T supports neither Admit nor Reserve/Insert", records)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register runs one registration attempt for identity.
//
// On success the returned registration is pending and references the stored
// document. On failure the error is an *Error and nothing the attempt wrote
// remains, unless the error also matches ErrCompensationFailed.
func (c *Coordinator) Register(ctx context.Context, identity model.Identity, app model.Application) (reg *model.Registration, err error) {
	start := c.now()
	log := logging.Ctx(ctx).With().Str("event_id", app.EventID).Logger()
	defer func() {
		c.metrics.ObserveAdmission(outcome(err), c.now().Sub(start))
		if err != nil {
			ev := log.Info()
			if k := KindOf(err); k == ErrRecordWriteFailed || k == ErrArtifactWriteFailed || k == ErrUnavailable {
				ev = log.Error()
			}
			ev.Err(err).Msg("registration rejected")
		}
	}()

	app.Profile.Gender = model.NormalizeGender(app.Profile.Gender)
	if err := c.validate(identity, app); err != nil {
		return nil, err
	}

	exists, err := withTimeout(ctx, c.stepTimeout, func(ctx context.Context) (bool, error) {
		return c.guard.Exists(ctx, app.EventID, identity.Subject)
	})
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(ErrAlreadyRegistered, nil)
	}

	snap, err := withTimeout(ctx, c.stepTimeout, func(ctx context.Context) (Snapshot, error) {
		return c.ledger.Check(ctx, app.EventID)
	})
	if err != nil {
		return nil, err
	}
	if !snap.EventIsOpen() {
		return nil, newError(ErrEventClosed, nil)
	}
	if !snap.HasRoom() {
		return nil, newError(ErrCapacityExceeded, nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(ErrUnavailable, err)
	}

	now := c.now().UTC()
	reg = &model.Registration{
		ID:         uuid.NewString(),
		EventID:    app.EventID,
		IdentityID: identity.Subject,
		Email:      identity.Email,
		Profile:    app.Profile,
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	key := artifact.NewKey(identity.Subject, app.EventID, now, app.Document.Filename)

	// The write phase must reach either commit or full compensation even if the caller goes away.
	wctx := context.WithoutCancel(ctx)
	saga := newSaga(c.stepTimeout, c.metrics, &log, c.steps(reg, key, app.Document)...)
	if err := saga.Run(wctx); err != nil {
		return nil, c.writeError(err)
	}

	log.Info().Str("registration_id", reg.ID).Str("artifact", key).Msg("registration admitted")
	return reg, nil
}

func (c *Coordinator) steps(reg *model.Registration, key string, doc *model.Document) []Step {
	steps := []Step{{
		Name: stepArtifact,
		Do: func(ctx context.Context) error {
			n, err := c.artifacts.Put(ctx, key, doc.Body, doc.ContentType)
			if err != nil {
				return err
			}
			c.metrics.AddArtifactBytes(n)
			reg.ArtifactPath = key
			reg.ArtifactRef = c.artifacts.URL(key)
			return nil
		},
		Undo: func(ctx context.Context) error {
			return c.artifacts.Delete(ctx, key)
		},
	}}

	if c.admitter != nil {
		steps = append(steps, Step{
			Name: stepAdmit,
			Do: func(ctx context.Context) error {
				return c.settle(ctx, reg, c.admitter.Admit(ctx, reg))
			},
		})
	} else {
		steps = append(steps,
			Step{
				Name: stepReserve,
				Do:   func(ctx context.Context) error { return c.reserver.Reserve(ctx, reg.EventID) },
				Undo: func(ctx context.Context) error { return c.reserver.Release(ctx, reg.EventID) },
			},
			Step{
				Name: stepInsert,
				Do: func(ctx context.Context) error {
					return c.settle(ctx, reg, c.reserver.Insert(ctx, reg))
				},
			},
		)
	}

	if c.notifier != nil {
		steps = append(steps, Step{
			Name:       stepNotify,
			Do:         func(ctx context.Context) error { return c.notifier.RegistrationCreated(ctx, reg) },
			BestEffort: true,
		})
	}
	return steps
}

// settle resolves an ambiguous record write. A failure that is not a store
// rejection may still have committed, for example when the deadline fires during
// commit. If the row is readable under reg.ID the write counts as done.
func (c *Coordinator) settle(ctx context.Context, reg *model.Registration, err error) error {
	if err == nil || classifyRecordErr(err) != ErrRecordWriteFailed {
		return err
	}
	found, ferr := withTimeout(context.WithoutCancel(ctx), c.stepTimeout, func(ctx context.Context) (*model.Registration, error) {
		return c.records.FindByPair(ctx, reg.EventID, reg.IdentityID)
	})
	if ferr != nil || found.ID != reg.ID {
		return err
	}
	logging.Ctx(ctx).Warn().Err(err).Str("registration_id", reg.ID).Msg("record write reported failure but committed")
	return nil
}

func (c *Coordinator) writeError(err error) error {
	var se *StepError
	if !errors.As(err, &se) {
		return newError(ErrRecordWriteFailed, err)
	}
	kind := ErrArtifactWriteFailed
	if se.Step != stepArtifact {
		kind = classifyRecordErr(se.Err)
	}
	return &Error{Kind: kind, Err: se.Err, Compensation: se.Compensation}
}

func (c *Coordinator) validate(identity model.Identity, app model.Application) error {
	if strings.TrimSpace(identity.Subject) == "" {
		return invalid("identity", errors.New("identity is required"))
	}
	if strings.TrimSpace(app.EventID) == "" {
		return invalid("eventId", errors.New("event id is required"))
	}
	if app.Profile.Age < c.minAge {
		return invalid("age", fmt.Errorf("must be at least %d", c.minAge))
	}
	if err := validation.Struct(app.Profile); err != nil {
		var fe *validation.FieldError
		if errors.As(err, &fe) {
			return invalid(fe.Field, err)
		}
		return invalid("", err)
	}

	doc := app.Document
	switch {
	case doc == nil || doc.Body == nil || doc.Size <= 0:
		return invalid("idCard", errors.New("identity document is required"))
	case doc.Size > c.maxBytes:
		return invalid("idCard", fmt.Errorf("identity document exceeds %d bytes", c.maxBytes))
	case !slices.Contains(c.allowedTypes, baseContentType(doc.ContentType)):
		return invalid("idCard", fmt.Errorf("content type %q is not accepted", doc.ContentType))
	}
	return nil
}

func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
