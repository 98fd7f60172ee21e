package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/metrics"
)

// Step is one action of a Saga. Undo, if set, reverses a completed Do.
// A BestEffort step's failure is logged and never triggers compensation.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Undo       func(ctx context.Context) error
	BestEffort bool
}

// StepError reports which step failed and what compensation did.
type StepError struct {
	Step         string
	Err          error
	Compensation error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Saga runs steps in order and, when a required step fails, runs the Undo of
// every completed step in reverse order.
type Saga struct {
	steps   []Step
	timeout time.Duration
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

func newSaga(timeout time.Duration, m *metrics.Metrics, log *zerolog.Logger, steps ...Step) *Saga {
	return &Saga{steps: steps, timeout: timeout, metrics: m, log: log}
}

// Run executes the saga. Every Do and Undo gets its own timeout derived from ctx.
func (s *Saga) Run(ctx context.Context) error {
	done := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		err := s.call(ctx, step.Do)
		if err == nil {
			done = append(done, step)
			continue
		}
		if step.BestEffort {
			s.log.Warn().Err(err).Str("step", step.Name).Msg("best-effort step failed")
			continue
		}
		return &StepError{Step: step.Name, Err: err, Compensation: s.compensate(ctx, done)}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, done []Step) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}
		err := s.call(ctx, step.Undo)
		s.metrics.ObserveCompensation(step.Name, err)
		if err != nil {
			s.log.Warn().Err(err).Str("step", step.Name).Msg("compensation failed; needs reconciliation")
			errs = append(errs, fmt.Errorf("undo %s: %w", step.Name, err))
			continue
		}
		s.log.Debug().Str("step", step.Name).Msg("compensated")
	}
	return errors.Join(errs...)
}

func (s *Saga) call(ctx context.Context, fn func(context.Context) error) error {
	if s.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}
