package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
)

// BreakerSettings configures the circuit breaker wrapped around a backend.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker. Zero means 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing. Zero means 30s.
	OpenTimeout time.Duration
}

// Breaker guards a Store with a circuit breaker. While open, every call fails fast with ErrUnavailable.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Store = (*Breaker)(nil)

// NewBreaker wraps next.
func NewBreaker(next Store, s BreakerSettings) *Breaker {
	if s.Name == "" {
		s.Name = "artifact-store"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	threshold := s.ConsecutiveFailures

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller errors say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrExists) ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrInvalidKey) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("artifact store circuit breaker state change")
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State reports the breaker state, e.g. for health output.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, err
}

// Put forwards to the wrapped store while the breaker is closed.
func (b *Breaker) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	v, err := b.execute(func() (any, error) {
		return b.next.Put(ctx, key, body, contentType)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

type opened struct {
	rc          io.ReadCloser
	contentType string
}

// Open forwards to the wrapped store while the breaker is closed.
func (b *Breaker) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	v, err := b.execute(func() (any, error) {
		rc, ct, err := b.next.Open(ctx, key)
		if err != nil {
			return nil, err
		}
		return opened{rc, ct}, nil
	})
	if err != nil {
		return nil, "", err
	}
	o := v.(opened)
	return o.rc, o.contentType, nil
}

// Exists forwards to the wrapped store while the breaker is closed.
func (b *Breaker) Exists(ctx context.Context, key string) (bool, error) {
	v, err := b.execute(func() (any, error) {
		return b.next.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Delete forwards to the wrapped store while the breaker is closed.
func (b *Breaker) Delete(ctx context.Context, key string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}

// URL is computed locally and bypasses the breaker.
func (b *Breaker) URL(key string) string {
	return b.next.URL(key)
}
