package admission

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

// PairFinder looks up the registration of one identity for one event.
type PairFinder interface {
	FindByPair(ctx context.Context, eventID, identityID string) (*model.Registration, error)
}

// Guard answers whether an identity already holds a registration for an event.
// It always reads the record store. The storage unique index is what actually
// prevents duplicates; the Guard lets the common case fail before any write.
type Guard struct {
	records PairFinder
}

// NewGuard constructs a Guard over records.
func NewGuard(records PairFinder) *Guard {
	return &Guard{records: records}
}

// Exists reports whether identityID already holds a registration for eventID.
func (g *Guard) Exists(ctx context.Context, eventID, identityID string) (bool, error) {
	if eventID == "" {
		return false, invalid("eventId", errors.New("event id is required"))
	}
	if identityID == "" {
		return false, invalid("identity", errors.New("identity is required"))
	}
	_, err := g.records.FindByPair(ctx, eventID, identityID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, newError(ErrUnavailable, err)
	}
}
