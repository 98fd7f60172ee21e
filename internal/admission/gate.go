package admission

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository"
)

// Status is an identity's registration state for one event.
type Status struct {
	IsRegistered bool
	Registration *model.Registration
}

// Gate reads registration state straight from the record store, so a
// successful Register is visible to the very next Lookup.
type Gate struct {
	records PairFinder
}

// NewGate constructs a Gate over records.
func NewGate(records PairFinder) *Gate {
	return &Gate{records: records}
}

// Lookup returns the registration status of identityID for eventID.
// Empty ids and missing rows both report not registered.
func (g *Gate) Lookup(ctx context.Context, eventID, identityID string) (Status, error) {
	if eventID == "" || identityID == "" {
		return Status{}, nil
	}
	reg, err := g.records.FindByPair(ctx, eventID, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Status{}, nil
		}
		return Status{}, newError(ErrUnavailable, err)
	}
	return Status{IsRegistered: true, Registration: reg}, nil
}
