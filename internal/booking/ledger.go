package booking

import (
	"context"
	"errors"
	"fmt"

	"slotbook/internal/model"
	"slotbook/internal/route"
	"slotbook/internal/store"
)

// Ledger reserves one unit of stop capacity inside a unit of work.
type Ledger struct {
	Capacity int
}

// Reserve joins the assessed stop or creates it. A create that finds the key
// already taken falls back to joining the stop that won.
func (l Ledger) Reserve(ctx context.Context, tx store.Tx, key model.StopKey, a route.Assessment) (model.Stop, route.Kind, error) {
	if a.Kind == route.Create {
		s, err := tx.CreateStop(ctx, key, l.capacity())
		if err == nil {
			return s, route.Create, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Stop{}, 0, fmt.Errorf("reserve: %w", err)
		}
	}
	s, err := tx.IncrementStop(ctx, key)
	switch {
	case err == nil:
		return s, route.Join, nil
	case errors.Is(err, store.ErrStopFull):
		return model.Stop{}, route.Join, newError(CodeSlotFull, err, map[string]any{"remainingCapacity": 0}, "the stop at %s is full", slotLabel(key))
	case errors.Is(err, store.ErrNotFound):
		// the stop seen by the assessment is gone from this unit of work's
		// view; start over
		return model.Stop{}, 0, fmt.Errorf("reserve %s: %w", slotLabel(key), store.ErrConflict)
	default:
		return model.Stop{}, 0, fmt.Errorf("reserve: %w", err)
	}
}

func (l Ledger) capacity() int {
	if l.Capacity > 0 {
		return l.Capacity
	}
	return model.StopCapacity
}
