package integrations

import (
	"context"
	"fmt"

	"slotbook/internal/model"
	"slotbook/internal/traveltime"
)

// Sink stores a complete travel-time table.
type Sink interface {
	ReplaceTravelTimes(ctx context.Context, rows []model.TravelTime) (int, error)
}

// Import fetches src, completes the rows with reverse and self entries,
// validates them as a table and replaces the sink's contents. Nothing is
// written when validation fails.
func Import(ctx context.Context, src TravelTimeSource, dst Sink) (*traveltime.Table, error) {
	raw, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", src.Name(), err)
	}
	rows := traveltime.Complete(raw)
	tbl, err := traveltime.New(rows)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", src.Name(), err)
	}
	if _, err := dst.ReplaceTravelTimes(ctx, rows); err != nil {
		return nil, fmt.Errorf("import %s: store: %w", src.Name(), err)
	}
	return tbl, nil
}
