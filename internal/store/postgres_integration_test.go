//go:build postgres_integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"slotbook/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// second run is a no-op
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
	if _, err := p.UpsertProduct(ctx, model.Product{ID: "it-pils", Name: "Pils", PriceCents: 250, StockQty: 5, Active: true}); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}

	key := model.StopKey{Day: "2099-01-06", Zone: "it-zone", StartMinutes: 1050}
	err = p.InDayTx(ctx, key.Day, func(tx Tx) error {
		if err := tx.LockDay(ctx); err != nil {
			return err
		}
		if _, err := tx.CreateStop(ctx, key, model.StopCapacity); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("InDayTx: %v", err)
	}
	stops, err := p.ListStops(ctx, key.Day)
	if err != nil {
		t.Fatalf("ListStops: %v", err)
	}
	for _, s := range stops {
		if s.Key() == key {
			t.Fatalf("rolled back stop is visible: %+v", s)
		}
	}
}

var errRollback = errors.New("rollback")
