//go:build postgres_integration

package booking

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"slotbook/internal/logging"
	"slotbook/internal/model"
	"slotbook/internal/route"
	"slotbook/internal/schedule"
	"slotbook/internal/store"
	"slotbook/internal/traveltime"
)

// These tests truncate the booking tables; point DATABASE_URL at a
// throwaway database.

type pgEnv struct {
	svc *Service
	pg  *store.Postgres
	tt  *traveltime.Holder
}

func newPostgresEnv(t *testing.T) pgEnv {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx := context.Background()
	pg, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Close() })
	if err := pg.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE orders, delivery_stops, products, travel_times`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	_ = db.Close()

	for _, p := range []model.Product{
		{ID: "pils", Name: "Pils", PriceCents: 250, StockQty: 100, Active: true},
		{ID: "chips", Name: "Chips", PriceCents: 199, StockQty: 1, Active: true},
	} {
		if _, err := pg.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	rows := traveltime.Complete([]model.TravelTime{
		{FromZone: "Deurne", ToZone: "Merksem", Minutes: 10},
		{FromZone: "Deurne", ToZone: "Schoten", Minutes: 20},
		{FromZone: "Merksem", ToZone: "Schoten", Minutes: 15},
	})
	if _, err := pg.ReplaceTravelTimes(ctx, rows); err != nil {
		t.Fatal(err)
	}
	tbl, err := traveltime.New(rows)
	if err != nil {
		t.Fatal(err)
	}
	cal, err := schedule.NewCalendar("", 21)
	if err != nil {
		t.Fatal(err)
	}
	cal.Now = func() time.Time { return now }
	holder := traveltime.NewHolder(tbl)
	svc := New(pg, holder, cal, logging.Discard())
	svc.Now = func() time.Time { return now }
	svc.MaxAttempts = 10
	return pgEnv{svc: svc, pg: pg, tt: holder}
}

func (e pgEnv) stock(t *testing.T, id string) int {
	t.Helper()
	ps, err := e.pg.ListProducts(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range ps {
		if p.ID == id {
			return p.StockQty
		}
	}
	t.Fatalf("product %s not found", id)
	return 0
}

func (e pgEnv) stops(t *testing.T) []model.Stop {
	t.Helper()
	stops, err := e.pg.ListStops(context.Background(), tuesday)
	if err != nil {
		t.Fatal(err)
	}
	return stops
}

func (e pgEnv) orders(t *testing.T) []model.Order {
	t.Helper()
	orders, err := e.pg.ListOrders(context.Background(), model.OrderFilter{Day: tuesday})
	if err != nil {
		t.Fatal(err)
	}
	return orders
}

func TestPostgresFillStopThenSlotFull(t *testing.T) {
	e := newPostgresEnv(t)
	ctx := context.Background()
	var stopID string
	for i := 0; i < model.StopCapacity; i++ {
		o, err := e.svc.PlaceOrder(ctx, req(tuesday, "Deurne", 1050))
		if err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
		if stopID == "" {
			stopID = o.StopID
		} else if o.StopID != stopID {
			t.Fatalf("order %d on stop %s, want %s", i, o.StopID, stopID)
		}
	}
	if _, err := e.svc.PlaceOrder(ctx, req(tuesday, "Deurne", 1050)); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("fourth: %v", err)
	}
	stops := e.stops(t)
	if len(stops) != 1 || stops[0].CapacityUsed != model.StopCapacity {
		t.Fatalf("stops = %+v", stops)
	}
	if n := len(e.orders(t)); n != model.StopCapacity {
		t.Fatalf("orders = %d", n)
	}
	if got := e.stock(t, "pils"); got != 100-model.StopCapacity {
		t.Fatalf("stock = %d", got)
	}
}

func TestPostgresDuplicateCreatesJoinOneStop(t *testing.T) {
	e := newPostgresEnv(t)
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.PlaceOrder(ctx, req(tuesday, "Merksem", 1080))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotFull), errors.Is(err, ErrConflict):
		default:
			t.Errorf("unexpected: %v", err)
		}
	}
	if ok != model.StopCapacity {
		t.Fatalf("placed %d, want %d", ok, model.StopCapacity)
	}
	stops := e.stops(t)
	if len(stops) != 1 || stops[0].CapacityUsed != model.StopCapacity {
		t.Fatalf("stops = %+v", stops)
	}
}

func TestPostgresConcurrentCreatesKeepRouteRealizable(t *testing.T) {
	e := newPostgresEnv(t)
	ctx := context.Background()
	zones := []string{"Deurne", "Merksem", "Schoten"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	placed := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.svc.PlaceOrder(ctx, req(tuesday, zones[i%len(zones)], 1050+15*(i%8)))
			switch {
			case err == nil:
				mu.Lock()
				placed++
				mu.Unlock()
			case errors.Is(err, ErrSlotFull), errors.Is(err, ErrSlotTooEarly), errors.Is(err, ErrConflict):
			default:
				t.Errorf("placement %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stops := e.stops(t)
	if err := route.Verify(stops, e.tt.Current()); err != nil {
		t.Fatalf("route broken: %v\n%+v", err, stops)
	}
	used := 0
	for _, s := range stops {
		if s.CapacityUsed < 1 || s.CapacityUsed > s.CapacityMax {
			t.Fatalf("capacity out of bounds: %+v", s)
		}
		used += s.CapacityUsed
	}
	if orders := e.orders(t); used != placed || len(orders) != placed {
		t.Fatalf("placed=%d capacity used=%d orders=%d", placed, used, len(orders))
	}
	if got := e.stock(t, "pils"); got != 100-placed {
		t.Fatalf("stock = %d, want %d", got, 100-placed)
	}
}

func TestPostgresOversellTakesNoStock(t *testing.T) {
	e := newPostgresEnv(t)
	ctx := context.Background()

	_, err := e.svc.PlaceOrder(ctx, req(tuesday, "Deurne", 1050,
		model.ItemIn{ProductID: "pils", Quantity: 2},
		model.ItemIn{ProductID: "chips", Quantity: 2},
	))
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v", err)
	}
	if e.stock(t, "pils") != 100 || e.stock(t, "chips") != 1 {
		t.Fatal("partial stock decrement")
	}
	if stops := e.stops(t); len(stops) != 0 {
		t.Fatalf("stop created by failed placement: %+v", stops)
	}

	// Racers for the last bag of chips: one wins, the rest leave pils alone.
	const n = 6
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.PlaceOrder(ctx, req(tuesday, "Deurne", 1050,
				model.ItemIn{ProductID: "pils", Quantity: 1},
				model.ItemIn{ProductID: "chips", Quantity: 1},
			))
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	ok := 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrConflict):
		default:
			t.Errorf("unexpected: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("placed %d, want 1", ok)
	}
	if e.stock(t, "chips") != 0 || e.stock(t, "pils") != 99 {
		t.Fatalf("stock pils=%d chips=%d", e.stock(t, "pils"), e.stock(t, "chips"))
	}
	if stops := e.stops(t); len(stops) != 1 || stops[0].CapacityUsed != 1 {
		t.Fatalf("stops = %+v", stops)
	}
}
