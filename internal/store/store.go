package store

import (
	"context"
	"errors"

	"slotbook/internal/model"
)

// Store is the persistence interface used by the booking service and the API server.
type Store interface {
	// InDayTx runs fn as one unit of work scoped to a delivery day. A non-nil
	// error from fn rolls every effect back. ErrConflict means the attempt
	// lost a race and may be retried.
	InDayTx(ctx context.Context, day string, fn func(tx Tx) error) error

	// Route reads
	ListStops(ctx context.Context, day string) ([]model.Stop, error)

	// Travel times
	LoadTravelTimes(ctx context.Context) ([]model.TravelTime, error)
	ReplaceTravelTimes(ctx context.Context, rows []model.TravelTime) (int, error)

	// Catalog
	ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error)
	UpsertProduct(ctx context.Context, p model.Product) (model.Product, error)

	// Orders
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
	SetOrderCompleted(ctx context.Context, id string, completed bool) (model.Order, error)
}

// Tx is the view of the store inside InDayTx.
type Tx interface {
	// Stops returns the day's stops as currently visible.
	Stops(ctx context.Context) ([]model.Stop, error)
	// LockDay takes the exclusive day-wide scope that serializes new-stop
	// creation until the unit of work ends.
	LockDay(ctx context.Context) error
	// Products returns the found products by id.
	Products(ctx context.Context, ids []string) (map[string]model.Product, error)
	// IncrementStop adds one order to an existing stop if it is below its cap.
	// Returns ErrNotFound or ErrStopFull.
	IncrementStop(ctx context.Context, key model.StopKey) (model.Stop, error)
	// CreateStop inserts a stop holding one order. Returns ErrConflict when
	// the key already exists.
	CreateStop(ctx context.Context, key model.StopKey, capacityMax int) (model.Stop, error)
	// DecrementStock subtracts qty if at least qty is available, else ErrInsufficientStock.
	DecrementStock(ctx context.Context, productID string, qty int) error
	InsertOrder(ctx context.Context, o model.Order) error
}

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrStopFull          = errors.New("stop full")
	ErrInsufficientStock = errors.New("insufficient stock")
)
