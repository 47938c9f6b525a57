package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"slotbook/internal/metrics"
	"slotbook/internal/model"
	"slotbook/internal/schedule"
	"slotbook/internal/store"
	"slotbook/internal/traveltime"
)

// ErrOrderNotFound is returned by order lookups and updates.
var ErrOrderNotFound = errors.New("order not found")

// DayOption is one selectable delivery day.
type DayOption struct {
	Day     string `json:"day"`
	Weekday string `json:"weekday"`
	// LastSlot is the clock label of the day's last start time.
	LastSlot string `json:"lastSlot"`
	Extended bool   `json:"extended"`
}

func (s *Service) Days() []DayOption {
	days := s.Calendar.Options()
	out := make([]DayOption, 0, len(days))
	for _, d := range days {
		w := schedule.WindowFor(d)
		out = append(out, DayOption{Day: d.String(), Weekday: d.Weekday().String(), LastSlot: schedule.Clock(w.Last()), Extended: d.IsWeekendNight()})
	}
	return out
}

// Zones lists the zones known to the active travel-time table.
func (s *Service) Zones() []string {
	z := s.TravelTimes.Current().Zones()
	if z == nil {
		z = []string{}
	}
	return z
}

func (s *Service) Products(ctx context.Context) ([]model.Product, error) {
	return s.Store.ListProducts(ctx, true)
}

// UpsertProduct sets the catalog fields the core depends on.
func (s *Service) UpsertProduct(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" || p.PriceCents < 0 || p.StockQty < 0 {
		return model.Product{}, newError(CodeInvalidItem, nil, map[string]any{"productId": p.ID}, "product needs a name and non-negative price and stock")
	}
	return s.Store.UpsertProduct(ctx, p)
}

// ListCustomerOrders returns the caller's orders, newest first.
func (s *Service) ListCustomerOrders(ctx context.Context, customer string, limit int) ([]model.Order, error) {
	customer = strings.TrimSpace(customer)
	if customer == "" {
		return []model.Order{}, nil
	}
	return s.Store.ListOrders(ctx, model.OrderFilter{CustomerID: customer, Limit: limit})
}

// ListOrders returns one day's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, rawDay string) ([]model.Order, error) {
	day, err := schedule.ParseDay(strings.TrimSpace(rawDay))
	if err != nil {
		return nil, newError(CodeInvalidDay, err, map[string]any{"day": rawDay}, "day must be a calendar date in YYYY-MM-DD form")
	}
	return s.Store.ListOrders(ctx, model.OrderFilter{Day: day.String()})
}

// SetCompleted flips the fulfilment flag; nothing else about an order changes.
func (s *Service) SetCompleted(ctx context.Context, orderID string, completed bool) (model.Order, error) {
	o, err := s.Store.SetOrderCompleted(ctx, strings.TrimSpace(orderID), completed)
	if errors.Is(err, store.ErrNotFound) {
		return model.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, err
}

// StopView is a stop on the admin route view.
type StopView struct {
	model.Stop
	Label     string `json:"label"`
	Remaining int    `json:"remainingCapacity"`
	// ArrivalSlack is the minutes between the earliest possible arrival and
	// the stop's start; nil for the first stop.
	ArrivalSlack *int `json:"arrivalSlack"`
}

// ListStops returns the day's route in visiting order.
func (s *Service) ListStops(ctx context.Context, rawDay string) ([]StopView, error) {
	day, err := schedule.ParseDay(strings.TrimSpace(rawDay))
	if err != nil {
		return nil, newError(CodeInvalidDay, err, map[string]any{"day": rawDay}, "day must be a calendar date in YYYY-MM-DD form")
	}
	stops, err := s.Store.ListStops(ctx, day.String())
	if err != nil {
		return nil, err
	}
	tbl := s.TravelTimes.Current()
	out := make([]StopView, 0, len(stops))
	for i, st := range stops {
		v := StopView{Stop: st, Label: schedule.Clock(st.StartMinutes), Remaining: st.Remaining()}
		if i > 0 {
			prev := stops[i-1]
			if travel, ok := tbl.Minutes(prev.Zone, st.Zone); ok {
				slack := st.StartMinutes - (prev.StartMinutes + schedule.ServiceMinutes + travel)
				v.ArrivalSlack = &slack
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// ReloadTravelTimes swaps in the table currently held by the store.
func (s *Service) ReloadTravelTimes(ctx context.Context) (*traveltime.Table, error) {
	rows, err := s.Store.LoadTravelTimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload travel times: %w", err)
	}
	t, err := s.TravelTimes.Reload(rows)
	if err != nil {
		return nil, fmt.Errorf("reload travel times: %w", err)
	}
	metrics.TravelTimeRows.Set(float64(t.Len()))
	s.Log.WithField("rows", t.Len()).Info("travel times reloaded")
	return t, nil
}
