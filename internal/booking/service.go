// Package booking places orders on a day's single delivery route. A
// placement joins or creates one stop, decrements stock and persists the
// order as one unit of work, retrying when it loses a race.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/model"
	"slotbook/internal/notify"
	"slotbook/internal/route"
	"slotbook/internal/schedule"
	"slotbook/internal/store"
	"slotbook/internal/traveltime"
)

const DefaultMaxAttempts = 3

// Notifier queues a post-commit notification.
type Notifier interface {
	Enqueue(m notify.Message) error
}

type Service struct {
	Store       store.Store
	TravelTimes *traveltime.Holder
	Calendar    *schedule.Calendar
	Ledger      Ledger
	Log         logrus.FieldLogger
	MaxAttempts int

	// Optional collaborators.
	Events       events.Broker
	Notifier     Notifier
	NotifySecret string

	Now   func() time.Time
	NewID func() string
}

func New(st store.Store, tt *traveltime.Holder, cal *schedule.Calendar, log logrus.FieldLogger) *Service {
	return &Service{
		Store:       st,
		TravelTimes: tt,
		Calendar:    cal,
		Ledger:      Ledger{Capacity: model.StopCapacity},
		Log:         log,
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// SlotsResult is the read-only preview of a day for one zone.
type SlotsResult struct {
	Day                     string           `json:"day"`
	Zone                    string           `json:"zone"`
	EarliestNewStartMinutes int              `json:"earliestNewStartMinutes"`
	EarliestNewStartLabel   string           `json:"earliestNewStartLabel"`
	Slots                   []model.SlotView `json:"slots"`
}

// ListSlots assesses every slot of day for zone without side effects.
func (s *Service) ListSlots(ctx context.Context, rawDay, rawZone string) (SlotsResult, error) {
	day, err := s.checkDay(rawDay)
	if err != nil {
		return SlotsResult{}, err
	}
	zone, err := checkZone(rawZone)
	if err != nil {
		return SlotsResult{}, err
	}
	stops, err := s.Store.ListStops(ctx, day.String())
	if err != nil {
		return SlotsResult{}, fmt.Errorf("list slots: %w", err)
	}
	views, earliest, err := route.Preview(route.New(stops), schedule.WindowFor(day), zone, s.TravelTimes.Current())
	if err != nil {
		return SlotsResult{}, feasibilityError(err, model.StopKey{Day: day.String(), Zone: zone})
	}
	return SlotsResult{
		Day:                     day.String(),
		Zone:                    zone,
		EarliestNewStartMinutes: earliest,
		EarliestNewStartLabel:   schedule.Clock(earliest),
		Slots:                   views,
	}, nil
}

// PlaceOrder validates req and places it as one unit of work. A failure
// leaves no trace in the store.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	began := s.Now()
	defer func() { metrics.PlacementDuration.Observe(time.Since(began).Seconds()) }()

	p, err := s.validate(req)
	if err != nil {
		s.record(req, "", route.Kind(0), 0, err)
		return model.Order{}, err
	}
	// one table snapshot for every attempt
	tbl := s.TravelTimes.Current()

	var (
		order model.Order
		stop  model.Stop
		kind  route.Kind
	)
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	attempt := 1
	for ; ; attempt++ {
		err = s.Store.InDayTx(ctx, p.day.String(), func(tx store.Tx) error {
			var e error
			order, stop, kind, e = s.place(ctx, tx, p, tbl)
			return e
		})
		if err == nil || !errors.Is(err, store.ErrConflict) {
			break
		}
		if attempt >= attempts {
			err = newError(CodeConflict, err, map[string]any{"attempts": attempt}, "the slot is busy, please try again")
			break
		}
		metrics.PlacementRetries.Inc()
		s.Log.WithError(err).WithFields(logrus.Fields{"day": p.day.String(), "zone": p.zone, "start": p.start, "attempt": attempt}).Debug("placement conflict, retrying")
	}
	s.record(req, order.ID, kind, attempt, err)
	if err != nil {
		return model.Order{}, err
	}
	s.announce(ctx, order, stop, kind)
	return order, nil
}

// place checks products, reserves capacity, takes stock and inserts the
// order inside one unit of work.
func (s *Service) place(ctx context.Context, tx store.Tx, p placement, tbl route.TravelTimes) (model.Order, model.Stop, route.Kind, error) {
	products, err := tx.Products(ctx, p.productIDs())
	if err != nil {
		return model.Order{}, model.Stop{}, 0, err
	}
	if err := checkProducts(p.items, products); err != nil {
		return model.Order{}, model.Stop{}, 0, err
	}
	total, err := orderTotal(p.items, products)
	if err != nil {
		return model.Order{}, model.Stop{}, 0, err
	}

	key := p.key()
	a, err := assess(ctx, tx, p, tbl)
	if err != nil {
		return model.Order{}, model.Stop{}, 0, err
	}
	if a.Kind == route.Create {
		// New stops are serialized per day: take the day scope, then decide
		// again on the stops now visible.
		if err := tx.LockDay(ctx); err != nil {
			return model.Order{}, model.Stop{}, 0, err
		}
		if a, err = assess(ctx, tx, p, tbl); err != nil {
			return model.Order{}, model.Stop{}, 0, err
		}
	}
	if !a.Admissible {
		return model.Order{}, model.Stop{}, 0, rejection(key, a)
	}

	stop, kind, err := s.Ledger.Reserve(ctx, tx, key, a)
	if err != nil {
		return model.Order{}, model.Stop{}, 0, err
	}

	lines := make([]model.LineItem, 0, len(p.items))
	for _, it := range p.items {
		pr := products[it.ProductID]
		if err := tx.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return model.Order{}, model.Stop{}, 0, stockError(it, pr, err)
		}
		lines = append(lines, model.LineItem{ProductID: it.ProductID, Name: pr.Name, Quantity: it.Quantity, PriceCents: pr.PriceCents})
	}

	order := model.Order{
		ID:           s.NewID(),
		StopID:       stop.ID,
		Day:          key.Day,
		Zone:         key.Zone,
		StartMinutes: key.StartMinutes,
		CustomerID:   p.cust,
		Note:         p.note,
		Items:        lines,
		TotalCents:   total,
		CreatedAt:    s.Now().UTC(),
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return model.Order{}, model.Stop{}, 0, err
	}
	return order, stop, kind, nil
}

func assess(ctx context.Context, tx store.Tx, p placement, tbl route.TravelTimes) (route.Assessment, error) {
	stops, err := tx.Stops(ctx)
	if err != nil {
		return route.Assessment{}, err
	}
	a, err := route.New(stops).Assess(p.window, p.zone, p.start, tbl)
	if err != nil {
		return route.Assessment{}, feasibilityError(err, p.key())
	}
	return a, nil
}

// checkProducts reports every missing, inactive or short product; the code
// is that of the first offender.
// orderTotal sums line prices, rejecting totals that do not fit in int64.
func orderTotal(items []model.ItemIn, products map[string]model.Product) (int64, error) {
	var total int64
	for i, it := range items {
		price := products[it.ProductID].PriceCents
		qty := int64(it.Quantity)
		if price > 0 && qty > (math.MaxInt64-total)/price {
			return 0, newError(CodeInvalidItem, nil, map[string]any{"index": i, "productId": it.ProductID}, "item %d quantity is too large", i)
		}
		total += price * qty
	}
	return total, nil
}

func checkProducts(items []model.ItemIn, products map[string]model.Product) error {
	var first Code
	var problems []map[string]any
	add := func(code Code, d map[string]any) {
		if first == "" {
			first = code
		}
		d["code"] = string(code)
		problems = append(problems, d)
	}
	for _, it := range items {
		pr, ok := products[it.ProductID]
		switch {
		case !ok:
			add(CodeProductNotFound, map[string]any{"productId": it.ProductID})
		case !pr.Active:
			add(CodeProductInactive, map[string]any{"productId": it.ProductID, "name": pr.Name})
		case pr.StockQty < it.Quantity:
			add(CodeInsufficientStock, map[string]any{
				"productId": it.ProductID,
				"name":      pr.Name,
				"requested": it.Quantity,
				"available": max(pr.StockQty, 0),
				"shortfall": it.Quantity - max(pr.StockQty, 0),
			})
		}
	}
	if first == "" {
		return nil
	}
	msg := fmt.Sprintf("product %v cannot be ordered", problems[0]["productId"])
	if len(problems) > 1 {
		msg = fmt.Sprintf("%d products cannot be ordered", len(problems))
	}
	return newError(first, nil, map[string]any{"products": problems}, "%s", msg)
}

func stockError(it model.ItemIn, pr model.Product, err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return newError(CodeInsufficientStock, err, map[string]any{"products": []map[string]any{{
			"code":      string(CodeInsufficientStock),
			"productId": it.ProductID,
			"name":      pr.Name,
			"requested": it.Quantity,
		}}}, "product %s ran out of stock", it.ProductID)
	case errors.Is(err, store.ErrNotFound):
		return newError(CodeProductNotFound, err, map[string]any{"products": []map[string]any{{
			"code":      string(CodeProductNotFound),
			"productId": it.ProductID,
		}}}, "product %s does not exist", it.ProductID)
	}
	return fmt.Errorf("decrement stock %s: %w", it.ProductID, err)
}

func feasibilityError(err error, key model.StopKey) error {
	if errors.Is(err, route.ErrMissingTravelTime) {
		return newError(CodeMissingTravelTime, err, map[string]any{"day": key.Day, "zone": key.Zone}, "travel time reference data is incomplete: %v", err)
	}
	return err
}

func rejection(key model.StopKey, a route.Assessment) error {
	if a.Reason == route.ReasonFull {
		return newError(CodeSlotFull, nil, map[string]any{"remainingCapacity": 0}, "the stop at %s is full", slotLabel(key))
	}
	return newError(CodeSlotTooEarly, nil, map[string]any{
		"earliestStartMinutes": a.Earliest,
		"earliestLabel":        schedule.Clock(a.Earliest),
	}, "the vehicle cannot reach %s by %s; the earliest new stop is at %s", key.Zone, schedule.Clock(key.StartMinutes), schedule.Clock(a.Earliest))
}

func slotLabel(key model.StopKey) string {
	return fmt.Sprintf("%s %s %s", key.Day, key.Zone, schedule.Clock(key.StartMinutes))
}

// record logs and counts one placement outcome.
func (s *Service) record(req PlaceOrderRequest, orderID string, kind route.Kind, attempt int, err error) {
	fields := logrus.Fields{"day": req.Day, "zone": NormalizeZone(req.Zone), "start": req.StartMinutes, "attempt": attempt}
	result, kindLabel := "ok", "none"
	if kind != 0 {
		kindLabel = kind.String()
	}
	if err != nil {
		result = string(CodeOf(err))
		if result == "" {
			result = "error"
		}
		fields["code"] = result
	}
	metrics.Placements.WithLabelValues(result, kindLabel).Inc()
	entry := s.Log.WithFields(fields)
	switch {
	case err == nil:
		entry.WithFields(logrus.Fields{"kind": kindLabel, "order_id": orderID}).Info("order placed")
	case CodeOf(err) == "" || CodeOf(err).Class() == ClassDataIntegrity:
		entry.WithError(err).Error("placement failed")
	default:
		entry.WithError(err).Info("placement rejected")
	}
}

// announce publishes the stop change and queues the order notification.
// Both are best effort; the order is already committed.
func (s *Service) announce(ctx context.Context, o model.Order, stop model.Stop, kind route.Kind) {
	ctx = context.WithoutCancel(ctx)
	if s.Events != nil {
		evt := events.Event{Type: events.TypeStopUpdated, Data: map[string]any{
			"stopId":            stop.ID,
			"zone":              stop.Zone,
			"startMinutes":      stop.StartMinutes,
			"label":             schedule.Clock(stop.StartMinutes),
			"capacityUsed":      stop.CapacityUsed,
			"capacityMax":       stop.CapacityMax,
			"remainingCapacity": stop.Remaining(),
			"created":           kind == route.Create,
		}}
		if err := s.Events.Publish(ctx, o.Day, evt); err != nil {
			s.Log.WithError(err).WithField("day", o.Day).Warn("publish stop event")
		}
	}
	if s.Notifier != nil {
		m, err := notify.NewMessage(notify.TypeOrderPlaced, o, s.NotifySecret, s.Now())
		if err == nil {
			err = s.Notifier.Enqueue(m)
		}
		if err != nil {
			s.Log.WithError(err).WithField("order_id", o.ID).Warn("queue order notification")
		}
	}
	s.Log.WithFields(logrus.Fields{"order_id": o.ID, "stop_id": stop.ID, "capacity_used": stop.CapacityUsed}).Debug("order committed")
}
