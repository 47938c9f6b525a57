package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"slotbook/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
//
// A unit of work stages its writes and applies them at commit after
// re-validating them against committed state, so readers never observe a
// partial placement. New-stop creation is serialized per day by LockDay.
type Memory struct {
	mu       sync.Mutex
	stops    map[model.StopKey]model.Stop
	products map[string]model.Product
	orders   map[string]model.Order
	orderSeq []string // insertion order
	travel   []model.TravelTime
	dayLocks map[string]chan struct{}
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		stops:    map[model.StopKey]model.Stop{},
		products: map[string]model.Product{},
		orders:   map[string]model.Order{},
		dayLocks: map[string]chan struct{}{},
		now:      time.Now,
	}
}

func (m *Memory) dayLock(day string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.dayLocks[day]
	if !ok {
		ch = make(chan struct{}, 1)
		m.dayLocks[day] = ch
	}
	return ch
}

func (m *Memory) InDayTx(ctx context.Context, day string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		m:       m,
		day:     day,
		incs:    map[model.StopKey]int{},
		creates: map[model.StopKey]model.Stop{},
		stock:   map[string]int{},
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (m *Memory) ListStops(ctx context.Context, day string) ([]model.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dayStopsLocked(day), nil
}

func (m *Memory) dayStopsLocked(day string) []model.Stop {
	out := []model.Stop{}
	for k, s := range m.stops {
		if k.Day == day {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinutes < out[j].StartMinutes })
	return out
}

func (m *Memory) LoadTravelTimes(ctx context.Context) ([]model.TravelTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TravelTime(nil), m.travel...), nil
}

func (m *Memory) ReplaceTravelTimes(ctx context.Context, rows []model.TravelTime) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.travel = append([]model.TravelTime(nil), rows...)
	return len(rows), nil
}

func (m *Memory) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Product{}
	for _, p := range m.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpsertProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return p, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	// newest first
	for i := len(m.orderSeq) - 1; i >= 0; i-- {
		o := m.orders[m.orderSeq[i]]
		if f.Day != "" && o.Day != f.Day {
			continue
		}
		if f.CustomerID != "" && (o.CustomerID == nil || *o.CustomerID != f.CustomerID) {
			continue
		}
		out = append(out, o)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) SetOrderCompleted(ctx context.Context, id string, completed bool) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	o.Completed = completed
	m.orders[id] = o
	return o, nil
}

// memTx stages writes for one unit of work.
type memTx struct {
	m       *Memory
	day     string
	lock    chan struct{} // held day lock, nil if not taken
	incs    map[model.StopKey]int
	creates map[model.StopKey]model.Stop
	stock   map[string]int // staged decrements
	orders  []model.Order
}

func (t *memTx) LockDay(ctx context.Context) error {
	if t.lock != nil {
		return nil
	}
	ch := t.m.dayLock(t.day)
	select {
	case ch <- struct{}{}:
		t.lock = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memTx) release() {
	if t.lock != nil {
		<-t.lock
		t.lock = nil
	}
}

// viewLocked returns the stop as this transaction sees it.
func (t *memTx) viewLocked(key model.StopKey) (model.Stop, bool) {
	if s, ok := t.creates[key]; ok {
		return s, true
	}
	s, ok := t.m.stops[key]
	if !ok {
		return model.Stop{}, false
	}
	s.CapacityUsed += t.incs[key]
	return s, true
}

func (t *memTx) Stops(ctx context.Context) ([]model.Stop, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	out := t.m.dayStopsLocked(t.day)
	for i := range out {
		out[i].CapacityUsed += t.incs[out[i].Key()]
	}
	for _, s := range t.creates {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinutes < out[j].StartMinutes })
	return out, nil
}

func (t *memTx) Products(ctx context.Context, ids []string) (map[string]model.Product, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	out := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.m.products[id]; ok {
			p.StockQty -= t.stock[id]
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) IncrementStop(ctx context.Context, key model.StopKey) (model.Stop, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	s, ok := t.viewLocked(key)
	if !ok {
		return model.Stop{}, ErrNotFound
	}
	if s.CapacityUsed >= s.CapacityMax {
		return model.Stop{}, ErrStopFull
	}
	s.CapacityUsed++
	if _, created := t.creates[key]; created {
		t.creates[key] = s
	} else {
		t.incs[key]++
	}
	return s, nil
}

func (t *memTx) CreateStop(ctx context.Context, key model.StopKey, capacityMax int) (model.Stop, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.viewLocked(key); ok {
		return model.Stop{}, ErrConflict
	}
	s := model.Stop{
		ID:           uuid.New().String(),
		Day:          key.Day,
		Zone:         key.Zone,
		StartMinutes: key.StartMinutes,
		CapacityUsed: 1,
		CapacityMax:  capacityMax,
		CreatedAt:    t.m.now().UTC(),
	}
	t.creates[key] = s
	return s, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	p, ok := t.m.products[productID]
	if !ok {
		return ErrNotFound
	}
	if p.StockQty-t.stock[productID] < qty {
		return ErrInsufficientStock
	}
	t.stock[productID] += qty
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o model.Order) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s exists", ErrConflict, o.ID)
	}
	t.orders = append(t.orders, o)
	return nil
}

// commit re-validates staged writes against committed state and applies
// them all, or none with ErrConflict.
func (t *memTx) commit() error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range t.creates {
		if _, ok := m.stops[k]; ok {
			return fmt.Errorf("%w: stop %s/%s/%d created concurrently", ErrConflict, k.Day, k.Zone, k.StartMinutes)
		}
	}
	for k, n := range t.incs {
		s, ok := m.stops[k]
		if !ok || s.CapacityUsed+n > s.CapacityMax {
			return fmt.Errorf("%w: stop %s/%s/%d filled concurrently", ErrConflict, k.Day, k.Zone, k.StartMinutes)
		}
	}
	for id, n := range t.stock {
		if p, ok := m.products[id]; !ok || p.StockQty < n {
			return fmt.Errorf("%w: stock of %s changed concurrently", ErrConflict, id)
		}
	}
	for k, s := range t.creates {
		m.stops[k] = s
	}
	for k, n := range t.incs {
		s := m.stops[k]
		s.CapacityUsed += n
		m.stops[k] = s
	}
	for id, n := range t.stock {
		p := m.products[id]
		p.StockQty -= n
		m.products[id] = p
	}
	for _, o := range t.orders {
		m.orders[o.ID] = o
		m.orderSeq = append(m.orderSeq, o.ID)
	}
	return nil
}
