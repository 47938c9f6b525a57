package booking

import (
	"math"
	"strings"
	"unicode/utf8"

	"slotbook/internal/model"
	"slotbook/internal/schedule"
)

const (
	MaxZoneLength = 60
	MaxNoteLength = 200
)

// PlaceOrderRequest is the strictly validated input of PlaceOrder.
type PlaceOrderRequest struct {
	Day          string
	Zone         string
	StartMinutes int
	Items        []model.ItemIn
	Note         *string
	// Customer is the caller identity. Nil for anonymous callers.
	Customer *string
}

// placement is a request that passed validation.
type placement struct {
	day    schedule.Day
	window schedule.Window
	zone   string
	start  int
	items  []model.ItemIn // merged, first-seen order
	note   *string
	cust   *string
}

func (p placement) key() model.StopKey {
	return model.StopKey{Day: p.day.String(), Zone: p.zone, StartMinutes: p.start}
}

func (p placement) productIDs() []string {
	ids := make([]string, len(p.items))
	for i, it := range p.items {
		ids[i] = it.ProductID
	}
	return ids
}

// NormalizeZone trims and collapses inner whitespace.
func NormalizeZone(z string) string {
	return strings.Join(strings.Fields(z), " ")
}

func (s *Service) checkDay(raw string) (schedule.Day, error) {
	day, err := schedule.ParseDay(strings.TrimSpace(raw))
	if err != nil {
		return schedule.Day{}, newError(CodeInvalidDay, err, map[string]any{"day": raw}, "day must be a calendar date in YYYY-MM-DD form")
	}
	if err := s.Calendar.Check(day); err != nil {
		return schedule.Day{}, newError(CodeDayNotAllowed, err, map[string]any{
			"day":          day.String(),
			"today":        s.Calendar.Today().String(),
			"maxDaysAhead": s.Calendar.MaxDaysAhead,
		}, "%s cannot be booked; choose a day after today and at most %d days ahead", day, s.Calendar.MaxDaysAhead)
	}
	return day, nil
}

func checkZone(raw string) (string, error) {
	zone := NormalizeZone(raw)
	if zone == "" {
		return "", newError(CodeInvalidZone, nil, nil, "zone is required")
	}
	if utf8.RuneCountInString(zone) > MaxZoneLength {
		return "", newError(CodeInvalidZone, nil, map[string]any{"maxLength": MaxZoneLength}, "zone is longer than %d characters", MaxZoneLength)
	}
	return zone, nil
}

// mergeItems sums quantities per product, keeping first-seen order.
func mergeItems(in []model.ItemIn) ([]model.ItemIn, error) {
	idx := map[string]int{}
	var out []model.ItemIn
	for i, it := range in {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, newError(CodeInvalidItem, nil, map[string]any{"index": i}, "item %d has no productId", i)
		}
		if it.Quantity <= 0 {
			return nil, newError(CodeInvalidItem, nil, map[string]any{"index": i, "productId": id, "quantity": it.Quantity}, "item %d must have a positive quantity", i)
		}
		if j, ok := idx[id]; ok {
			if out[j].Quantity > math.MaxInt-it.Quantity {
				return nil, newError(CodeInvalidItem, nil, map[string]any{"index": i, "productId": id}, "item %d quantity is too large", i)
			}
			out[j].Quantity += it.Quantity
			continue
		}
		idx[id] = len(out)
		out = append(out, model.ItemIn{ProductID: id, Quantity: it.Quantity})
	}
	if len(out) == 0 {
		return nil, newError(CodeEmptyCart, nil, nil, "the order has no items")
	}
	return out, nil
}

func checkNote(note *string) (*string, error) {
	if note == nil {
		return nil, nil
	}
	n := strings.TrimSpace(*note)
	if n == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(n) > MaxNoteLength {
		return nil, newError(CodeNoteTooLong, nil, map[string]any{"maxLength": MaxNoteLength}, "note is longer than %d characters", MaxNoteLength)
	}
	return &n, nil
}

// validate checks day, zone, slot, items and note; none of it touches the store.
func (s *Service) validate(req PlaceOrderRequest) (placement, error) {
	day, err := s.checkDay(req.Day)
	if err != nil {
		return placement{}, err
	}
	zone, err := checkZone(req.Zone)
	if err != nil {
		return placement{}, err
	}
	w := schedule.WindowFor(day)
	if !w.Contains(req.StartMinutes) {
		return placement{}, newError(CodeSlotNotInWindow, nil, map[string]any{
			"startMinutes": req.StartMinutes,
			"windowStart":  w.Start,
			"windowLast":   w.Last(),
			"step":         schedule.SlotStep,
		}, "%d is not a slot of %s (%s to %s every %d minutes)", req.StartMinutes, day, schedule.Clock(w.Start), schedule.Clock(w.Last()), schedule.SlotStep)
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		return placement{}, err
	}
	note, err := checkNote(req.Note)
	if err != nil {
		return placement{}, err
	}
	var cust *string
	if req.Customer != nil && strings.TrimSpace(*req.Customer) != "" {
		c := strings.TrimSpace(*req.Customer)
		cust = &c
	}
	return placement{day: day, window: w, zone: zone, start: req.StartMinutes, items: items, note: note, cust: cust}, nil
}
