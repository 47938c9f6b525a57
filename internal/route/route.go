// Package route reads a day's stops as one append-only vehicle route and
// decides whether a candidate start time can join or extend it.
package route

import (
	"errors"
	"fmt"
	"sort"

	"slotbook/internal/model"
	"slotbook/internal/schedule"
)

var ErrMissingTravelTime = errors.New("missing travel time")

// TravelTimes is the lookup the checker needs; *traveltime.Table satisfies it.
type TravelTimes interface {
	Minutes(from, to string) (int, bool)
}

type Kind int

const (
	Join Kind = iota + 1
	Create
)

func (k Kind) String() string {
	switch k {
	case Join:
		return "join"
	case Create:
		return "create"
	}
	return "unknown"
}

// Reason explains why a slot is not admissible.
type Reason string

const (
	ReasonFull     Reason = "SLOT_FULL"
	ReasonTooEarly Reason = "SLOT_TOO_EARLY"
)

// Assessment is the checker's verdict for one (zone, start) candidate.
type Assessment struct {
	Kind       Kind
	Admissible bool
	Reason     Reason
	// Stop is the existing stop for Join.
	Stop model.Stop
	// Earliest is the first start a new stop may take, set for Create.
	Earliest  int
	Remaining int
}

// Route is a day's stops in visiting order.
type Route struct {
	stops []model.Stop
}

// New sorts a copy of stops by start minutes.
func New(stops []model.Stop) Route {
	s := append([]model.Stop(nil), stops...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].StartMinutes < s[j].StartMinutes })
	return Route{stops: s}
}

func (r Route) Stops() []model.Stop { return append([]model.Stop(nil), r.stops...) }

func (r Route) Len() int { return len(r.stops) }

// Last is the route-so-far: the stop with the greatest start.
func (r Route) Last() (model.Stop, bool) {
	if len(r.stops) == 0 {
		return model.Stop{}, false
	}
	return r.stops[len(r.stops)-1], true
}

// Find looks a stop up by its full key within the day.
func (r Route) Find(zone string, start int) (model.Stop, bool) {
	for _, s := range r.stops {
		if s.Zone == zone && s.StartMinutes == start {
			return s, true
		}
	}
	return model.Stop{}, false
}

// EarliestNewStart is the first start minute at which a new stop in zone is reachable.
func (r Route) EarliestNewStart(w schedule.Window, zone string, tt TravelTimes) (int, error) {
	last, ok := r.Last()
	if !ok {
		return w.Start, nil
	}
	travel, ok := tt.Minutes(last.Zone, zone)
	if !ok {
		return 0, fmt.Errorf("%w: %s -> %s", ErrMissingTravelTime, last.Zone, zone)
	}
	return last.StartMinutes + schedule.ServiceMinutes + travel, nil
}

// Assess classifies a candidate as join or create and decides admissibility.
// An existing stop only needs spare capacity; the vehicle is already committed to it.
func (r Route) Assess(w schedule.Window, zone string, start int, tt TravelTimes) (Assessment, error) {
	if s, ok := r.Find(zone, start); ok {
		a := Assessment{Kind: Join, Stop: s, Remaining: s.Remaining()}
		a.Admissible = s.CapacityUsed < s.CapacityMax
		if !a.Admissible {
			a.Reason = ReasonFull
		}
		return a, nil
	}
	earliest, err := r.EarliestNewStart(w, zone, tt)
	if err != nil {
		return Assessment{}, err
	}
	a := Assessment{Kind: Create, Earliest: earliest, Remaining: model.StopCapacity}
	a.Admissible = start >= earliest
	if !a.Admissible {
		a.Reason = ReasonTooEarly
	}
	return a, nil
}

// Preview assesses every slot of the window for zone.
func Preview(r Route, w schedule.Window, zone string, tt TravelTimes) ([]model.SlotView, int, error) {
	earliest, err := r.EarliestNewStart(w, zone, tt)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.SlotView, 0, len(w.List()))
	for t := range w.Slots() {
		a, err := r.Assess(w, zone, t, tt)
		if err != nil {
			return nil, 0, err
		}
		v := model.SlotView{
			StartMinutes:      t,
			Label:             schedule.Clock(t),
			Joinable:          a.Kind == Join,
			Admissible:        a.Admissible,
			RemainingCapacity: a.Remaining,
		}
		if a.Reason != "" {
			reason := string(a.Reason)
			v.Reason = &reason
		}
		out = append(out, v)
	}
	return out, earliest, nil
}

// Verify checks that consecutive stops leave room for service plus travel.
func Verify(stops []model.Stop, tt TravelTimes) error {
	r := New(stops)
	for i := 1; i < len(r.stops); i++ {
		prev, next := r.stops[i-1], r.stops[i]
		travel, ok := tt.Minutes(prev.Zone, next.Zone)
		if !ok {
			return fmt.Errorf("%w: %s -> %s", ErrMissingTravelTime, prev.Zone, next.Zone)
		}
		if next.StartMinutes < prev.StartMinutes+schedule.ServiceMinutes+travel {
			return fmt.Errorf("route: stop %s@%d unreachable after %s@%d", next.Zone, next.StartMinutes, prev.Zone, prev.StartMinutes)
		}
	}
	return nil
}
