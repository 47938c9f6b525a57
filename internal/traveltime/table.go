// Package traveltime holds the precomputed zone-to-zone travel minutes.
//
// A Table never changes after New returns. The process keeps the current
// table in a Holder; a reload swaps the whole table so a request that took a
// snapshot keeps seeing consistent data.
package traveltime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"slotbook/internal/model"
)

var ErrInvalidRow = errors.New("invalid travel time row")

type pair struct{ from, to string }

// Table is an immutable directed lookup of travel minutes.
type Table struct {
	minutes map[pair]int
	zones   []string
}

// New validates rows and builds a table. Duplicate pairs keep the last row.
func New(rows []model.TravelTime) (*Table, error) {
	t := &Table{minutes: make(map[pair]int, len(rows))}
	seen := map[string]struct{}{}
	for _, r := range rows {
		from, to := strings.TrimSpace(r.FromZone), strings.TrimSpace(r.ToZone)
		if from == "" || to == "" {
			return nil, fmt.Errorf("%w: empty zone in %q -> %q", ErrInvalidRow, r.FromZone, r.ToZone)
		}
		if r.Minutes < 0 {
			return nil, fmt.Errorf("%w: %s -> %s has negative minutes %d", ErrInvalidRow, from, to, r.Minutes)
		}
		if from == to && r.Minutes != 0 {
			return nil, fmt.Errorf("%w: self row %s has %d minutes", ErrInvalidRow, from, r.Minutes)
		}
		t.minutes[pair{from, to}] = r.Minutes
		seen[from] = struct{}{}
		seen[to] = struct{}{}
	}
	for z := range seen {
		if _, ok := t.minutes[pair{z, z}]; !ok {
			return nil, fmt.Errorf("%w: zone %s has no self row", ErrInvalidRow, z)
		}
		t.zones = append(t.zones, z)
	}
	sort.Strings(t.zones)
	return t, nil
}

// Complete returns rows with reverse pairs and zero self rows added where
// missing. Explicit rows always win over derived ones.
func Complete(rows []model.TravelTime) []model.TravelTime {
	have := map[pair]bool{}
	for _, r := range rows {
		have[pair{r.FromZone, r.ToZone}] = true
	}
	out := append([]model.TravelTime(nil), rows...)
	add := func(r model.TravelTime) {
		p := pair{r.FromZone, r.ToZone}
		if !have[p] {
			have[p] = true
			out = append(out, r)
		}
	}
	for _, r := range rows {
		add(model.TravelTime{FromZone: r.ToZone, ToZone: r.FromZone, Minutes: r.Minutes})
		add(model.TravelTime{FromZone: r.FromZone, ToZone: r.FromZone})
		add(model.TravelTime{FromZone: r.ToZone, ToZone: r.ToZone})
	}
	return out
}

// Minutes returns the travel time from one zone to another.
func (t *Table) Minutes(from, to string) (int, bool) {
	if t == nil {
		return 0, false
	}
	m, ok := t.minutes[pair{from, to}]
	return m, ok
}

// Zones lists every zone with a self row, sorted.
func (t *Table) Zones() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.zones...)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.minutes)
}

// Holder publishes the process-wide table.
type Holder struct {
	p atomic.Pointer[Table]
}

func NewHolder(t *Table) *Holder {
	h := &Holder{}
	h.p.Store(t)
	return h
}

// Current returns the snapshot to use for one request.
func (h *Holder) Current() *Table { return h.p.Load() }

// Reload validates rows and swaps them in. On error the old table stays.
func (h *Holder) Reload(rows []model.TravelTime) (*Table, error) {
	t, err := New(rows)
	if err != nil {
		return nil, err
	}
	h.p.Store(t)
	return t, nil
}
