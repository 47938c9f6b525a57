// Package schedule holds the slot catalog and the local delivery calendar.
package schedule

import (
	"fmt"
	"iter"
)

const (
	// WindowStart is 17:30, the first start minute of every day.
	WindowStart = 17*60 + 30
	// WeekdayEnd closes the window at midnight.
	WeekdayEnd = 24 * 60
	// WeekendEnd closes Friday and Saturday nights at 02:00 the next day,
	// kept as 26:00 so minutes stay monotonic within the day.
	WeekendEnd = 26 * 60
	// SlotStep is the spacing between start minutes.
	SlotStep = 15
	// ServiceMinutes is the time the vehicle spends at a stop.
	ServiceMinutes = 15
)

// Window is the span of start minutes offered for a day.
type Window struct {
	Start int
	End   int
}

// WindowFor returns the weekday-dependent window of day.
func WindowFor(day Day) Window {
	if day.IsWeekendNight() {
		return Window{Start: WindowStart, End: WeekendEnd}
	}
	return Window{Start: WindowStart, End: WeekdayEnd}
}

// Last is the final start minute; a slot plus one service duration still fits.
func (w Window) Last() int { return w.End - SlotStep }

// Slots yields the start minutes in ascending order. The sequence can be
// ranged over any number of times.
func (w Window) Slots() iter.Seq[int] {
	return func(yield func(int) bool) {
		for t := w.Start; t <= w.Last(); t += SlotStep {
			if !yield(t) {
				return
			}
		}
	}
}

// List collects Slots into a slice.
func (w Window) List() []int {
	out := make([]int, 0, (w.End-w.Start)/SlotStep)
	for t := range w.Slots() {
		out = append(out, t)
	}
	return out
}

// Contains reports whether m is one of the window's slots.
func (w Window) Contains(m int) bool {
	return m >= w.Start && m <= w.Last() && (m-w.Start)%SlotStep == 0
}

// Clock renders a minute value as HH:MM on a 24h clock; 1560 renders as 02:00.
func Clock(m int) string {
	m = ((m % WeekdayEnd) + WeekdayEnd) % WeekdayEnd
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
