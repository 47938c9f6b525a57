package schedule

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// DefaultLocation is the civil calendar every day and weekday is evaluated in.
const DefaultLocation = "Europe/Brussels"

// DefaultMaxDaysAhead is the look-ahead horizon for placing orders.
const DefaultMaxDaysAhead = 21

const dayLayout = "2006-01-02"

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrDayNotAllowed = errors.New("day not allowed")
)

// Day is a civil calendar date without time or zone.
type Day struct {
	t time.Time // noon UTC of the date
}

// ParseDay accepts YYYY-MM-DD naming a real calendar date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil || len(s) != len(dayLayout) {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return Day{t: t.Add(12 * time.Hour)}, nil
}

// DayOf returns the civil date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{t: time.Date(y, m, d, 12, 0, 0, 0, time.UTC)}
}

func (d Day) String() string { return d.t.Format(dayLayout) }

func (d Day) IsZero() bool { return d.t.IsZero() }

func (d Day) Weekday() time.Weekday { return d.t.Weekday() }

// IsWeekendNight reports Friday and Saturday, whose windows run past midnight.
func (d Day) IsWeekendNight() bool {
	wd := d.Weekday()
	return wd == time.Friday || wd == time.Saturday
}

func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// DaysSince returns the number of calendar days from o to d.
func (d Day) DaysSince(o Day) int {
	return int(d.t.Sub(o.t).Round(time.Hour).Hours() / 24)
}

// Calendar answers "which days can be booked" in a fixed local calendar.
type Calendar struct {
	Location     *time.Location
	Now          func() time.Time
	MaxDaysAhead int
}

// NewCalendar loads the named zone; an empty name uses DefaultLocation.
func NewCalendar(zone string, maxDaysAhead int) (*Calendar, error) {
	if zone == "" {
		zone = DefaultLocation
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("calendar: load location %q: %w", zone, err)
	}
	if maxDaysAhead <= 0 {
		maxDaysAhead = DefaultMaxDaysAhead
	}
	return &Calendar{Location: loc, Now: time.Now, MaxDaysAhead: maxDaysAhead}, nil
}

func (c *Calendar) Today() Day { return DayOf(c.Now(), c.Location) }

// Check rejects today, past days and days beyond the horizon.
func (c *Calendar) Check(day Day) error {
	diff := day.DaysSince(c.Today())
	switch {
	case diff < 1:
		return fmt.Errorf("%w: %s is not after today", ErrDayNotAllowed, day)
	case diff > c.MaxDaysAhead:
		return fmt.Errorf("%w: %s is more than %d days ahead", ErrDayNotAllowed, day, c.MaxDaysAhead)
	}
	return nil
}

// Options lists the bookable days, tomorrow first.
func (c *Calendar) Options() []Day {
	today := c.Today()
	out := make([]Day, 0, c.MaxDaysAhead)
	for i := 1; i <= c.MaxDaysAhead; i++ {
		out = append(out, today.AddDays(i))
	}
	return out
}
