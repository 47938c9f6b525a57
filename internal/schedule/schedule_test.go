package schedule

import (
	"errors"
	"testing"
	"time"
)

func mustDay(t *testing.T, s string) Day {
	t.Helper()
	d, err := ParseDay(s)
	if err != nil {
		t.Fatalf("ParseDay(%q): %v", s, err)
	}
	return d
}

func TestWindowRules(t *testing.T) {
	cases := []struct {
		day      string
		weekday  time.Weekday
		lastSlot int
	}{
		{"2026-10-12", time.Monday, 1425},
		{"2026-10-13", time.Tuesday, 1425},
		{"2026-10-16", time.Friday, 1545},
		{"2026-10-17", time.Saturday, 1545},
		{"2026-10-18", time.Sunday, 1425},
	}
	for _, tc := range cases {
		d := mustDay(t, tc.day)
		if d.Weekday() != tc.weekday {
			t.Fatalf("%s: weekday = %v, want %v", tc.day, d.Weekday(), tc.weekday)
		}
		slots := WindowFor(d).List()
		if slots[0] != WindowStart {
			t.Fatalf("%s: first slot = %d", tc.day, slots[0])
		}
		if got := slots[len(slots)-1]; got != tc.lastSlot {
			t.Fatalf("%s: last slot = %d, want %d", tc.day, got, tc.lastSlot)
		}
		for i := 1; i < len(slots); i++ {
			if slots[i]-slots[i-1] != SlotStep {
				t.Fatalf("%s: gap at %d", tc.day, i)
			}
		}
	}
}

func TestTuesdayHasNoLateSlots(t *testing.T) {
	w := WindowFor(mustDay(t, "2026-10-13"))
	for m := range w.Slots() {
		if m >= 1425+SlotStep {
			t.Fatalf("unexpected slot %d", m)
		}
	}
	if w.Contains(1440) || w.Contains(1545) {
		t.Fatal("weekday window must stop at 23:45")
	}
}

func TestFridayContainsLastNightSlot(t *testing.T) {
	w := WindowFor(mustDay(t, "2026-10-16"))
	if !w.Contains(1545) {
		t.Fatal("friday must offer 01:45")
	}
	if w.Contains(1560) || w.Contains(1052) || w.Contains(1035) {
		t.Fatal("off-grid or out-of-window minute accepted")
	}
	if Clock(1545) != "01:45" {
		t.Fatalf("Clock(1545) = %s", Clock(1545))
	}
}

func TestSlotsRestartable(t *testing.T) {
	w := WindowFor(mustDay(t, "2026-10-13"))
	a, b := w.List(), w.List()
	if len(a) != len(b) || len(a) != 26 {
		t.Fatalf("lengths %d %d", len(a), len(b))
	}
	n := 0
	for range w.Slots() {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("early stop: %d", n)
	}
}

func TestClock(t *testing.T) {
	for m, want := range map[int]string{1050: "17:30", 1440: "00:00", 1560: "02:00", 1425: "23:45"} {
		if got := Clock(m); got != want {
			t.Errorf("Clock(%d) = %s, want %s", m, got, want)
		}
	}
}

func TestParseDay(t *testing.T) {
	for _, bad := range []string{"", "2026-2-03", "2026-02-30", "2026-13-01", " 2026-10-13", "20261013"} {
		if _, err := ParseDay(bad); !errors.Is(err, ErrInvalidDay) {
			t.Errorf("ParseDay(%q) err = %v", bad, err)
		}
	}
}

func TestCalendarCheck(t *testing.T) {
	cal, err := NewCalendar("", 21)
	if err != nil {
		t.Fatal(err)
	}
	// 23:30 UTC on the 13th is already the 14th in Brussels.
	cal.Now = func() time.Time { return time.Date(2026, 10, 13, 23, 30, 0, 0, time.UTC) }
	if got := cal.Today().String(); got != "2026-10-14" {
		t.Fatalf("today = %s", got)
	}
	for day, ok := range map[string]bool{
		"2026-10-13": false,
		"2026-10-14": false,
		"2026-10-15": true,
		"2026-11-04": true,
		"2026-11-05": false,
	} {
		err := cal.Check(mustDay(t, day))
		if ok && err != nil {
			t.Errorf("%s: unexpected %v", day, err)
		}
		if !ok && !errors.Is(err, ErrDayNotAllowed) {
			t.Errorf("%s: err = %v", day, err)
		}
	}
	opts := cal.Options()
	if len(opts) != 21 || opts[0].String() != "2026-10-15" {
		t.Fatalf("options = %v", opts)
	}
}
