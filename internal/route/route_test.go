package route

import (
	"errors"
	"testing"

	"slotbook/internal/model"
	"slotbook/internal/schedule"
	"slotbook/internal/traveltime"
)

const day = "2026-10-20" // Tuesday

func table(t *testing.T) *traveltime.Table {
	t.Helper()
	tbl, err := traveltime.New(traveltime.Complete([]model.TravelTime{
		{FromZone: "Deurne", ToZone: "Merksem", Minutes: 10},
	}))
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func window(t *testing.T) schedule.Window {
	d, err := schedule.ParseDay(day)
	if err != nil {
		t.Fatal(err)
	}
	return schedule.WindowFor(d)
}

func stop(zone string, start, used int) model.Stop {
	return model.Stop{Day: day, Zone: zone, StartMinutes: start, CapacityUsed: used, CapacityMax: model.StopCapacity}
}

func TestAssessEmptyRoute(t *testing.T) {
	r := New(nil)
	a, err := r.Assess(window(t), "Deurne", 1050, table(t))
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != Create || !a.Admissible || a.Earliest != schedule.WindowStart {
		t.Fatalf("assessment = %+v", a)
	}
}

func TestAssessTravelConstraint(t *testing.T) {
	r := New([]model.Stop{stop("Deurne", 1050, 1)})
	tt := table(t)
	a, err := r.Assess(window(t), "Merksem", 1060, tt)
	if err != nil {
		t.Fatal(err)
	}
	if a.Admissible || a.Reason != ReasonTooEarly || a.Earliest != 1075 {
		t.Fatalf("1060: %+v", a)
	}
	a, _ = r.Assess(window(t), "Merksem", 1075, tt)
	if !a.Admissible || a.Kind != Create {
		t.Fatalf("1075: %+v", a)
	}
}

func TestAssessJoinIgnoresTravel(t *testing.T) {
	// An earlier stop stays joinable even though the route has moved on.
	r := New([]model.Stop{stop("Merksem", 1080, 1), stop("Deurne", 1050, 2)})
	a, err := r.Assess(window(t), "Deurne", 1050, table(t))
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != Join || !a.Admissible || a.Remaining != 1 {
		t.Fatalf("assessment = %+v", a)
	}
}

func TestAssessJoinRequiresSameZone(t *testing.T) {
	r := New([]model.Stop{stop("Deurne", 1050, 1)})
	a, err := r.Assess(window(t), "Merksem", 1050, table(t))
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != Create || a.Admissible {
		t.Fatalf("a Merksem order at Deurne's slot must not join it: %+v", a)
	}
}

func TestAssessFullStop(t *testing.T) {
	r := New([]model.Stop{stop("Deurne", 1050, 3)})
	a, _ := r.Assess(window(t), "Deurne", 1050, table(t))
	if a.Admissible || a.Reason != ReasonFull || a.Remaining != 0 {
		t.Fatalf("assessment = %+v", a)
	}
}

func TestAssessMissingTravelTime(t *testing.T) {
	r := New([]model.Stop{stop("Deurne", 1050, 1)})
	_, err := r.Assess(window(t), "Schoten", 1200, table(t))
	if !errors.Is(err, ErrMissingTravelTime) {
		t.Fatalf("err = %v", err)
	}
}

func TestPreview(t *testing.T) {
	r := New([]model.Stop{stop("Deurne", 1050, 2)})
	views, earliest, err := Preview(r, window(t), "Deurne", table(t))
	if err != nil {
		t.Fatal(err)
	}
	if earliest != 1065 || len(views) != 26 {
		t.Fatalf("earliest=%d len=%d", earliest, len(views))
	}
	first := views[0]
	if !first.Joinable || !first.Admissible || first.RemainingCapacity != 1 || first.Label != "17:30" {
		t.Fatalf("first = %+v", first)
	}
	if views[1].StartMinutes != 1065 || !views[1].Admissible || views[1].Joinable || views[1].RemainingCapacity != 3 {
		t.Fatalf("second = %+v", views[1])
	}
	again, _, _ := Preview(r, window(t), "Deurne", table(t))
	for i := range views {
		if views[i].StartMinutes != again[i].StartMinutes || views[i].Admissible != again[i].Admissible {
			t.Fatal("preview is not deterministic")
		}
	}
}

func TestVerify(t *testing.T) {
	tt := table(t)
	ok := []model.Stop{stop("Merksem", 1075, 1), stop("Deurne", 1050, 1)}
	if err := Verify(ok, tt); err != nil {
		t.Fatal(err)
	}
	bad := []model.Stop{stop("Deurne", 1050, 1), stop("Merksem", 1065, 1)}
	if err := Verify(bad, tt); err == nil {
		t.Fatal("unreachable pair accepted")
	}
}
