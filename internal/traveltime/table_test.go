package traveltime

import (
	"errors"
	"testing"

	"slotbook/internal/model"
)

func TestCompleteAndLookup(t *testing.T) {
	rows := Complete([]model.TravelTime{
		{FromZone: "Deurne", ToZone: "Merksem", Minutes: 10},
		{FromZone: "Merksem", ToZone: "Schoten", Minutes: 12},
	})
	tbl, err := New(rows)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	checks := []struct {
		from, to string
		want     int
	}{
		{"Deurne", "Merksem", 10},
		{"Merksem", "Deurne", 10},
		{"Schoten", "Merksem", 12},
		{"Deurne", "Deurne", 0},
		{"Schoten", "Schoten", 0},
	}
	for _, c := range checks {
		got, ok := tbl.Minutes(c.from, c.to)
		if !ok || got != c.want {
			t.Errorf("%s->%s = %d,%v want %d", c.from, c.to, got, ok, c.want)
		}
	}
	if _, ok := tbl.Minutes("Deurne", "Schoten"); ok {
		t.Error("Deurne->Schoten was never imported")
	}
	if z := tbl.Zones(); len(z) != 3 || z[0] != "Deurne" {
		t.Errorf("zones = %v", z)
	}
}

func TestCompleteKeepsExplicitRows(t *testing.T) {
	rows := Complete([]model.TravelTime{
		{FromZone: "A", ToZone: "B", Minutes: 5},
		{FromZone: "B", ToZone: "A", Minutes: 7},
	})
	tbl, err := New(rows)
	if err != nil {
		t.Fatal(err)
	}
	if m, _ := tbl.Minutes("B", "A"); m != 7 {
		t.Fatalf("B->A = %d, want 7", m)
	}
}

func TestNewRejectsBadRows(t *testing.T) {
	bad := [][]model.TravelTime{
		{{FromZone: "A", ToZone: "B", Minutes: 3}},
		{{FromZone: "A", ToZone: "A", Minutes: 2}},
		{{FromZone: "A", ToZone: "A"}, {FromZone: "A", ToZone: "A", Minutes: -1}},
		{{FromZone: " ", ToZone: "A"}},
	}
	for i, rows := range bad {
		if _, err := New(rows); !errors.Is(err, ErrInvalidRow) {
			t.Errorf("case %d: err = %v", i, err)
		}
	}
}

func TestHolderReloadKeepsOldOnError(t *testing.T) {
	first, _ := New(Complete([]model.TravelTime{{FromZone: "A", ToZone: "B", Minutes: 4}}))
	h := NewHolder(first)
	snap := h.Current()
	if _, err := h.Reload([]model.TravelTime{{FromZone: "A", ToZone: "C", Minutes: 1}}); err == nil {
		t.Fatal("reload without self rows must fail")
	}
	if h.Current() != first {
		t.Fatal("failed reload replaced the table")
	}
	if _, err := h.Reload(Complete([]model.TravelTime{{FromZone: "A", ToZone: "B", Minutes: 9}})); err != nil {
		t.Fatal(err)
	}
	if m, _ := snap.Minutes("A", "B"); m != 4 {
		t.Fatalf("old snapshot changed: %d", m)
	}
	if m, _ := h.Current().Minutes("A", "B"); m != 9 {
		t.Fatalf("new table = %d", m)
	}
}
