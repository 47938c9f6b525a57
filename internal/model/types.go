package model

import "time"

// Capacity a single stop may absorb.
const StopCapacity = 3

// StopKey identifies a stop: one visit of the vehicle to a zone at a start minute on a day.
type StopKey struct {
	Day          string `json:"day"`
	Zone         string `json:"zone"`
	StartMinutes int    `json:"startMinutes"`
}

// Stop is a scheduled vehicle visit with bounded order capacity.
type Stop struct {
	ID           string    `json:"id"`
	Day          string    `json:"day"`
	Zone         string    `json:"zone"`
	StartMinutes int       `json:"startMinutes"`
	CapacityUsed int       `json:"capacityUsed"`
	CapacityMax  int       `json:"capacityMax"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s Stop) Key() StopKey {
	return StopKey{Day: s.Day, Zone: s.Zone, StartMinutes: s.StartMinutes}
}

// Remaining returns the free capacity, never negative.
func (s Stop) Remaining() int {
	if r := s.CapacityMax - s.CapacityUsed; r > 0 {
		return r
	}
	return 0
}

// TravelTime is one directed row of the travel-time reference data.
type TravelTime struct {
	FromZone string `json:"fromZone" yaml:"from"`
	ToZone   string `json:"toZone" yaml:"to"`
	Minutes  int    `json:"minutes" yaml:"minutes"`
}

// Product carries the catalog fields the booking core depends on.
type Product struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	PriceCents int64  `json:"priceCents" yaml:"priceCents"`
	StockQty   int    `json:"stockQty" yaml:"stockQty"`
	Active     bool   `json:"active" yaml:"active"`
}

// ItemIn is a requested line item before merging and pricing.
type ItemIn struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// LineItem is the price snapshot stored with an order.
type LineItem struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

// Order references exactly one stop. Immutable apart from Completed.
type Order struct {
	ID           string     `json:"id"`
	StopID       string     `json:"stopId"`
	Day          string     `json:"day"`
	Zone         string     `json:"zone"`
	StartMinutes int        `json:"startMinutes"`
	CustomerID   *string    `json:"customerId,omitempty"`
	Note         *string    `json:"note,omitempty"`
	Items        []LineItem `json:"items"`
	TotalCents   int64      `json:"totalCents"`
	Completed    bool       `json:"completed"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// OrderFilter selects orders for listings. Empty fields match everything.
type OrderFilter struct {
	Day        string
	CustomerID string
	Limit      int
}

// SlotView is one row of the slot preview shown before placement.
type SlotView struct {
	StartMinutes      int     `json:"startMinutes"`
	Label             string  `json:"label"`
	Joinable          bool    `json:"joinable"`
	Admissible        bool    `json:"admissible"`
	Reason            *string `json:"reason"`
	RemainingCapacity int     `json:"remainingCapacity"`
}
