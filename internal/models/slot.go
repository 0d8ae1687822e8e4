package models

import "time"

// Slot is a candidate bookable interval produced by slot generation. Slots
// are emitted for every duration the teacher offers that fits its window;
// Available is false for past candidates and for candidates colliding with
// blocked time or existing lessons.
type Slot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Available       bool      `json:"available"`
}

// Interval returns the slot's half-open interval.
func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}
