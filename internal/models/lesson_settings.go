package models

import "time"

// LessonSettings holds a teacher's booking rules: which durations may be
// booked, what each costs, and how far ahead a first-time booking may land.
// Exactly one row per teacher; required before any booking.
type LessonSettings struct {
	TeacherID          string    `db:"teacher_id" json:"teacher_id"`
	Allows30Min        bool      `db:"allows_30_min" json:"allows_30_min"`
	Allows60Min        bool      `db:"allows_60_min" json:"allows_60_min"`
	Price30Cents       int64     `db:"price_30_cents" json:"price_30_cents"`
	Price60Cents       int64     `db:"price_60_cents" json:"price_60_cents"`
	AdvanceBookingDays int       `db:"advance_booking_days" json:"advance_booking_days"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// AllowsDuration reports whether the duration may be booked.
func (s *LessonSettings) AllowsDuration(minutes int) bool {
	switch minutes {
	case 30:
		return s.Allows30Min
	case 60:
		return s.Allows60Min
	default:
		return false
	}
}

// PriceFor returns the price in cents for the duration, or zero when the
// duration is not offered.
func (s *LessonSettings) PriceFor(minutes int) int64 {
	switch minutes {
	case 30:
		return s.Price30Cents
	case 60:
		return s.Price60Cents
	default:
		return 0
	}
}
