package models

import "time"

// RecurringSlotStatus enumerates subscription states.
type RecurringSlotStatus string

const (
	RecurringSlotActive    RecurringSlotStatus = "ACTIVE"
	RecurringSlotCancelled RecurringSlotStatus = "CANCELLED"
)

// RecurringSlot is an indefinite weekly commitment between a teacher and a
// student. It owns the lessons generated from it via RecurringSlotID; the
// only transition is ACTIVE to CANCELLED, which never touches lessons that
// were already materialized.
type RecurringSlot struct {
	ID               string              `db:"id" json:"id"`
	TeacherID        string              `db:"teacher_id" json:"teacher_id"`
	StudentID        string              `db:"student_id" json:"student_id"`
	DayOfWeek        int                 `db:"day_of_week" json:"day_of_week"`
	StartTime        string              `db:"start_time" json:"start_time"`
	DurationMinutes  int                 `db:"duration_minutes" json:"duration_minutes"`
	MonthlyRateCents int64               `db:"monthly_rate_cents" json:"monthly_rate_cents"`
	Status           RecurringSlotStatus `db:"status" json:"status"`
	Version          int                 `db:"version" json:"version"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

// CurrentVersion exposes the optimistic lock counter.
func (s *RecurringSlot) CurrentVersion() int {
	return s.Version
}

// RecurringSlotPatch carries the mutable subscription fields for conditional
// updates.
type RecurringSlotPatch struct {
	Status *RecurringSlotStatus
}
