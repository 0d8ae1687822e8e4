package models

import "time"

// AvailabilityWindow is a recurring weekly open interval for a teacher.
// Times are wall-clock strings ("09:00") interpreted in the teacher's
// timezone; windows for the same teacher and day must not overlap.
type AvailabilityWindow struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BlockedTime is a one-off absolute interval during which a teacher is
// unavailable. It must not be created over an existing SCHEDULED lesson.
type BlockedTime struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Interval returns the blocked half-open interval.
func (b *BlockedTime) Interval() Interval {
	return Interval{Start: b.StartsAt, End: b.EndsAt}
}
