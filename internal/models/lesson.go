package models

import "time"

// LessonStatus enumerates the lifecycle states of a lesson.
type LessonStatus string

const (
	LessonScheduled LessonStatus = "SCHEDULED"
	LessonCompleted LessonStatus = "COMPLETED"
	LessonCancelled LessonStatus = "CANCELLED"
	// LessonMissed is written by an external collaborator; the core only
	// excludes it from active-lesson queries when cancelled.
	LessonMissed LessonStatus = "MISSED"
)

// Lesson is a single booked occurrence between a teacher and a student.
// No two non-cancelled lessons for the same teacher may overlap.
type Lesson struct {
	ID               string       `db:"id" json:"id"`
	TeacherID        string       `db:"teacher_id" json:"teacher_id"`
	StudentID        string       `db:"student_id" json:"student_id"`
	StartsAt         time.Time    `db:"starts_at" json:"starts_at"`
	DurationMinutes  int          `db:"duration_minutes" json:"duration_minutes"`
	Status           LessonStatus `db:"status" json:"status"`
	PriceCents       int64        `db:"price_cents" json:"price_cents"`
	RecurringBatchID *string      `db:"recurring_batch_id" json:"recurring_batch_id,omitempty"`
	RecurringSlotID  *string      `db:"recurring_slot_id" json:"recurring_slot_id,omitempty"`
	Notes            *string      `db:"notes" json:"notes,omitempty"`
	Version          int          `db:"version" json:"version"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// EndsAt returns the exclusive end instant of the lesson interval.
func (l *Lesson) EndsAt() time.Time {
	return l.StartsAt.Add(time.Duration(l.DurationMinutes) * time.Minute)
}

// Interval returns the lesson's half-open occupancy interval.
func (l *Lesson) Interval() Interval {
	return Interval{Start: l.StartsAt, End: l.EndsAt()}
}

// CurrentVersion exposes the optimistic lock counter.
func (l *Lesson) CurrentVersion() int {
	return l.Version
}

// LessonPatch carries the mutable lesson fields for conditional updates.
type LessonPatch struct {
	Status *LessonStatus
	Notes  *string
}
