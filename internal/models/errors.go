package models

import (
	"fmt"
	"time"
)

// BookingConflictError is returned when a requested interval collides with
// an existing non-cancelled lesson or blocked time for the teacher. It names
// the conflicting entity so callers can diagnose without another query.
type BookingConflictError struct {
	TeacherID           string    `json:"teacher_id"`
	StartsAt            time.Time `json:"starts_at"`
	DurationMinutes     int       `json:"duration_minutes"`
	ConflictingLessonID string    `json:"conflicting_lesson_id,omitempty"`
	Message             string    `json:"message"`
}

// Error implements the error interface.
func (e *BookingConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// ValidationFailure describes a booking rule violation. One failure reason
// per error; validation short-circuits on the first broken rule.
type ValidationFailure struct {
	TeacherID string `json:"teacher_id"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason"`
}

// Error implements the error interface.
func (e *ValidationFailure) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Reason
}

// AvailabilityConflictError is returned when availability windows overlap or
// a blocked time would cover a scheduled lesson.
type AvailabilityConflictError struct {
	TeacherID string `json:"teacher_id"`
	Message   string `json:"message"`
}

// Error implements the error interface.
func (e *AvailabilityConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("availability conflict for teacher %s: %s", e.TeacherID, e.Message)
}
