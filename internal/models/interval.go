package models

import "time"

// Overlaps reports whether the half-open intervals [start1, end1) and
// [start2, end2) intersect. Touching boundaries do not conflict: a lesson
// ending at 10:00 never collides with one starting at 10:00.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i.Start, i.End, other.Start, other.End)
}

// SpansOverlap is the same half-open rule over minutes-of-day spans, for
// wall-clock availability windows that carry no date.
func SpansOverlap(start1, end1, start2, end2 int) bool {
	return start1 < end2 && start2 < end1
}
