package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

type relationshipChecker interface {
	RelationshipExists(ctx context.Context, teacherID, studentID string) (bool, error)
}

type slotFinder interface {
	GetAvailableSlots(ctx context.Context, teacherID string, from, to time.Time, tz string) ([]models.Slot, error)
}

// BookingCheck describes one requested occurrence to validate.
type BookingCheck struct {
	TeacherID       string
	StudentID       string
	StartsAt        time.Time
	DurationMinutes int
	Timezone        string
	// SkipHorizonCheck is set for recurring weekly continuations; only the
	// first occurrence of a batch is held to the advance-booking horizon.
	SkipHorizonCheck bool
}

// BookingValidator enforces the booking business rules in order,
// short-circuiting on the first failure.
type BookingValidator struct {
	settings      lessonSettingsReader
	relationships relationshipChecker
	slots         slotFinder
	now           func() time.Time
}

// NewBookingValidator instantiates BookingValidator.
func NewBookingValidator(settings lessonSettingsReader, relationships relationshipChecker, slots slotFinder) *BookingValidator {
	return &BookingValidator{settings: settings, relationships: relationships, slots: slots, now: time.Now}
}

// Validate runs every rule against the check and returns the teacher's
// settings so callers can price the booking without a second read.
func (v *BookingValidator) Validate(ctx context.Context, check BookingCheck) (*models.LessonSettings, error) {
	settings, err := v.settings.GetByTeacher(ctx, check.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, v.fail(check, "settings", "lesson settings not configured for teacher")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson settings")
	}

	related, err := v.relationships.RelationshipExists(ctx, check.TeacherID, check.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher student relationship")
	}
	if !related {
		return nil, v.fail(check, "student_id", "student has no relationship with this teacher")
	}

	if !settings.AllowsDuration(check.DurationMinutes) {
		return nil, v.fail(check, "duration_minutes", "requested duration is not offered by this teacher")
	}

	now := v.now()
	if !check.SkipHorizonCheck {
		horizon := now.AddDate(0, 0, settings.AdvanceBookingDays)
		if check.StartsAt.After(horizon) {
			return nil, v.fail(check, "starts_at", "requested date is beyond the advance booking horizon")
		}
	}

	if !check.StartsAt.After(now) {
		return nil, v.fail(check, "starts_at", "cannot book in the past")
	}

	if err := v.checkSlotAvailable(ctx, check); err != nil {
		return nil, err
	}

	return settings, nil
}

// checkSlotAvailable re-derives the slot set for the requested day and
// requires the exact candidate to be present and available.
func (v *BookingValidator) checkSlotAvailable(ctx context.Context, check BookingCheck) error {
	loc, err := time.LoadLocation(check.Timezone)
	if err != nil {
		return v.fail(check, "timezone", "unknown timezone "+check.Timezone)
	}

	local := check.StartsAt.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	slots, err := v.slots.GetAvailableSlots(ctx, check.TeacherID, dayStart, dayEnd, check.Timezone)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		if slot.Start.Equal(check.StartsAt) && slot.DurationMinutes == check.DurationMinutes {
			if slot.Available {
				return nil
			}
			break
		}
	}
	return v.fail(check, "starts_at", "requested slot is not available")
}

func (v *BookingValidator) fail(check BookingCheck, field, reason string) error {
	return appErrors.Wrap(
		&models.ValidationFailure{TeacherID: check.TeacherID, Field: field, Reason: reason},
		appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, reason)
}
