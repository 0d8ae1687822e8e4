package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/optlock"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/txn"
)

// A flat four weekly occurrences are billed per month regardless of how many
// matching weekdays the calendar actually holds. Months with five occurrences
// under-bill slightly and four-week months are exact; the trade is a rate
// students can predict without consulting a calendar.
const occurrencesPerMonth = 4

// eagerWeeks is how many lessons are materialized up front when a
// subscription is created. The rest appear lazily via backfill.
const eagerWeeks = 4

type recurringSlotStore interface {
	FindByID(ctx context.Context, id string) (*models.RecurringSlot, error)
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.RecurringSlot, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.RecurringSlot, error)
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.RecurringSlot) error
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int, patch models.RecurringSlotPatch) (bool, error)
}

type recurringLessonStore interface {
	FindActiveAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, at time.Time) (*models.Lesson, error)
	ExistsAt(ctx context.Context, teacherID, studentID string, at time.Time) (bool, error)
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson) error
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateRecurringSlotRequest opens an indefinite weekly subscription.
type CreateRecurringSlotRequest struct {
	TeacherID       string `json:"teacher_id" validate:"required"`
	StudentID       string `json:"student_id" validate:"required"`
	DayOfWeek       int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,oneof=30 60"`
}

// RecurringService manages indefinite weekly subscriptions: opening them,
// lazily materializing their lessons, and cancelling them.
type RecurringService struct {
	slots      recurringSlotStore
	lessons    recurringLessonStore
	teachers   teacherReader
	bValidator *BookingValidator
	tx         txRunner
	guard      *optlock.Guard[*models.RecurringSlot, models.RecurringSlotPatch]
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecurringService instantiates RecurringService.
func NewRecurringService(slots recurringSlotStore, lessons recurringLessonStore, teachers teacherReader, bValidator *BookingValidator, tx txRunner, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RecurringService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecurringService{
		slots:      slots,
		lessons:    lessons,
		teachers:   teachers,
		bValidator: bValidator,
		tx:         tx,
		guard:      optlock.NewGuard[*models.RecurringSlot, models.RecurringSlotPatch]("recurring slot", slots),
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateIndefinite opens a weekly subscription anchored at a wall-clock time
// in the teacher's timezone and eagerly materializes the first month of
// lessons. The slot row and its initial lessons commit together.
func (s *RecurringService) CreateIndefinite(ctx context.Context, req CreateRecurringSlotRequest) (*models.RecurringSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subscription payload")
	}

	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	loc, err := time.LoadLocation(teacher.Timezone)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "teacher has an invalid timezone")
	}

	first, err := nextOccurrence(s.now().In(loc), req.DayOfWeek, req.StartTime, loc)
	if err != nil {
		return nil, appErrors.Wrap(
			&models.ValidationFailure{TeacherID: req.TeacherID, Field: "start_time", Reason: "start_time must be HH:MM"},
			appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}

	occurrences := weeklyOccurrences(first, eagerWeeks)

	var settings *models.LessonSettings
	for i, occ := range occurrences {
		settings, err = s.bValidator.Validate(ctx, BookingCheck{
			TeacherID:        req.TeacherID,
			StudentID:        req.StudentID,
			StartsAt:         occ,
			DurationMinutes:  req.DurationMinutes,
			Timezone:         teacher.Timezone,
			SkipHorizonCheck: i > 0,
		})
		if err != nil {
			return nil, err
		}
	}

	slot := &models.RecurringSlot{
		TeacherID:        req.TeacherID,
		StudentID:        req.StudentID,
		DayOfWeek:        req.DayOfWeek,
		StartTime:        req.StartTime,
		DurationMinutes:  req.DurationMinutes,
		MonthlyRateCents: settings.PriceFor(req.DurationMinutes) * occurrencesPerMonth,
	}

	err = s.tx.Execute(ctx, txn.BulkOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.slots.Create(ctx, tx, slot); err != nil {
			return err
		}

		lessons := make([]models.Lesson, 0, len(occurrences))
		for _, occ := range occurrences {
			existing, err := s.lessons.FindActiveAt(ctx, tx, req.TeacherID, occ.UTC())
			if err != nil {
				return err
			}
			if existing != nil {
				domainErr := &models.BookingConflictError{
					TeacherID:           req.TeacherID,
					StartsAt:            occ.UTC(),
					DurationMinutes:     req.DurationMinutes,
					ConflictingLessonID: existing.ID,
					Message:             "subscription overlaps an existing lesson",
				}
				return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "subscription conflicts with an existing lesson")
			}
			lessons = append(lessons, models.Lesson{
				TeacherID:       req.TeacherID,
				StudentID:       req.StudentID,
				StartsAt:        occ.UTC(),
				DurationMinutes: req.DurationMinutes,
				Status:          models.LessonScheduled,
				PriceCents:      settings.PriceFor(req.DurationMinutes),
				RecurringSlotID: &slot.ID,
			})
		}
		return s.lessons.BulkCreate(ctx, tx, lessons)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBackfill(eagerWeeks)
	s.invalidateSlots(ctx, req.TeacherID)
	return slot, nil
}

// GenerateMissingLessons materializes any lessons a teacher's ACTIVE
// subscriptions imply within [from, to) that do not exist yet. It is
// idempotent: occurrences that already have a lesson row for the same
// student, cancelled ones included, or that collide with another booking,
// are left alone. A cancelled occurrence stays cancelled.
func (s *RecurringService) GenerateMissingLessons(ctx context.Context, teacherID string, from, to time.Time) (int, error) {
	if !to.After(from) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "range end must be after range start")
	}

	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	loc, err := time.LoadLocation(teacher.Timezone)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "teacher has an invalid timezone")
	}

	slots, err := s.slots.ListActiveByTeacher(ctx, teacherID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list subscriptions")
	}
	if len(slots) == 0 {
		return 0, nil
	}

	type pending struct {
		slot models.RecurringSlot
		at   time.Time
	}
	var missing []pending
	for _, slot := range slots {
		occurrences, err := occurrencesInRange(slot, from, to, loc)
		if err != nil {
			s.logger.Warn("skipping subscription with unparseable start time",
				zap.String("slot_id", slot.ID), zap.String("start_time", slot.StartTime))
			continue
		}
		for _, occ := range occurrences {
			// A subscription never back-fills into its own past.
			if occ.Before(slot.CreatedAt) {
				continue
			}
			exists, err := s.lessons.ExistsAt(ctx, slot.TeacherID, slot.StudentID, occ)
			if err != nil {
				return 0, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to check existing lessons")
			}
			if !exists {
				missing = append(missing, pending{slot: slot, at: occ})
			}
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	var created int
	err = s.tx.Execute(ctx, txn.BulkOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		created = 0
		lessons := make([]models.Lesson, 0, len(missing))
		for _, p := range missing {
			conflict, err := s.lessons.FindActiveAt(ctx, tx, p.slot.TeacherID, p.at)
			if err != nil {
				return err
			}
			if conflict != nil {
				continue
			}
			slotID := p.slot.ID
			lessons = append(lessons, models.Lesson{
				TeacherID:       p.slot.TeacherID,
				StudentID:       p.slot.StudentID,
				StartsAt:        p.at,
				DurationMinutes: p.slot.DurationMinutes,
				Status:          models.LessonScheduled,
				PriceCents:      p.slot.MonthlyRateCents / occurrencesPerMonth,
				RecurringSlotID: &slotID,
			})
		}
		if len(lessons) == 0 {
			return nil
		}
		if err := s.lessons.BulkCreate(ctx, tx, lessons); err != nil {
			return err
		}
		created = len(lessons)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		s.metrics.RecordBackfill(created)
		s.invalidateSlots(ctx, teacherID)
		s.logger.Info("backfilled recurring lessons",
			zap.String("teacher_id", teacherID), zap.Int("count", created))
	}
	return created, nil
}

// CancelSlot closes a subscription. Lessons already materialized from it are
// left untouched and must be cancelled individually.
func (s *RecurringService) CancelSlot(ctx context.Context, slotID string) (*models.RecurringSlot, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recurring slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recurring slot")
	}
	if slot.Status == models.RecurringSlotCancelled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurring slot is already cancelled")
	}

	ctx, cancel := context.WithTimeout(ctx, txn.CancellationOptions().Timeout)
	defer cancel()

	status := models.RecurringSlotCancelled
	updated, err := s.guard.Update(ctx, slotID, slot.Version, models.RecurringSlotPatch{Status: &status})
	if err != nil {
		return nil, mapLockError(err, "recurring slot")
	}

	s.invalidateSlots(ctx, slot.TeacherID)
	return updated, nil
}

// ListByTeacher returns a teacher's ACTIVE subscriptions.
func (s *RecurringService) ListByTeacher(ctx context.Context, teacherID string) ([]models.RecurringSlot, error) {
	slots, err := s.slots.ListActiveByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list subscriptions")
	}
	return slots, nil
}

// ListByStudent returns a student's ACTIVE subscriptions.
func (s *RecurringService) ListByStudent(ctx context.Context, studentID string) ([]models.RecurringSlot, error) {
	slots, err := s.slots.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list subscriptions")
	}
	return slots, nil
}

func (s *RecurringService) invalidateSlots(ctx context.Context, teacherID string) {
	if err := s.cache.Invalidate(ctx, "slots:"+teacherID+":*"); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// nextOccurrence finds the first instant strictly after now that lands on
// dayOfWeek at the given wall-clock time in loc.
func nextOccurrence(now time.Time, dayOfWeek int, clock string, loc *time.Location) (time.Time, error) {
	candidate, err := atClock(now, clock, loc)
	if err != nil {
		return time.Time{}, err
	}
	for i := 0; i < 8; i++ {
		if int(candidate.Weekday()) == dayOfWeek && candidate.After(now) {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, 1)
		// Re-anchor the wall clock after the date shift so DST transitions
		// cannot drift the start time.
		candidate, err = atClock(candidate, clock, loc)
		if err != nil {
			return time.Time{}, err
		}
	}
	return candidate, nil
}

// occurrencesInRange lists the UTC instants in [from, to) where the slot's
// weekday and wall-clock time land.
func occurrencesInRange(slot models.RecurringSlot, from, to time.Time, loc *time.Location) ([]time.Time, error) {
	var out []time.Time
	day := time.Date(from.In(loc).Year(), from.In(loc).Month(), from.In(loc).Day(), 0, 0, 0, 0, loc)
	for day.Before(to) {
		if int(day.Weekday()) == slot.DayOfWeek {
			occ, err := atClock(day, slot.StartTime, loc)
			if err != nil {
				return nil, err
			}
			if !occ.Before(from) && occ.Before(to) {
				out = append(out, occ.UTC())
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}
