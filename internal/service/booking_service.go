package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/optlock"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/txn"
)

type bookingLessonStore interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	FindActiveAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, at time.Time) (*models.Lesson, error)
	Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson) error
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int, patch models.LessonPatch) (bool, error)
}

type txRunner interface {
	Execute(ctx context.Context, opts txn.Options, fn func(ctx context.Context, tx *sqlx.Tx) error) error
}

// BookLessonRequest describes payload for booking a single lesson.
type BookLessonRequest struct {
	TeacherID       string    `json:"teacher_id" validate:"required"`
	StudentID       string    `json:"student_id" validate:"required"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,oneof=30 60"`
	Timezone        string    `json:"timezone" validate:"required"`
}

// BookBatchRequest books a fixed-length run of weekly lessons.
type BookBatchRequest struct {
	TeacherID       string    `json:"teacher_id" validate:"required"`
	StudentID       string    `json:"student_id" validate:"required"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,oneof=30 60"`
	Timezone        string    `json:"timezone" validate:"required"`
	Weeks           int       `json:"weeks" validate:"required,min=2,max=52"`
}

// BookingService commits single lessons and fixed-length weekly batches, and
// drives the lesson status lifecycle.
type BookingService struct {
	lessons    bookingLessonStore
	bValidator *BookingValidator
	tx         txRunner
	guard      *optlock.Guard[*models.Lesson, models.LessonPatch]
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewBookingService instantiates BookingService.
func NewBookingService(lessons bookingLessonStore, bValidator *BookingValidator, tx txRunner, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		lessons:    lessons,
		bValidator: bValidator,
		tx:         tx,
		guard:      optlock.NewGuard[*models.Lesson, models.LessonPatch]("lesson", lessons),
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// GetLesson loads a lesson by id.
func (s *BookingService) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

// BookSingle validates and commits one lesson. The transaction re-checks for
// a non-cancelled lesson at the same teacher/start before inserting, closing
// the window between validation and commit.
func (s *BookingService) BookSingle(ctx context.Context, req BookLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	settings, err := s.bValidator.Validate(ctx, BookingCheck{
		TeacherID:       req.TeacherID,
		StudentID:       req.StudentID,
		StartsAt:        req.StartsAt,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
	})
	if err != nil {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		return nil, err
	}

	lesson := &models.Lesson{
		TeacherID:       req.TeacherID,
		StudentID:       req.StudentID,
		StartsAt:        req.StartsAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          models.LessonScheduled,
		PriceCents:      settings.PriceFor(req.DurationMinutes),
	}

	err = s.tx.Execute(ctx, txn.BookingOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		existing, err := s.lessons.FindActiveAt(ctx, tx, req.TeacherID, lesson.StartsAt)
		if err != nil {
			return err
		}
		if existing != nil {
			return s.conflict(req.TeacherID, lesson.StartsAt, req.DurationMinutes, existing.ID)
		}
		return s.lessons.Create(ctx, tx, lesson)
	})
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrConflict.Code {
			s.metrics.RecordBooking(BookingOutcomeConflict)
		} else {
			s.metrics.RecordBooking(BookingOutcomeError)
		}
		return nil, err
	}

	s.metrics.RecordBooking(BookingOutcomeConfirmed)
	s.invalidateSlots(ctx, req.TeacherID)
	return lesson, nil
}

// BookFixedBatch validates every weekly occurrence, then creates all of them
// in one transaction sharing a batch tag. Either all weeks exist afterward
// or none do.
func (s *BookingService) BookFixedBatch(ctx context.Context, req BookBatchRequest) ([]models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, appErrors.Wrap(
			&models.ValidationFailure{TeacherID: req.TeacherID, Field: "timezone", Reason: "unknown timezone " + req.Timezone},
			appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timezone")
	}

	occurrences := weeklyOccurrences(req.StartsAt.In(loc), req.Weeks)

	var settings *models.LessonSettings
	for i, occ := range occurrences {
		settings, err = s.bValidator.Validate(ctx, BookingCheck{
			TeacherID:       req.TeacherID,
			StudentID:       req.StudentID,
			StartsAt:        occ,
			DurationMinutes: req.DurationMinutes,
			Timezone:        req.Timezone,
			// Only the first occurrence is held to the advance horizon.
			SkipHorizonCheck: i > 0,
		})
		if err != nil {
			s.metrics.RecordBooking(BookingOutcomeRejected)
			return nil, err
		}
	}

	batchID := uuid.NewString()
	lessons := make([]models.Lesson, 0, len(occurrences))
	for _, occ := range occurrences {
		lessons = append(lessons, models.Lesson{
			TeacherID:        req.TeacherID,
			StudentID:        req.StudentID,
			StartsAt:         occ.UTC(),
			DurationMinutes:  req.DurationMinutes,
			Status:           models.LessonScheduled,
			PriceCents:       settings.PriceFor(req.DurationMinutes),
			RecurringBatchID: &batchID,
		})
	}

	err = s.tx.Execute(ctx, txn.BulkOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		for i := range lessons {
			existing, err := s.lessons.FindActiveAt(ctx, tx, req.TeacherID, lessons[i].StartsAt)
			if err != nil {
				return err
			}
			if existing != nil {
				return s.conflict(req.TeacherID, lessons[i].StartsAt, req.DurationMinutes, existing.ID)
			}
		}
		return s.lessons.BulkCreate(ctx, tx, lessons)
	})
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrConflict.Code {
			s.metrics.RecordBooking(BookingOutcomeConflict)
		} else {
			s.metrics.RecordBooking(BookingOutcomeError)
		}
		return nil, err
	}

	s.metrics.RecordBooking(BookingOutcomeConfirmed)
	s.invalidateSlots(ctx, req.TeacherID)
	return lessons, nil
}

// Cancel transitions a future scheduled lesson to CANCELLED with an audit
// note. Cancellation is terminal and never applies to started lessons.
func (s *BookingService) Cancel(ctx context.Context, lessonID, reason string) (*models.Lesson, error) {
	lesson, err := s.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	if lesson.Status == models.LessonCancelled {
		return nil, appErrors.Wrap(
			&models.ValidationFailure{TeacherID: lesson.TeacherID, Field: "status", Reason: "lesson is already cancelled"},
			appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lesson is already cancelled")
	}
	if !lesson.StartsAt.After(s.now()) {
		return nil, appErrors.Wrap(
			&models.ValidationFailure{TeacherID: lesson.TeacherID, Field: "starts_at", Reason: "lesson has already started"},
			appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lesson has already started")
	}

	ctx, cancel := context.WithTimeout(ctx, txn.CancellationOptions().Timeout)
	defer cancel()

	status := models.LessonCancelled
	note := "cancelled"
	if reason != "" {
		note = "cancelled: " + reason
	}
	updated, err := s.guard.Update(ctx, lessonID, lesson.Version, models.LessonPatch{Status: &status, Notes: &note})
	if err != nil {
		return nil, mapLockError(err, "lesson")
	}

	s.invalidateSlots(ctx, lesson.TeacherID)
	return updated, nil
}

// Complete marks a scheduled lesson COMPLETED, retrying the whole
// read-then-update on version conflicts with fresh reads.
func (s *BookingService) Complete(ctx context.Context, lessonID string) (*models.Lesson, error) {
	var updated *models.Lesson

	err := optlock.Retry(ctx, 3, func(ctx context.Context) error {
		lesson, err := s.GetLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if lesson.Status != models.LessonScheduled {
			return appErrors.Wrap(
				&models.ValidationFailure{TeacherID: lesson.TeacherID, Field: "status", Reason: fmt.Sprintf("cannot complete a %s lesson", lesson.Status)},
				appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lesson is not scheduled")
		}

		status := models.LessonCompleted
		updated, err = s.guard.Update(ctx, lessonID, lesson.Version, models.LessonPatch{Status: &status})
		return err
	})
	if err != nil {
		return nil, mapLockError(err, "lesson")
	}
	return updated, nil
}

func (s *BookingService) conflict(teacherID string, startsAt time.Time, duration int, conflictingID string) error {
	domainErr := &models.BookingConflictError{
		TeacherID:           teacherID,
		StartsAt:            startsAt,
		DurationMinutes:     duration,
		ConflictingLessonID: conflictingID,
		Message:             "slot was booked by another request",
	}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "booking conflict: slot already taken")
}

func mapLockError(err error, entity string) error {
	var conflict *optlock.ConflictError
	if errors.As(err, &conflict) {
		return appErrors.Wrap(conflict, appErrors.ErrOptimisticLock.Code, appErrors.ErrOptimisticLock.Status,
			fmt.Sprintf("%s was modified concurrently", entity))
	}
	var missing *optlock.NotFoundError
	if errors.As(err, &missing) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update "+entity)
}

func (s *BookingService) invalidateSlots(ctx context.Context, teacherID string) {
	if err := s.cache.Invalidate(ctx, "slots:"+teacherID+":*"); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// weeklyOccurrences expands a local start time into count weekly occurrences
// using calendar arithmetic, so wall-clock placement survives DST shifts.
func weeklyOccurrences(first time.Time, count int) []time.Time {
	occurrences := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		occurrences = append(occurrences, first.AddDate(0, 0, 7*i))
	}
	return occurrences
}
