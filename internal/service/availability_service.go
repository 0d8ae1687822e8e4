package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

type availabilityStore interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error)
	Replace(ctx context.Context, teacherID string, windows []models.AvailabilityWindow) error
}

type blockedTimeStore interface {
	ListBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.BlockedTime, error)
	Create(ctx context.Context, blocked *models.BlockedTime) error
	Delete(ctx context.Context, id string) error
}

type scheduledLessonReader interface {
	ListActiveByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Lesson, error)
}

// WindowInput is one weekly open interval in a schedule submission.
type WindowInput struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// SetScheduleRequest replaces a teacher's whole weekly schedule.
type SetScheduleRequest struct {
	TeacherID string        `json:"teacher_id" validate:"required"`
	Windows   []WindowInput `json:"windows" validate:"dive"`
}

// BlockTimeRequest marks an absolute interval as unavailable.
type BlockTimeRequest struct {
	TeacherID string    `json:"teacher_id" validate:"required"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	EndsAt    time.Time `json:"ends_at" validate:"required"`
	Reason    *string   `json:"reason,omitempty"`
}

// AvailabilityService manages teachers' weekly schedules and one-off blocks.
type AvailabilityService struct {
	windows   availabilityStore
	blocked   blockedTimeStore
	lessons   scheduledLessonReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService.
func NewAvailabilityService(windows availabilityStore, blocked blockedTimeStore, lessons scheduledLessonReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		windows:   windows,
		blocked:   blocked,
		lessons:   lessons,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// GetWeeklySchedule returns a teacher's availability windows.
func (s *AvailabilityService) GetWeeklySchedule(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	windows, err := s.windows.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load availability")
	}
	return windows, nil
}

// SetWeeklySchedule replaces the teacher's schedule wholesale. Windows on the
// same day must not overlap; an empty submission clears the schedule.
func (s *AvailabilityService) SetWeeklySchedule(ctx context.Context, req SetScheduleRequest) ([]models.AvailabilityWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	type span struct {
		start, end int
	}
	byDay := make(map[int][]span)
	windows := make([]models.AvailabilityWindow, 0, len(req.Windows))
	for _, w := range req.Windows {
		start, err := minutesOfDay(w.StartTime)
		if err != nil {
			return nil, s.scheduleFail(req.TeacherID, "start_time", "start_time must be HH:MM")
		}
		end, err := minutesOfDay(w.EndTime)
		if err != nil {
			return nil, s.scheduleFail(req.TeacherID, "end_time", "end_time must be HH:MM")
		}
		if end <= start {
			return nil, s.scheduleFail(req.TeacherID, "end_time", "end_time must be after start_time")
		}
		for _, other := range byDay[w.DayOfWeek] {
			if models.SpansOverlap(start, end, other.start, other.end) {
				domainErr := &models.AvailabilityConflictError{
					TeacherID: req.TeacherID,
					Message:   fmt.Sprintf("windows overlap on day %d", w.DayOfWeek),
				}
				return nil, appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "availability windows overlap")
			}
		}
		byDay[w.DayOfWeek] = append(byDay[w.DayOfWeek], span{start: start, end: end})
		windows = append(windows, models.AvailabilityWindow{
			TeacherID: req.TeacherID,
			DayOfWeek: w.DayOfWeek,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
		})
	}

	if err := s.windows.Replace(ctx, req.TeacherID, windows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to save availability")
	}

	s.invalidateSlots(ctx, req.TeacherID)
	return windows, nil
}

// BlockTime creates a one-off unavailable interval. Blocks may not be placed
// over a lesson that is still SCHEDULED; the lesson must be cancelled first.
func (s *AvailabilityService) BlockTime(ctx context.Context, req BlockTimeRequest) (*models.BlockedTime, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid block payload")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, s.scheduleFail(req.TeacherID, "ends_at", "ends_at must be after starts_at")
	}

	lessons, err := s.lessons.ListActiveByTeacherBetween(ctx, req.TeacherID, req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to check lessons")
	}
	for _, lesson := range lessons {
		if models.Overlaps(req.StartsAt, req.EndsAt, lesson.StartsAt, lesson.EndsAt()) {
			domainErr := &models.AvailabilityConflictError{
				TeacherID: req.TeacherID,
				Message:   "block overlaps scheduled lesson " + lesson.ID,
			}
			return nil, appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "interval overlaps a scheduled lesson")
		}
	}

	blocked := &models.BlockedTime{
		TeacherID: req.TeacherID,
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		Reason:    req.Reason,
	}
	if err := s.blocked.Create(ctx, blocked); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to save block")
	}

	s.invalidateSlots(ctx, req.TeacherID)
	return blocked, nil
}

// UnblockTime removes a block by id.
func (s *AvailabilityService) UnblockTime(ctx context.Context, teacherID, blockID string) error {
	if err := s.blocked.Delete(ctx, blockID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete block")
	}
	s.invalidateSlots(ctx, teacherID)
	return nil
}

// ListBlocks returns a teacher's blocks intersecting [from, to).
func (s *AvailabilityService) ListBlocks(ctx context.Context, teacherID string, from, to time.Time) ([]models.BlockedTime, error) {
	blocks, err := s.blocked.ListBetween(ctx, teacherID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load blocks")
	}
	return blocks, nil
}

func (s *AvailabilityService) scheduleFail(teacherID, field, reason string) error {
	return appErrors.Wrap(
		&models.ValidationFailure{TeacherID: teacherID, Field: field, Reason: reason},
		appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, reason)
}

func (s *AvailabilityService) invalidateSlots(ctx context.Context, teacherID string) {
	if err := s.cache.Invalidate(ctx, "slots:"+teacherID+":*"); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// minutesOfDay parses a "15:04" wall-clock string into minutes past midnight.
func minutesOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
