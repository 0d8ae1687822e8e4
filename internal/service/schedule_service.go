package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

type lessonBackfiller interface {
	GenerateMissingLessons(ctx context.Context, teacherID string, from, to time.Time) (int, error)
}

// ScheduleService serves a teacher's calendar. Reading a schedule first
// materializes any lessons the teacher's subscriptions imply for the range,
// so subscription lessons exist by the time anyone looks at them.
type ScheduleService struct {
	lessons    scheduledLessonReader
	backfiller lessonBackfiller
	logger     *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(lessons scheduledLessonReader, backfiller lessonBackfiller, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{lessons: lessons, backfiller: backfiller, logger: logger}
}

// GetTeacherSchedule returns the teacher's non-cancelled lessons in
// [from, to), backfilling subscription lessons first. A failed backfill is
// logged and the read proceeds; missing subscription lessons will appear on
// the next request.
func (s *ScheduleService) GetTeacherSchedule(ctx context.Context, teacherID string, from, to time.Time) ([]models.Lesson, error) {
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end must be after range start")
	}

	if _, err := s.backfiller.GenerateMissingLessons(ctx, teacherID, from, to); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			return nil, err
		}
		s.logger.Warn("schedule backfill failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}

	lessons, err := s.lessons.ListActiveByTeacherBetween(ctx, teacherID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load schedule")
	}
	return lessons, nil
}
