package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

// SlotStepMinutes is the fixed increment candidates are generated at.
const SlotStepMinutes = 30

// slotDurations are emitted independently per step when the teacher's
// settings allow them.
var slotDurations = []int{30, 60}

type availabilityWindowReader interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error)
}

type blockedTimeReader interface {
	ListBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.BlockedTime, error)
}

type bookedLessonReader interface {
	ListActiveByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Lesson, error)
}

type lessonSettingsReader interface {
	GetByTeacher(ctx context.Context, teacherID string) (*models.LessonSettings, error)
}

// SlotService generates candidate bookable slots from weekly availability,
// blocked times, and already-booked lessons. Generation is side-effect-free
// and deterministic for fixed inputs plus current booked state.
type SlotService struct {
	windows  availabilityWindowReader
	blocked  blockedTimeReader
	lessons  bookedLessonReader
	settings lessonSettingsReader
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSlotService instantiates SlotService. cache may be nil.
func NewSlotService(windows availabilityWindowReader, blocked blockedTimeReader, lessons bookedLessonReader, settings lessonSettingsReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *SlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		windows:  windows,
		blocked:  blocked,
		lessons:  lessons,
		settings: settings,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// GetAvailableSlots returns ordered slot candidates for the teacher across
// [from, to), with wall-clock placement computed in the given timezone.
func (s *SlotService) GetAvailableSlots(ctx context.Context, teacherID string, from, to time.Time, tz string) ([]models.Slot, error) {
	if !to.After(from) {
		return nil, appErrors.Wrap(
			&models.ValidationFailure{TeacherID: teacherID, Field: "range", Reason: "range end must be after range start"},
			appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot range")
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, appErrors.Wrap(
			&models.ValidationFailure{TeacherID: teacherID, Field: "timezone", Reason: "unknown timezone " + tz},
			appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timezone")
	}

	cacheKey := fmt.Sprintf("slots:%s:%d:%d:%s", teacherID, from.Unix(), to.Unix(), tz)
	var cached []models.Slot
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	settings, err := s.settings.GetByTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(
				&models.ValidationFailure{TeacherID: teacherID, Field: "settings", Reason: "lesson settings not configured"},
				appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lesson settings not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson settings")
	}

	windows, err := s.windows.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}

	blocked, err := s.blocked.ListBetween(ctx, teacherID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load blocked times")
	}

	booked, err := s.lessons.ListActiveByTeacherBetween(ctx, teacherID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked lessons")
	}

	slots := s.generate(settings, windows, blocked, booked, from, to, loc)

	if err := s.cache.Set(ctx, cacheKey, slots, s.cacheTTL); err != nil {
		s.logger.Warn("slot cache write failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}

	return slots, nil
}

func (s *SlotService) generate(settings *models.LessonSettings, windows []models.AvailabilityWindow, blocked []models.BlockedTime, booked []models.Lesson, from, to time.Time, loc *time.Location) []models.Slot {
	byDay := make(map[int][]models.AvailabilityWindow, len(windows))
	for _, w := range windows {
		byDay[w.DayOfWeek] = append(byDay[w.DayOfWeek], w)
	}

	now := s.now()
	slots := make([]models.Slot, 0)

	localFrom := from.In(loc)
	day := time.Date(localFrom.Year(), localFrom.Month(), localFrom.Day(), 0, 0, 0, 0, loc)
	for day.Before(to) {
		for _, window := range byDay[int(day.Weekday())] {
			windowStart, err := atClock(day, window.StartTime, loc)
			if err != nil {
				s.logger.Warn("skipping malformed availability window", zap.String("window_id", window.ID), zap.Error(err))
				continue
			}
			windowEnd, err := atClock(day, window.EndTime, loc)
			if err != nil {
				s.logger.Warn("skipping malformed availability window", zap.String("window_id", window.ID), zap.Error(err))
				continue
			}

			for step := windowStart; step.Before(windowEnd); step = step.Add(SlotStepMinutes * time.Minute) {
				if step.Before(from) || !step.Before(to) {
					continue
				}
				for _, duration := range slotDurations {
					if !settings.AllowsDuration(duration) {
						continue
					}
					end := step.Add(time.Duration(duration) * time.Minute)
					if end.After(windowEnd) {
						continue
					}
					slots = append(slots, models.Slot{
						Start:           step,
						End:             end,
						DurationMinutes: duration,
						PriceCents:      settings.PriceFor(duration),
						Available:       s.available(step, end, now, blocked, booked),
					})
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start.Equal(slots[j].Start) {
			return slots[i].DurationMinutes < slots[j].DurationMinutes
		}
		return slots[i].Start.Before(slots[j].Start)
	})

	return slots
}

func (s *SlotService) available(start, end, now time.Time, blocked []models.BlockedTime, booked []models.Lesson) bool {
	if !start.After(now) {
		return false
	}
	for _, b := range blocked {
		if models.Overlaps(start, end, b.StartsAt, b.EndsAt) {
			return false
		}
	}
	for i := range booked {
		lesson := &booked[i]
		if models.Overlaps(start, end, lesson.StartsAt, lesson.EndsAt()) {
			return false
		}
	}
	return true
}

// atClock places a wall-clock string like "09:30" on the given day.
func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
