package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

type lessonSettingsStore interface {
	GetByTeacher(ctx context.Context, teacherID string) (*models.LessonSettings, error)
	Upsert(ctx context.Context, settings *models.LessonSettings) error
}

// UpsertSettingsRequest sets a teacher's booking rules.
type UpsertSettingsRequest struct {
	TeacherID          string `json:"teacher_id" validate:"required"`
	Allows30Min        bool   `json:"allows_30_min"`
	Allows60Min        bool   `json:"allows_60_min"`
	Price30Cents       int64  `json:"price_30_cents" validate:"min=0"`
	Price60Cents       int64  `json:"price_60_cents" validate:"min=0"`
	AdvanceBookingDays int    `json:"advance_booking_days" validate:"min=1,max=365"`
}

// SettingsService manages per-teacher booking rules.
type SettingsService struct {
	settings  lessonSettingsStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService instantiates SettingsService.
func NewSettingsService(settings lessonSettingsStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{settings: settings, cache: cache, validator: validate, logger: logger}
}

// Get returns a teacher's booking rules.
func (s *SettingsService) Get(ctx context.Context, teacherID string) (*models.LessonSettings, error) {
	settings, err := s.settings.GetByTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson settings not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load settings")
	}
	return settings, nil
}

// Upsert creates or replaces a teacher's booking rules. At least one duration
// must stay enabled, and every enabled duration needs a positive price.
func (s *SettingsService) Upsert(ctx context.Context, req UpsertSettingsRequest) (*models.LessonSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	if !req.Allows30Min && !req.Allows60Min {
		return nil, s.fail(req.TeacherID, "allows_30_min", "at least one lesson duration must be enabled")
	}
	if req.Allows30Min && req.Price30Cents <= 0 {
		return nil, s.fail(req.TeacherID, "price_30_cents", "enabled durations need a positive price")
	}
	if req.Allows60Min && req.Price60Cents <= 0 {
		return nil, s.fail(req.TeacherID, "price_60_cents", "enabled durations need a positive price")
	}

	settings := &models.LessonSettings{
		TeacherID:          req.TeacherID,
		Allows30Min:        req.Allows30Min,
		Allows60Min:        req.Allows60Min,
		Price30Cents:       req.Price30Cents,
		Price60Cents:       req.Price60Cents,
		AdvanceBookingDays: req.AdvanceBookingDays,
	}
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to save settings")
	}

	if err := s.cache.Invalidate(ctx, "slots:"+req.TeacherID+":*"); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("teacher_id", req.TeacherID), zap.Error(err))
	}
	return settings, nil
}

func (s *SettingsService) fail(teacherID, field, reason string) error {
	return appErrors.Wrap(
		&models.ValidationFailure{TeacherID: teacherID, Field: field, Reason: reason},
		appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, reason)
}
