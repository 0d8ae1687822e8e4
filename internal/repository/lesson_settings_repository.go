package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
)

// LessonSettingsRepository manages per-teacher booking rules.
type LessonSettingsRepository struct {
	db *sqlx.DB
}

// NewLessonSettingsRepository creates a new settings repository.
func NewLessonSettingsRepository(db *sqlx.DB) *LessonSettingsRepository {
	return &LessonSettingsRepository{db: db}
}

// GetByTeacher loads the teacher's settings. Missing rows surface as
// sql.ErrNoRows so validation can report "settings not configured".
func (r *LessonSettingsRepository) GetByTeacher(ctx context.Context, teacherID string) (*models.LessonSettings, error) {
	const query = `SELECT teacher_id, allows_30_min, allows_60_min, price_30_cents, price_60_cents, advance_booking_days, created_at, updated_at FROM lesson_settings WHERE teacher_id = $1`
	var settings models.LessonSettings
	if err := r.db.GetContext(ctx, &settings, query, teacherID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert creates or replaces the teacher's settings row.
func (r *LessonSettingsRepository) Upsert(ctx context.Context, settings *models.LessonSettings) error {
	now := time.Now().UTC()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	const query = `INSERT INTO lesson_settings (teacher_id, allows_30_min, allows_60_min, price_30_cents, price_60_cents, advance_booking_days, created_at, updated_at)
		VALUES (:teacher_id, :allows_30_min, :allows_60_min, :price_30_cents, :price_60_cents, :advance_booking_days, :created_at, :updated_at)
		ON CONFLICT (teacher_id) DO UPDATE SET allows_30_min = EXCLUDED.allows_30_min, allows_60_min = EXCLUDED.allows_60_min, price_30_cents = EXCLUDED.price_30_cents, price_60_cents = EXCLUDED.price_60_cents, advance_booking_days = EXCLUDED.advance_booking_days, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return database.Classify("upsert lesson settings", err)
	}
	return nil
}
