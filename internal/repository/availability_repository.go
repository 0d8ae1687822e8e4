package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
)

// AvailabilityRepository manages a teacher's weekly recurring windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTeacher returns all windows for a teacher ordered by day and start.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	const query = `SELECT id, teacher_id, day_of_week, start_time, end_time, created_at, updated_at FROM availability_windows WHERE teacher_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, teacherID); err != nil {
		return nil, database.Classify("list availability windows", err)
	}
	return windows, nil
}

// Replace swaps a teacher's full weekly schedule in one transaction.
func (r *AvailabilityRepository) Replace(ctx context.Context, teacherID string, windows []models.AvailabilityWindow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return database.Classify("begin replace availability", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM availability_windows WHERE teacher_id = $1`, teacherID); err != nil {
		return database.Classify("clear availability windows", err)
	}

	now := time.Now().UTC()
	for i := range windows {
		payload := windows[i]
		payload.TeacherID = teacherID
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.UpdatedAt = now

		if _, err = tx.NamedExecContext(ctx, `INSERT INTO availability_windows (id, teacher_id, day_of_week, start_time, end_time, created_at, updated_at) VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time, :created_at, :updated_at)`, &payload); err != nil {
			return database.Classify("insert availability window", err)
		}
		windows[i] = payload
	}

	if err = tx.Commit(); err != nil {
		return database.Classify("commit replace availability", err)
	}
	return nil
}
