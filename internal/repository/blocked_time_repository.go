package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
)

// BlockedTimeRepository manages one-off unavailability intervals.
type BlockedTimeRepository struct {
	db *sqlx.DB
}

// NewBlockedTimeRepository creates a new blocked time repository.
func NewBlockedTimeRepository(db *sqlx.DB) *BlockedTimeRepository {
	return &BlockedTimeRepository{db: db}
}

// ListBetween returns blocked intervals intersecting [from, to).
func (r *BlockedTimeRepository) ListBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.BlockedTime, error) {
	const query = `SELECT id, teacher_id, starts_at, ends_at, reason, created_at FROM blocked_times WHERE teacher_id = $1 AND starts_at < $2 AND ends_at > $3 ORDER BY starts_at ASC`
	var blocked []models.BlockedTime
	if err := r.db.SelectContext(ctx, &blocked, query, teacherID, to, from); err != nil {
		return nil, database.Classify("list blocked times", err)
	}
	return blocked, nil
}

// Create stores a blocked interval.
func (r *BlockedTimeRepository) Create(ctx context.Context, blocked *models.BlockedTime) error {
	if blocked.ID == "" {
		blocked.ID = uuid.NewString()
	}
	if blocked.CreatedAt.IsZero() {
		blocked.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO blocked_times (id, teacher_id, starts_at, ends_at, reason, created_at) VALUES (:id, :teacher_id, :starts_at, :ends_at, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, blocked); err != nil {
		return database.Classify("create blocked time", err)
	}
	return nil
}

// Delete removes a blocked interval by id.
func (r *BlockedTimeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blocked_times WHERE id = $1`, id); err != nil {
		return database.Classify("delete blocked time", err)
	}
	return nil
}
