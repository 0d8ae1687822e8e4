package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
)

const recurringSlotColumns = "id, teacher_id, student_id, day_of_week, start_time, duration_minutes, monthly_rate_cents, status, version, created_at, updated_at"

// RecurringSlotRepository provides persistence for weekly subscriptions.
type RecurringSlotRepository struct {
	db *sqlx.DB
}

// NewRecurringSlotRepository creates a new recurring slot repository.
func NewRecurringSlotRepository(db *sqlx.DB) *RecurringSlotRepository {
	return &RecurringSlotRepository{db: db}
}

// FindByID loads a slot by id. Missing rows surface as sql.ErrNoRows.
func (r *RecurringSlotRepository) FindByID(ctx context.Context, id string) (*models.RecurringSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM recurring_slots WHERE id = $1", recurringSlotColumns)
	var slot models.RecurringSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListActiveByTeacher returns a teacher's ACTIVE subscriptions.
func (r *RecurringSlotRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.RecurringSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM recurring_slots WHERE teacher_id = $1 AND status = $2 ORDER BY day_of_week ASC, start_time ASC", recurringSlotColumns)
	var slots []models.RecurringSlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID, models.RecurringSlotActive); err != nil {
		return nil, database.Classify("list teacher recurring slots", err)
	}
	return slots, nil
}

// ListActiveByStudent returns a student's ACTIVE subscriptions.
func (r *RecurringSlotRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.RecurringSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM recurring_slots WHERE student_id = $1 AND status = $2 ORDER BY day_of_week ASC, start_time ASC", recurringSlotColumns)
	var slots []models.RecurringSlot
	if err := r.db.SelectContext(ctx, &slots, query, studentID, models.RecurringSlotActive); err != nil {
		return nil, database.Classify("list student recurring slots", err)
	}
	return slots, nil
}

// Create inserts a subscription on the provided executor.
func (r *RecurringSlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.RecurringSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.Status == "" {
		slot.Status = models.RecurringSlotActive
	}
	if slot.Version == 0 {
		slot.Version = 1
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO recurring_slots (id, teacher_id, student_id, day_of_week, start_time, duration_minutes, monthly_rate_cents, status, version, created_at, updated_at)
		VALUES (:id, :teacher_id, :student_id, :day_of_week, :start_time, :duration_minutes, :monthly_rate_cents, :status, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, slot); err != nil {
		return database.Classify("create recurring slot", err)
	}
	return nil
}

// ConditionalUpdate applies the patch only where id and version both match,
// incrementing the version. Returns whether a row was written.
func (r *RecurringSlotRepository) ConditionalUpdate(ctx context.Context, id string, expectedVersion int, patch models.RecurringSlotPatch) (bool, error) {
	sets := []string{"version = version + 1", "updated_at = $1"}
	args := []interface{}{time.Now().UTC()}

	if patch.Status != nil {
		args = append(args, *patch.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}

	args = append(args, id)
	idArg := len(args)
	args = append(args, expectedVersion)
	versionArg := len(args)

	query := fmt.Sprintf("UPDATE recurring_slots SET %s WHERE id = $%d AND version = $%d", strings.Join(sets, ", "), idArg, versionArg)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.Classify("conditional update recurring slot", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, database.Classify("conditional update recurring slot", err)
	}
	return affected > 0, nil
}
