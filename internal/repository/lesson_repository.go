package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
)

const lessonColumns = "id, teacher_id, student_id, starts_at, duration_minutes, status, price_cents, recurring_batch_id, recurring_slot_id, notes, version, created_at, updated_at"

// LessonRepository provides persistence for lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository creates a new lesson repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID loads a lesson by id. Missing rows surface as sql.ErrNoRows.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE id = $1", lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListActiveByTeacherBetween returns non-cancelled lessons whose interval may
// intersect [from, to), ordered by start time.
func (r *LessonRepository) ListActiveByTeacherBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE teacher_id = $1 AND status <> $2 AND starts_at < $3 AND starts_at + (duration_minutes * INTERVAL '1 minute') > $4 ORDER BY starts_at ASC`, lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, teacherID, models.LessonCancelled, to, from); err != nil {
		return nil, database.Classify("list teacher lessons", err)
	}
	return lessons, nil
}

// ListCompletedByStudentBetween returns a student's completed lessons in the
// range, for invoicing.
func (r *LessonRepository) ListCompletedByStudentBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE student_id = $1 AND status = $2 AND starts_at >= $3 AND starts_at < $4 ORDER BY starts_at ASC`, lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, studentID, models.LessonCompleted, from, to); err != nil {
		return nil, database.Classify("list student completed lessons", err)
	}
	return lessons, nil
}

// FindActiveAt returns the non-cancelled lesson starting at exactly the given
// instant for the teacher, or nil. Runs on the provided executor so booking
// can re-check inside its transaction.
func (r *LessonRepository) FindActiveAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, at time.Time) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE teacher_id = $1 AND starts_at = $2 AND status <> $3 LIMIT 1`, lessonColumns)
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, exec, &lesson, query, teacherID, at, models.LessonCancelled); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, database.Classify("find lesson at instant", err)
	}
	return &lesson, nil
}

// ExistsAt reports whether any lesson row exists for the exact
// teacher/student/instant triple, in any status. Backfill uses this for
// idempotence: a cancelled occurrence still counts, so cancelling one
// materialized lesson sticks instead of being regenerated on the next read.
func (r *LessonRepository) ExistsAt(ctx context.Context, teacherID, studentID string, at time.Time) (bool, error) {
	const query = `SELECT 1 FROM lessons WHERE teacher_id = $1 AND student_id = $2 AND starts_at = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, studentID, at); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, database.Classify("check lesson exists", err)
	}
	return true, nil
}

// Create inserts a lesson on the provided executor.
func (r *LessonRepository) Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	prepareLesson(lesson)
	const query = `INSERT INTO lessons (id, teacher_id, student_id, starts_at, duration_minutes, status, price_cents, recurring_batch_id, recurring_slot_id, notes, version, created_at, updated_at)
		VALUES (:id, :teacher_id, :student_id, :starts_at, :duration_minutes, :status, :price_cents, :recurring_batch_id, :recurring_slot_id, :notes, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, lesson); err != nil {
		return database.Classify("create lesson", err)
	}
	return nil
}

// BulkCreate inserts lessons on the provided executor. Callers own the
// surrounding transaction so partial batches never survive.
func (r *LessonRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson) error {
	for i := range lessons {
		payload := lessons[i]
		prepareLesson(&payload)
		const query = `INSERT INTO lessons (id, teacher_id, student_id, starts_at, duration_minutes, status, price_cents, recurring_batch_id, recurring_slot_id, notes, version, created_at, updated_at)
			VALUES (:id, :teacher_id, :student_id, :starts_at, :duration_minutes, :status, :price_cents, :recurring_batch_id, :recurring_slot_id, :notes, :version, :created_at, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, exec, query, &payload); err != nil {
			return database.Classify("bulk insert lesson", err)
		}
		lessons[i] = payload
	}
	return nil
}

// ConditionalUpdate applies the patch only where id and version both match,
// incrementing the version. Returns whether a row was written.
func (r *LessonRepository) ConditionalUpdate(ctx context.Context, id string, expectedVersion int, patch models.LessonPatch) (bool, error) {
	sets := []string{"version = version + 1", "updated_at = $1"}
	args := []interface{}{time.Now().UTC()}

	if patch.Status != nil {
		args = append(args, *patch.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if patch.Notes != nil {
		args = append(args, *patch.Notes)
		sets = append(sets, fmt.Sprintf("notes = $%d", len(args)))
	}

	args = append(args, id)
	idArg := len(args)
	args = append(args, expectedVersion)
	versionArg := len(args)

	query := fmt.Sprintf("UPDATE lessons SET %s WHERE id = $%d AND version = $%d", strings.Join(sets, ", "), idArg, versionArg)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.Classify("conditional update lesson", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, database.Classify("conditional update lesson", err)
	}
	return affected > 0, nil
}

func prepareLesson(lesson *models.Lesson) {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonScheduled
	}
	if lesson.Version == 0 {
		lesson.Version = 1
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
}
