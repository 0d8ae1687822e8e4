package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func lessonRows(lessons ...models.Lesson) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "teacher_id", "student_id", "starts_at", "duration_minutes", "status",
		"price_cents", "recurring_batch_id", "recurring_slot_id", "notes", "version",
		"created_at", "updated_at",
	})
	for _, l := range lessons {
		rows.AddRow(l.ID, l.TeacherID, l.StudentID, l.StartsAt, l.DurationMinutes, l.Status,
			l.PriceCents, l.RecurringBatchID, l.RecurringSlotID, l.Notes, l.Version,
			l.CreatedAt, l.UpdatedAt)
	}
	return rows
}

func TestLessonFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	starts := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM lessons WHERE id = \$1`).
		WithArgs("lesson-1").
		WillReturnRows(lessonRows(models.Lesson{
			ID: "lesson-1", TeacherID: "t-1", StudentID: "s-1",
			StartsAt: starts, DurationMinutes: 30, Status: models.LessonScheduled,
			PriceCents: 2500, Version: 1,
		}))

	lesson, err := repo.FindByID(context.Background(), "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, "lesson-1", lesson.ID)
	assert.Equal(t, models.LessonScheduled, lesson.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonFindByIDMissingSurfacesNoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM lessons WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLessonFindActiveAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	at := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM lessons WHERE teacher_id = \$1 AND starts_at = \$2 AND status <> \$3`).
		WithArgs("t-1", at, string(models.LessonCancelled)).
		WillReturnRows(lessonRows(models.Lesson{ID: "lesson-1", TeacherID: "t-1", StartsAt: at, Version: 1}))

	lesson, err := repo.FindActiveAt(context.Background(), db, "t-1", at)
	require.NoError(t, err)
	require.NotNil(t, lesson)
	assert.Equal(t, "lesson-1", lesson.ID)
}

func TestLessonFindActiveAtEmptyIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	at := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM lessons WHERE teacher_id = \$1 AND starts_at = \$2 AND status <> \$3`).
		WithArgs("t-1", at, string(models.LessonCancelled)).
		WillReturnError(sql.ErrNoRows)

	lesson, err := repo.FindActiveAt(context.Background(), db, "t-1", at)
	require.NoError(t, err)
	assert.Nil(t, lesson)
}

func TestLessonExistsAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	at := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	// No status predicate: a cancelled row for the triple still counts.
	mock.ExpectQuery(`SELECT 1 FROM lessons WHERE teacher_id = \$1 AND student_id = \$2 AND starts_at = \$3 LIMIT 1`).
		WithArgs("t-1", "s-1", at).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsAt(context.Background(), "t-1", "s-1", at)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonCreateAssignsDefaults(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	mock.ExpectExec(`INSERT INTO lessons`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	lesson := &models.Lesson{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		StartsAt:        time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		PriceCents:      2500,
	}
	require.NoError(t, repo.Create(context.Background(), db, lesson))
	assert.NotEmpty(t, lesson.ID)
	assert.Equal(t, models.LessonScheduled, lesson.Status)
	assert.Equal(t, 1, lesson.Version)
	assert.False(t, lesson.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonBulkCreateInsertsEveryRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	mock.ExpectExec(`INSERT INTO lessons`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO lessons`).WillReturnResult(sqlmock.NewResult(0, 1))

	lessons := []models.Lesson{
		{TeacherID: "t-1", StudentID: "s-1", StartsAt: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), DurationMinutes: 30},
		{TeacherID: "t-1", StudentID: "s-1", StartsAt: time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC), DurationMinutes: 30},
	}
	require.NoError(t, repo.BulkCreate(context.Background(), db, lessons))
	assert.NotEmpty(t, lessons[0].ID)
	assert.NotEmpty(t, lessons[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonConditionalUpdateMatchesVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	mock.ExpectExec(`UPDATE lessons SET version = version \+ 1, updated_at = \$1, status = \$2 WHERE id = \$3 AND version = \$4`).
		WithArgs(sqlmock.AnyArg(), string(models.LessonCancelled), "lesson-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	status := models.LessonCancelled
	ok, err := repo.ConditionalUpdate(context.Background(), "lesson-1", 2, models.LessonPatch{Status: &status})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonConditionalUpdateStaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	mock.ExpectExec(`UPDATE lessons SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	status := models.LessonCancelled
	ok, err := repo.ConditionalUpdate(context.Background(), "lesson-1", 1, models.LessonPatch{Status: &status})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListActiveByTeacherBetweenExcludesCancelled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLessonRepository(db)

	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	mock.ExpectQuery(`SELECT .+ FROM lessons WHERE teacher_id = \$1 AND status <> \$2`).
		WithArgs("t-1", string(models.LessonCancelled), to, from).
		WillReturnRows(lessonRows(
			models.Lesson{ID: "lesson-1", TeacherID: "t-1", StartsAt: from.Add(9 * time.Hour), Version: 1},
		))

	lessons, err := repo.ListActiveByTeacherBetween(context.Background(), "t-1", from, to)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, "lesson-1", lessons[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
