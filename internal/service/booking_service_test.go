package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/txn"
)

// fakeLessonStore keeps lessons in memory and mimics the repository contract,
// including version-guarded conditional updates.
type fakeLessonStore struct {
	lessons   map[string]*models.Lesson
	nextID    int
	createErr error
	// beforeUpdate runs once before the next conditional update, letting
	// tests interleave a competing write.
	beforeUpdate func()
}

func newFakeLessonStore() *fakeLessonStore {
	return &fakeLessonStore{lessons: make(map[string]*models.Lesson)}
}

func (f *fakeLessonStore) FindByID(_ context.Context, id string) (*models.Lesson, error) {
	lesson, ok := f.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *lesson
	return &copied, nil
}

func (f *fakeLessonStore) FindActiveAt(_ context.Context, _ sqlx.ExtContext, teacherID string, at time.Time) (*models.Lesson, error) {
	for _, lesson := range f.lessons {
		if lesson.TeacherID == teacherID && lesson.StartsAt.Equal(at) && lesson.Status != models.LessonCancelled {
			copied := *lesson
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeLessonStore) ExistsAt(_ context.Context, teacherID, studentID string, at time.Time) (bool, error) {
	for _, lesson := range f.lessons {
		if lesson.TeacherID == teacherID && lesson.StudentID == studentID && lesson.StartsAt.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLessonStore) Create(_ context.Context, _ sqlx.ExtContext, lesson *models.Lesson) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	if lesson.ID == "" {
		lesson.ID = fmt.Sprintf("lesson-%d", f.nextID)
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonScheduled
	}
	if lesson.Version == 0 {
		lesson.Version = 1
	}
	copied := *lesson
	f.lessons[lesson.ID] = &copied
	return nil
}

func (f *fakeLessonStore) BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson) error {
	for i := range lessons {
		if err := f.Create(ctx, exec, &lessons[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLessonStore) ConditionalUpdate(_ context.Context, id string, expectedVersion int, patch models.LessonPatch) (bool, error) {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
		f.beforeUpdate = nil
	}
	lesson, ok := f.lessons[id]
	if !ok || lesson.Version != expectedVersion {
		return false, nil
	}
	if patch.Status != nil {
		lesson.Status = *patch.Status
	}
	if patch.Notes != nil {
		lesson.Notes = patch.Notes
	}
	lesson.Version++
	return true, nil
}

// fakeTxRunner invokes the function directly; the fake store has no real
// transactions so commit semantics are the store's own.
type fakeTxRunner struct {
	execs   int
	lastOpt txn.Options
	err     error
}

func (f *fakeTxRunner) Execute(ctx context.Context, opts txn.Options, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	f.execs++
	f.lastOpt = opts
	if f.err != nil {
		return f.err
	}
	return fn(ctx, nil)
}

func newBookingService(store *fakeLessonStore, runner *fakeTxRunner) *BookingService {
	validator := newValidator(defaultSettings(), nil, true, &stubSlotFinder{offset: 10 * time.Hour, available: true})
	svc := NewBookingService(store, validator, runner, nil, nil, nil, nil)
	svc.now = func() time.Time { return monday.AddDate(0, 0, -3) }
	return svc
}

func bookRequest() BookLessonRequest {
	return BookLessonRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		StartsAt:        monday.Add(10 * time.Hour),
		DurationMinutes: 60,
		Timezone:        "UTC",
	}
}

func TestBookSingleCreatesScheduledLesson(t *testing.T) {
	store := newFakeLessonStore()
	runner := &fakeTxRunner{}
	svc := newBookingService(store, runner)

	lesson, err := svc.BookSingle(context.Background(), bookRequest())
	require.NoError(t, err)
	assert.Equal(t, models.LessonScheduled, lesson.Status)
	assert.Equal(t, int64(5000), lesson.PriceCents, "priced from the teacher's settings")
	assert.True(t, lesson.StartsAt.Equal(monday.Add(10*time.Hour)))
	assert.Nil(t, lesson.RecurringBatchID)
	assert.Len(t, store.lessons, 1)
	assert.Equal(t, "booking", runner.lastOpt.Label)
	assert.Equal(t, sql.LevelSerializable, runner.lastOpt.Isolation)
}

func TestBookSingleConflictInsideTransaction(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "existing", TeacherID: "t-1", StudentID: "other",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	// The slot finder still reports the slot available, mimicking a race
	// where the competing booking landed after validation.
	svc := newBookingService(store, &fakeTxRunner{})

	_, err := svc.BookSingle(context.Background(), bookRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	var conflict *models.BookingConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "existing", conflict.ConflictingLessonID)
	assert.Len(t, store.lessons, 1, "no second lesson may exist")
}

func TestBookSingleRejectsInvalidPayload(t *testing.T) {
	svc := newBookingService(newFakeLessonStore(), &fakeTxRunner{})

	req := bookRequest()
	req.DurationMinutes = 45
	_, err := svc.BookSingle(context.Background(), req)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookFixedBatchSharesBatchTag(t *testing.T) {
	store := newFakeLessonStore()
	runner := &fakeTxRunner{}
	svc := newBookingService(store, runner)

	lessons, err := svc.BookFixedBatch(context.Background(), BookBatchRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		StartsAt:        monday.Add(10 * time.Hour),
		DurationMinutes: 30,
		Timezone:        "UTC",
		Weeks:           4,
	})
	require.NoError(t, err)
	require.Len(t, lessons, 4)

	batchID := lessons[0].RecurringBatchID
	require.NotNil(t, batchID)
	for i, lesson := range lessons {
		require.NotNil(t, lesson.RecurringBatchID)
		assert.Equal(t, *batchID, *lesson.RecurringBatchID)
		expected := monday.Add(10 * time.Hour).AddDate(0, 0, 7*i)
		assert.True(t, lesson.StartsAt.Equal(expected), "week %d", i)
	}
	assert.Equal(t, 1, runner.execs, "all weeks commit in one transaction")
	assert.Equal(t, "bulk", runner.lastOpt.Label)
	assert.Equal(t, 0, runner.lastOpt.Retries)
}

func TestBookFixedBatchConflictAbortsWholeBatch(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "existing", TeacherID: "t-1", StudentID: "other",
		StartsAt: monday.Add(10 * time.Hour).AddDate(0, 0, 14), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	svc := newBookingService(store, &fakeTxRunner{})

	_, err := svc.BookFixedBatch(context.Background(), BookBatchRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		StartsAt:        monday.Add(10 * time.Hour),
		DurationMinutes: 30,
		Timezone:        "UTC",
		Weeks:           4,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, store.lessons, 1, "conflict aborts before any insert")
}

func TestBookFixedBatchRejectsWeekBounds(t *testing.T) {
	svc := newBookingService(newFakeLessonStore(), &fakeTxRunner{})
	for _, weeks := range []int{0, 1, 53} {
		_, err := svc.BookFixedBatch(context.Background(), BookBatchRequest{
			TeacherID:       "t-1",
			StudentID:       "s-1",
			StartsAt:        monday.Add(10 * time.Hour),
			DurationMinutes: 30,
			Timezone:        "UTC",
			Weeks:           weeks,
		})
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, "weeks=%d", weeks)
	}
}

func TestCancelScheduledLesson(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "lesson-1", TeacherID: "t-1", StudentID: "s-1",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	svc := newBookingService(store, &fakeTxRunner{})

	cancelled, err := svc.Cancel(context.Background(), "lesson-1", "student request")
	require.NoError(t, err)
	assert.Equal(t, models.LessonCancelled, cancelled.Status)
	assert.Equal(t, 2, cancelled.Version)
	require.NotNil(t, cancelled.Notes)
	assert.Equal(t, "cancelled: student request", *cancelled.Notes)
}

func TestCancelRejectsStartedLesson(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "lesson-1", TeacherID: "t-1", StudentID: "s-1",
		StartsAt: monday.AddDate(0, 0, -7), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	svc := newBookingService(store, &fakeTxRunner{})

	_, err := svc.Cancel(context.Background(), "lesson-1", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCancelIsTerminal(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "lesson-1", TeacherID: "t-1", StudentID: "s-1",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 30, Status: models.LessonCancelled,
	}))
	svc := newBookingService(store, &fakeTxRunner{})

	_, err := svc.Cancel(context.Background(), "lesson-1", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCancelMissingLesson(t *testing.T) {
	svc := newBookingService(newFakeLessonStore(), &fakeTxRunner{})
	_, err := svc.Cancel(context.Background(), "missing", "")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCancelConcurrentModification(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "lesson-1", TeacherID: "t-1", StudentID: "s-1",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	svc := newBookingService(store, &fakeTxRunner{})

	// A competing writer bumps the version between the read and the update.
	store.beforeUpdate = func() { store.lessons["lesson-1"].Version = 7 }

	_, err := svc.Cancel(context.Background(), "lesson-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOptimisticLock.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.LessonScheduled, store.lessons["lesson-1"].Status)
}

func TestCompleteScheduledLesson(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "lesson-1", TeacherID: "t-1", StudentID: "s-1",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	svc := newBookingService(store, &fakeTxRunner{})

	completed, err := svc.Complete(context.Background(), "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonCompleted, completed.Status)
	assert.Equal(t, 2, completed.Version)
}

func TestCompleteRejectsNonScheduled(t *testing.T) {
	store := newFakeLessonStore()
	require.NoError(t, store.Create(context.Background(), nil, &models.Lesson{
		ID: "lesson-1", TeacherID: "t-1", StudentID: "s-1",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 30, Status: models.LessonCancelled,
	}))
	svc := newBookingService(store, &fakeTxRunner{})

	_, err := svc.Complete(context.Background(), "lesson-1")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookSingleSurfacesStoreFailures(t *testing.T) {
	store := newFakeLessonStore()
	store.createErr = errors.New("disk on fire")
	svc := newBookingService(store, &fakeTxRunner{})

	_, err := svc.BookSingle(context.Background(), bookRequest())
	require.Error(t, err)
	assert.NotEqual(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
