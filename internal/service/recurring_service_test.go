package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

type fakeSlotStore struct {
	slots  map[string]*models.RecurringSlot
	nextID int
}

func newFakeSlotStore() *fakeSlotStore {
	return &fakeSlotStore{slots: make(map[string]*models.RecurringSlot)}
}

func (f *fakeSlotStore) FindByID(_ context.Context, id string) (*models.RecurringSlot, error) {
	slot, ok := f.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *slot
	return &copied, nil
}

func (f *fakeSlotStore) ListActiveByTeacher(_ context.Context, teacherID string) ([]models.RecurringSlot, error) {
	var out []models.RecurringSlot
	for _, slot := range f.slots {
		if slot.TeacherID == teacherID && slot.Status == models.RecurringSlotActive {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (f *fakeSlotStore) ListActiveByStudent(_ context.Context, studentID string) ([]models.RecurringSlot, error) {
	var out []models.RecurringSlot
	for _, slot := range f.slots {
		if slot.StudentID == studentID && slot.Status == models.RecurringSlotActive {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (f *fakeSlotStore) Create(_ context.Context, _ sqlx.ExtContext, slot *models.RecurringSlot) error {
	f.nextID++
	if slot.ID == "" {
		slot.ID = fmt.Sprintf("slot-%d", f.nextID)
	}
	if slot.Status == "" {
		slot.Status = models.RecurringSlotActive
	}
	if slot.Version == 0 {
		slot.Version = 1
	}
	copied := *slot
	f.slots[slot.ID] = &copied
	return nil
}

func (f *fakeSlotStore) ConditionalUpdate(_ context.Context, id string, expectedVersion int, patch models.RecurringSlotPatch) (bool, error) {
	slot, ok := f.slots[id]
	if !ok || slot.Version != expectedVersion {
		return false, nil
	}
	if patch.Status != nil {
		slot.Status = *patch.Status
	}
	slot.Version++
	return true, nil
}

type fakeTeacherReader struct {
	teachers map[string]*models.Teacher
}

func (f *fakeTeacherReader) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	teacher, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return teacher, nil
}

func newRecurringService(slots *fakeSlotStore, lessons *fakeLessonStore) *RecurringService {
	teachers := &fakeTeacherReader{teachers: map[string]*models.Teacher{
		"t-1": {ID: "t-1", Email: "t@example.com", FullName: "Teacher", Timezone: "UTC", Active: true},
	}}
	validator := newValidator(defaultSettings(), nil, true, &stubSlotFinder{offset: 10 * time.Hour, available: true})
	svc := NewRecurringService(slots, lessons, teachers, validator, &fakeTxRunner{}, nil, nil, nil, nil)
	svc.now = func() time.Time { return monday.AddDate(0, 0, -3) }
	return svc
}

func TestCreateIndefiniteBillsFlatMonthlyRate(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	svc := newRecurringService(slots, lessons)

	slot, err := svc.CreateIndefinite(context.Background(), CreateRecurringSlotRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		DayOfWeek:       1,
		StartTime:       "10:00",
		DurationMinutes: 60,
	})
	require.NoError(t, err)

	// Four weekly occurrences at the 60 minute price, regardless of how
	// many Mondays the calendar month holds.
	assert.Equal(t, int64(20000), slot.MonthlyRateCents)
	assert.Equal(t, models.RecurringSlotActive, slot.Status)
	assert.Equal(t, 1, slot.DayOfWeek)
	assert.Equal(t, "10:00", slot.StartTime)
}

func TestCreateIndefiniteMaterializesFirstMonth(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	svc := newRecurringService(slots, lessons)

	slot, err := svc.CreateIndefinite(context.Background(), CreateRecurringSlotRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		DayOfWeek:       1,
		StartTime:       "10:00",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.Len(t, lessons.lessons, 4)

	first := monday.Add(10 * time.Hour)
	for _, lesson := range lessons.lessons {
		require.NotNil(t, lesson.RecurringSlotID)
		assert.Equal(t, slot.ID, *lesson.RecurringSlotID)
		assert.Equal(t, models.LessonScheduled, lesson.Status)
		assert.Equal(t, int64(5000), lesson.PriceCents)
		assert.Equal(t, time.Monday, lesson.StartsAt.Weekday())
		assert.False(t, lesson.StartsAt.Before(first))
	}
}

func TestCreateIndefiniteRejectsConflictingOccurrence(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	require.NoError(t, lessons.Create(context.Background(), nil, &models.Lesson{
		ID: "existing", TeacherID: "t-1", StudentID: "other",
		StartsAt: monday.Add(10 * time.Hour).AddDate(0, 0, 7), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	svc := newRecurringService(slots, lessons)

	_, err := svc.CreateIndefinite(context.Background(), CreateRecurringSlotRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		DayOfWeek:       1,
		StartTime:       "10:00",
		DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, lessons.lessons, 1, "no subscription lessons may survive the conflict")
}

func TestCreateIndefiniteRejectsBadStartTime(t *testing.T) {
	svc := newRecurringService(newFakeSlotStore(), newFakeLessonStore())

	_, err := svc.CreateIndefinite(context.Background(), CreateRecurringSlotRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		DayOfWeek:       1,
		StartTime:       "25:99",
		DurationMinutes: 60,
	})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerateMissingLessonsBackfillsAndIsIdempotent(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	svc := newRecurringService(slots, lessons)

	created := monday.AddDate(0, 0, -14)
	require.NoError(t, slots.Create(context.Background(), nil, &models.RecurringSlot{
		ID: "slot-1", TeacherID: "t-1", StudentID: "s-1",
		DayOfWeek: 1, StartTime: "10:00", DurationMinutes: 60,
		MonthlyRateCents: 20000, Status: models.RecurringSlotActive,
	}))
	slots.slots["slot-1"].CreatedAt = created

	from := monday
	to := monday.AddDate(0, 0, 14)

	count, err := svc.GenerateMissingLessons(context.Background(), "t-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "two Mondays in the range")
	assert.Len(t, lessons.lessons, 2)

	// Concurrent backfills must not both pass the in-transaction conflict
	// re-check; the insert runs serializable like the booking path.
	runner := svc.tx.(*fakeTxRunner)
	assert.Equal(t, sql.LevelSerializable, runner.lastOpt.Isolation)
	for _, lesson := range lessons.lessons {
		assert.Equal(t, int64(5000), lesson.PriceCents, "per lesson price derived from the monthly rate")
		require.NotNil(t, lesson.RecurringSlotID)
		assert.Equal(t, "slot-1", *lesson.RecurringSlotID)
	}

	count, err = svc.GenerateMissingLessons(context.Background(), "t-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "second run must not duplicate")
	assert.Len(t, lessons.lessons, 2)
}

func TestGenerateMissingLessonsSkipsBeforeSlotCreation(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	svc := newRecurringService(slots, lessons)

	require.NoError(t, slots.Create(context.Background(), nil, &models.RecurringSlot{
		ID: "slot-1", TeacherID: "t-1", StudentID: "s-1",
		DayOfWeek: 1, StartTime: "10:00", DurationMinutes: 60,
		MonthlyRateCents: 20000, Status: models.RecurringSlotActive,
	}))
	// The slot was opened mid-range; earlier Mondays are not back-filled.
	slots.slots["slot-1"].CreatedAt = monday.AddDate(0, 0, 7)

	count, err := svc.GenerateMissingLessons(context.Background(), "t-1", monday, monday.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGenerateMissingLessonsHonorsCancelledOccurrence(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	svc := newRecurringService(slots, lessons)

	require.NoError(t, slots.Create(context.Background(), nil, &models.RecurringSlot{
		ID: "slot-1", TeacherID: "t-1", StudentID: "s-1",
		DayOfWeek: 1, StartTime: "10:00", DurationMinutes: 60,
		MonthlyRateCents: 20000, Status: models.RecurringSlotActive,
	}))
	slots.slots["slot-1"].CreatedAt = monday.AddDate(0, 0, -14)

	// The student cancelled this occurrence. The cancellation is terminal;
	// the next backfill must not resurrect the lesson.
	slotID := "slot-1"
	require.NoError(t, lessons.Create(context.Background(), nil, &models.Lesson{
		ID: "cancelled-occurrence", TeacherID: "t-1", StudentID: "s-1",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 60,
		Status: models.LessonCancelled, RecurringSlotID: &slotID,
	}))

	count, err := svc.GenerateMissingLessons(context.Background(), "t-1", monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.Len(t, lessons.lessons, 1)
	assert.Equal(t, models.LessonCancelled, lessons.lessons["cancelled-occurrence"].Status)
}

func TestGenerateMissingLessonsSkipsConflicts(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	require.NoError(t, lessons.Create(context.Background(), nil, &models.Lesson{
		ID: "other", TeacherID: "t-1", StudentID: "other",
		StartsAt: monday.Add(10 * time.Hour), DurationMinutes: 30, Status: models.LessonScheduled,
	}))
	svc := newRecurringService(slots, lessons)

	require.NoError(t, slots.Create(context.Background(), nil, &models.RecurringSlot{
		ID: "slot-1", TeacherID: "t-1", StudentID: "s-1",
		DayOfWeek: 1, StartTime: "10:00", DurationMinutes: 60,
		MonthlyRateCents: 20000, Status: models.RecurringSlotActive,
	}))
	slots.slots["slot-1"].CreatedAt = monday.AddDate(0, 0, -14)

	count, err := svc.GenerateMissingLessons(context.Background(), "t-1", monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 0, count, "a competing lesson at the occurrence is skipped, not overwritten")
	assert.Len(t, lessons.lessons, 1)
}

func TestCancelSlotLeavesLessonsAlone(t *testing.T) {
	slots := newFakeSlotStore()
	lessons := newFakeLessonStore()
	svc := newRecurringService(slots, lessons)

	slot, err := svc.CreateIndefinite(context.Background(), CreateRecurringSlotRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		DayOfWeek:       1,
		StartTime:       "10:00",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.Len(t, lessons.lessons, 4)

	cancelled, err := svc.CancelSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringSlotCancelled, cancelled.Status)
	assert.Equal(t, 2, cancelled.Version)

	for _, lesson := range lessons.lessons {
		assert.Equal(t, models.LessonScheduled, lesson.Status, "materialized lessons stay scheduled")
	}

	_, err = svc.CancelSlot(context.Background(), slot.ID)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, "cancelling twice is rejected")
}

func TestCancelSlotMissing(t *testing.T) {
	svc := newRecurringService(newFakeSlotStore(), newFakeLessonStore())
	_, err := svc.CancelSlot(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
