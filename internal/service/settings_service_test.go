package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

type fakeSettingsStore struct {
	settings map[string]*models.LessonSettings
	err      error
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{settings: make(map[string]*models.LessonSettings)}
}

func (f *fakeSettingsStore) GetByTeacher(_ context.Context, teacherID string) (*models.LessonSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	settings, ok := f.settings[teacherID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return settings, nil
}

func (f *fakeSettingsStore) Upsert(_ context.Context, settings *models.LessonSettings) error {
	if f.err != nil {
		return f.err
	}
	f.settings[settings.TeacherID] = settings
	return nil
}

func validSettingsRequest() UpsertSettingsRequest {
	return UpsertSettingsRequest{
		TeacherID:          "t-1",
		Allows30Min:        true,
		Allows60Min:        true,
		Price30Cents:       2500,
		Price60Cents:       5000,
		AdvanceBookingDays: 30,
	}
}

func TestUpsertSettings(t *testing.T) {
	store := newFakeSettingsStore()
	svc := NewSettingsService(store, nil, nil, nil)

	saved, err := svc.Upsert(context.Background(), validSettingsRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2500), saved.Price30Cents)
	assert.Equal(t, int64(5000), saved.Price60Cents)
	assert.Equal(t, 30, saved.AdvanceBookingDays)

	got, err := svc.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestUpsertSettingsRequiresOneDuration(t *testing.T) {
	svc := NewSettingsService(newFakeSettingsStore(), nil, nil, nil)

	req := validSettingsRequest()
	req.Allows30Min = false
	req.Allows60Min = false

	_, err := svc.Upsert(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	var failure *models.ValidationFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "at least one lesson duration must be enabled", failure.Reason)
}

func TestUpsertSettingsRequiresPriceForEnabledDuration(t *testing.T) {
	svc := NewSettingsService(newFakeSettingsStore(), nil, nil, nil)

	req := validSettingsRequest()
	req.Price60Cents = 0

	_, err := svc.Upsert(context.Background(), req)
	require.Error(t, err)
	var failure *models.ValidationFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "price_60_cents", failure.Field)
}

func TestUpsertSettingsDisabledDurationMayBeFree(t *testing.T) {
	svc := NewSettingsService(newFakeSettingsStore(), nil, nil, nil)

	req := validSettingsRequest()
	req.Allows30Min = false
	req.Price30Cents = 0

	_, err := svc.Upsert(context.Background(), req)
	assert.NoError(t, err)
}

func TestUpsertSettingsRejectsHorizonOutOfRange(t *testing.T) {
	svc := NewSettingsService(newFakeSettingsStore(), nil, nil, nil)

	for _, days := range []int{0, 366} {
		req := validSettingsRequest()
		req.AdvanceBookingDays = days
		_, err := svc.Upsert(context.Background(), req)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestGetSettingsNotConfigured(t *testing.T) {
	svc := NewSettingsService(newFakeSettingsStore(), nil, nil, nil)

	_, err := svc.Get(context.Background(), "t-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetSettingsStoreFailure(t *testing.T) {
	store := newFakeSettingsStore()
	store.err = errors.New("connection reset")
	svc := NewSettingsService(store, nil, nil, nil)

	_, err := svc.Get(context.Background(), "t-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErrors.FromError(err).Code)
}
