package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
)

type fakeTeacherStore struct {
	teachers  map[string]*models.Teacher
	createErr error
}

func newFakeTeacherStore() *fakeTeacherStore {
	return &fakeTeacherStore{teachers: make(map[string]*models.Teacher)}
}

func (f *fakeTeacherStore) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	teacher, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return teacher, nil
}

func (f *fakeTeacherStore) FindByEmail(_ context.Context, email string) (*models.Teacher, error) {
	for _, teacher := range f.teachers {
		if teacher.Email == email {
			return teacher, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeacherStore) Create(_ context.Context, teacher *models.Teacher) error {
	if f.createErr != nil {
		return f.createErr
	}
	teacher.ID = "t-1"
	f.teachers[teacher.ID] = teacher
	return nil
}

type fakeStudentStore struct {
	students map[string]*models.Student
	links    map[string][]string
}

func newFakeStudentStore() *fakeStudentStore {
	return &fakeStudentStore{students: make(map[string]*models.Student), links: make(map[string][]string)}
}

func (f *fakeStudentStore) FindByID(_ context.Context, id string) (*models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func (f *fakeStudentStore) Create(_ context.Context, student *models.Student) error {
	student.ID = "s-1"
	f.students[student.ID] = student
	return nil
}

func (f *fakeStudentStore) RelationshipExists(_ context.Context, teacherID, studentID string) (bool, error) {
	for _, id := range f.links[teacherID] {
		if id == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStudentStore) CreateRelationship(_ context.Context, teacherID, studentID string) error {
	for _, id := range f.links[teacherID] {
		if id == studentID {
			return nil
		}
	}
	f.links[teacherID] = append(f.links[teacherID], studentID)
	return nil
}

func (f *fakeStudentStore) ListByTeacher(_ context.Context, teacherID string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range f.links[teacherID] {
		out = append(out, *f.students[id])
	}
	return out, nil
}

func newRosterService(teachers *fakeTeacherStore, students *fakeStudentStore) *RosterService {
	return NewRosterService(teachers, students, nil, nil)
}

func TestCreateTeacher(t *testing.T) {
	svc := newRosterService(newFakeTeacherStore(), newFakeStudentStore())

	teacher, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{
		Email:    "t@example.com",
		FullName: "Teacher",
		Timezone: "America/New_York",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", teacher.ID)
	assert.True(t, teacher.Active)
}

func TestCreateTeacherRejectsUnknownTimezone(t *testing.T) {
	svc := newRosterService(newFakeTeacherStore(), newFakeStudentStore())

	_, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{
		Email:    "t@example.com",
		FullName: "Teacher",
		Timezone: "Mars/Olympus_Mons",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateTeacherDuplicateEmail(t *testing.T) {
	teachers := newFakeTeacherStore()
	// The driver error arrives wrapped the way the repository layer wraps it.
	teachers.createErr = database.Classify("create teacher", &pq.Error{Code: "23505"})
	svc := newRosterService(teachers, newFakeStudentStore())

	_, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{
		Email:    "t@example.com",
		FullName: "Teacher",
		Timezone: "UTC",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLinkStudentIsIdempotent(t *testing.T) {
	teachers := newFakeTeacherStore()
	students := newFakeStudentStore()
	svc := newRosterService(teachers, students)

	_, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{Email: "t@example.com", FullName: "Teacher", Timezone: "UTC"})
	require.NoError(t, err)
	_, err = svc.CreateStudent(context.Background(), CreateStudentRequest{Email: "s@example.com", FullName: "Student"})
	require.NoError(t, err)

	require.NoError(t, svc.LinkStudent(context.Background(), "t-1", "s-1"))
	require.NoError(t, svc.LinkStudent(context.Background(), "t-1", "s-1"))

	listed, err := svc.ListStudents(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestLinkStudentRequiresBothParties(t *testing.T) {
	teachers := newFakeTeacherStore()
	svc := newRosterService(teachers, newFakeStudentStore())

	err := svc.LinkStudent(context.Background(), "t-1", "s-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateTeacher(context.Background(), CreateTeacherRequest{Email: "t@example.com", FullName: "Teacher", Timezone: "UTC"})
	require.NoError(t, err)

	err = svc.LinkStudent(context.Background(), "t-1", "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
