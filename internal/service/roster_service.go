package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

type teacherStore interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
}

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	RelationshipExists(ctx context.Context, teacherID, studentID string) (bool, error)
	CreateRelationship(ctx context.Context, teacherID, studentID string) error
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Student, error)
}

// CreateTeacherRequest registers an instructor.
type CreateTeacherRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
	Timezone string `json:"timezone" validate:"required"`
}

// CreateStudentRequest registers a learner.
type CreateStudentRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
}

// RosterService manages teacher and student records and the links between
// them that bookings require.
type RosterService struct {
	teachers  teacherStore
	students  studentStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService instantiates RosterService.
func NewRosterService(teachers teacherStore, students studentStore, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{teachers: teachers, students: students, validator: validate, logger: logger}
}

// CreateTeacher registers an instructor. The timezone must name a real IANA
// zone; it anchors every wall-clock time the teacher publishes.
func (s *RosterService) CreateTeacher(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown timezone "+req.Timezone)
	}

	teacher := &models.Teacher{
		Email:    req.Email,
		FullName: req.FullName,
		Timezone: req.Timezone,
		Active:   true,
	}
	if err := s.teachers.Create(ctx, teacher); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a teacher with this email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create teacher")
	}
	return teacher, nil
}

// GetTeacher loads a teacher by id.
func (s *RosterService) GetTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load teacher")
	}
	return teacher, nil
}

// CreateStudent registers a learner.
func (s *RosterService) CreateStudent(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		Email:    req.Email,
		FullName: req.FullName,
		Active:   true,
	}
	if err := s.students.Create(ctx, student); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create student")
	}
	return student, nil
}

// LinkStudent records that a student studies with a teacher. Linking twice
// is a no-op.
func (s *RosterService) LinkStudent(ctx context.Context, teacherID, studentID string) error {
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load teacher")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}
	if err := s.students.CreateRelationship(ctx, teacherID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to link student")
	}
	return nil
}

// ListStudents returns the students linked to a teacher.
func (s *RosterService) ListStudents(ctx context.Context, teacherID string) ([]models.Student, error) {
	students, err := s.students.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list students")
	}
	return students, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
