package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
)

// StudentRepository manages persistence for students and their teacher
// relationships.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, email, full_name, active, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, email, full_name, active, created_at, updated_at)
		VALUES (:id, :email, :full_name, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return database.Classify("create student", err)
	}
	return nil
}

// RelationshipExists reports whether the student studies with the teacher.
func (r *StudentRepository) RelationshipExists(ctx context.Context, teacherID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_students WHERE teacher_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, database.Classify("check teacher student relationship", err)
	}
	return true, nil
}

// CreateRelationship links a student to a teacher.
func (r *StudentRepository) CreateRelationship(ctx context.Context, teacherID, studentID string) error {
	const query = `INSERT INTO teacher_students (id, teacher_id, student_id, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (teacher_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), teacherID, studentID, time.Now().UTC()); err != nil {
		return database.Classify("create teacher student relationship", err)
	}
	return nil
}

// ListByTeacher returns the students linked to a teacher.
func (r *StudentRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.email, s.full_name, s.active, s.created_at, s.updated_at FROM students s JOIN teacher_students ts ON ts.student_id = s.id WHERE ts.teacher_id = $1 ORDER BY s.full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, teacherID); err != nil {
		return nil, database.Classify("list teacher students", err)
	}
	return students, nil
}
