package repository

import (
	"context"
	"database/sql"
	"errors"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"

	"github.com/jmoiron/sqlx"
)

// CourseRepository is the read path for course rows. It shares the
// connection pool with the gorm repositories.
type CourseRepository struct {
	db *sqlx.DB
}

func NewCourseRepository(db *sqlx.DB) interfaces.CourseRepository {
	return &CourseRepository{
		db: db,
	}
}

const courseColumns = `course_id, name, capacity, price, currency, version, created_at, updated_at`

func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*domain.Course, error) {
	var course domain.Course
	query := `SELECT ` + courseColumns + ` FROM courses WHERE course_id = $1`
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

// GetActiveEnrollmentCount counts confirmed enrollments for the course.
func (r *CourseRepository) GetActiveEnrollmentCount(ctx context.Context, courseID int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, courseID); err != nil {
		return 0, err
	}
	return count, nil
}
