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
)

func newSQLXMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCourseRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newSQLXMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"course_id", "name", "capacity", "price", "currency", "version", "created_at", "updated_at"}).
		AddRow(int64(101), "Math 101", 1, int64(5000), "usd", 3, now, now)
	mock.ExpectQuery(`SELECT course_id, name, capacity, price, currency, version, created_at, updated_at FROM courses WHERE course_id = \$1`).
		WithArgs(int64(101)).
		WillReturnRows(rows)

	course, err := repo.GetByID(context.Background(), 101)
	require.NoError(t, err)
	require.NotNil(t, course)
	assert.Equal(t, "Math 101", course.Name)
	assert.Equal(t, 1, course.Capacity)
	assert.Equal(t, int64(5000), course.Price)
	assert.Equal(t, 3, course.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newSQLXMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(`FROM courses WHERE course_id = \$1`).
		WithArgs(int64(999)).
		WillReturnError(sql.ErrNoRows)

	course, err := repo.GetByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, course)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryGetActiveEnrollmentCount(t *testing.T) {
	db, mock, cleanup := newSQLXMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments WHERE course_id = \$1`).
		WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.GetActiveEnrollmentCount(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
