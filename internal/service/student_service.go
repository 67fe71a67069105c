package service

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	serviceInterfaces "course-checkout/internal/interfaces/service"
	apperrors "course-checkout/pkg/errors"
	"course-checkout/pkg/logger"
	"course-checkout/pkg/validator"
	"fmt"
	"strings"
	"time"
)

// studentService implements the StudentService interface
type studentService struct {
	studentRepo interfaces.StudentRepository
	now         func() time.Time
}

// NewStudentService creates a new student service
func NewStudentService(studentRepo interfaces.StudentRepository) serviceInterfaces.StudentService {
	return &studentService{
		studentRepo: studentRepo,
		now:         time.Now,
	}
}

// CreateStudent registers a student who can then hold seats
func (s *studentService) CreateStudent(ctx context.Context, req *serviceInterfaces.CreateStudentRequest) (*domain.Student, error) {
	if req == nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "request body is required")
	}
	if err := validator.ValidateStruct(req); err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrValidation, "")
	}

	logger.Info("Creating student %s %s", req.FirstName, req.LastName)

	student := &domain.Student{
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		EnrollmentDate: s.now().UTC(),
	}
	if err := s.studentRepo.Create(ctx, student); err != nil {
		logger.Error("Failed to create student: %v", err)
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to create student")
	}

	logger.Info("Student created successfully with ID: %d", student.StudentID)
	return student, nil
}

// GetStudent retrieves a student by ID
func (s *studentService) GetStudent(ctx context.Context, id int64) (*domain.Student, error) {
	logger.Debug("Getting student with ID: %d", id)

	student, err := s.studentRepo.GetByID(ctx, id)
	if err != nil {
		logger.Error("Failed to get student: %v", err)
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to get student")
	}
	if student == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, fmt.Sprintf("student %d not found", id))
	}

	return student, nil
}
