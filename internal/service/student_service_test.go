package service

import (
	"context"
	"testing"

	"course-checkout/internal/infrastructure/repository"
	serviceInterfaces "course-checkout/internal/interfaces/service"
	apperrors "course-checkout/pkg/errors"
)

func TestStudentService_CreateStudent(t *testing.T) {
	// Initialize dependencies
	store := repository.NewMemoryStore()
	studentService := NewStudentService(store.Students())

	req := &serviceInterfaces.CreateStudentRequest{
		FirstName: "Test",
		LastName:  "Student",
	}

	student, err := studentService.CreateStudent(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if student == nil {
		t.Fatal("Expected student to be created, got nil")
	}

	if student.StudentID == 0 {
		t.Error("Expected student ID to be assigned")
	}

	if student.FullName() != "Test Student" {
		t.Errorf("Expected full name 'Test Student', got '%s'", student.FullName())
	}

	if student.EnrollmentDate.IsZero() {
		t.Error("Expected enrollment date to be set")
	}
}

func TestStudentService_CreateStudent_Validation(t *testing.T) {
	store := repository.NewMemoryStore()
	studentService := NewStudentService(store.Students())

	// Blank names are rejected
	_, err := studentService.CreateStudent(context.Background(), &serviceInterfaces.CreateStudentRequest{
		FirstName: "   ",
		LastName:  "Student",
	})
	assertCode(t, err, apperrors.ErrValidation)

	_, err = studentService.CreateStudent(context.Background(), nil)
	assertCode(t, err, apperrors.ErrValidation)
}

func TestStudentService_GetStudent(t *testing.T) {
	store := repository.NewMemoryStore()
	store.SeedDemoData()
	studentService := NewStudentService(store.Students())

	student, err := studentService.GetStudent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if student.FirstName != "John" {
		t.Errorf("Expected first name John, got %s", student.FirstName)
	}

	_, err = studentService.GetStudent(context.Background(), 99)
	assertCode(t, err, apperrors.ErrNotFound)
}
