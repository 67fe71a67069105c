package handlers

import (
	"net/http"

	serviceInterfaces "course-checkout/internal/interfaces/service"

	"github.com/gin-gonic/gin"
)

// StudentHandler handles student-related HTTP requests
type StudentHandler struct {
	studentService serviceInterfaces.StudentService
}

// NewStudentHandler creates a new student handler
func NewStudentHandler(studentService serviceInterfaces.StudentService) *StudentHandler {
	return &StudentHandler{
		studentService: studentService,
	}
}

// CreateStudent handles POST /students
func (h *StudentHandler) CreateStudent(c *gin.Context) {
	var req serviceInterfaces.CreateStudentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	student, err := h.studentService.CreateStudent(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Message: "Student created successfully",
		Data:    student,
	})
}

// GetStudent handles GET /students/:id
func (h *StudentHandler) GetStudent(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	student, err := h.studentService.GetStudent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    student,
	})
}
