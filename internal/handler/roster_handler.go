package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// RosterHandler manages teacher and student registry endpoints.
type RosterHandler struct {
	service *service.RosterService
}

// NewRosterHandler constructs handler.
func NewRosterHandler(svc *service.RosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

// CreateTeacher godoc
// @Summary Register a teacher
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body service.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Router /teachers [post]
func (h *RosterHandler) CreateTeacher(c *gin.Context) {
	var req service.CreateTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	teacher, err := h.service.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// GetTeacher godoc
// @Summary Get a teacher
// @Tags Roster
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *RosterHandler) GetTeacher(c *gin.Context) {
	teacher, err := h.service.GetTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// CreateStudent godoc
// @Summary Register a student
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *RosterHandler) CreateStudent(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.service.CreateStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// LinkStudent godoc
// @Summary Link a student to a teacher
// @Tags Roster
// @Produce json
// @Param id path string true "Teacher ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /teachers/{id}/students/{studentId} [put]
func (h *RosterHandler) LinkStudent(c *gin.Context) {
	if err := h.service.LinkStudent(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListStudents godoc
// @Summary List a teacher's students
// @Tags Roster
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/students [get]
func (h *RosterHandler) ListStudents(c *gin.Context) {
	students, err := h.service.ListStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}
