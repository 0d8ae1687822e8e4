package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// ScheduleHandler serves teacher calendars.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// GetTeacherSchedule godoc
// @Summary Get a teacher's schedule
// @Tags Schedule
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/schedule [get]
func (h *ScheduleHandler) GetTeacherSchedule(c *gin.Context) {
	from, to, err := timeRange(c, 30)
	if err != nil {
		response.Error(c, err)
		return
	}
	lessons, err := h.service.GetTeacherSchedule(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}
