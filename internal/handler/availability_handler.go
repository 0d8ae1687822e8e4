package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// AvailabilityHandler manages weekly schedule and block endpoints.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Get godoc
// @Summary Get a teacher's weekly availability
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	windows, err := h.service.GetWeeklySchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

type setScheduleBody struct {
	Windows []service.WindowInput `json:"windows"`
}

// Set godoc
// @Summary Replace a teacher's weekly availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body setScheduleBody true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [put]
func (h *AvailabilityHandler) Set(c *gin.Context) {
	var body setScheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	windows, err := h.service.SetWeeklySchedule(c.Request.Context(), service.SetScheduleRequest{
		TeacherID: c.Param("id"),
		Windows:   body.Windows,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// ListBlocks godoc
// @Summary List a teacher's blocked intervals
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/blocks [get]
func (h *AvailabilityHandler) ListBlocks(c *gin.Context) {
	from, to, err := timeRange(c, 30)
	if err != nil {
		response.Error(c, err)
		return
	}
	blocks, err := h.service.ListBlocks(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

type blockTimeBody struct {
	StartsAt string  `json:"starts_at"`
	EndsAt   string  `json:"ends_at"`
	Reason   *string `json:"reason,omitempty"`
}

// Block godoc
// @Summary Block an interval
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body blockTimeBody true "Block payload"
// @Success 201 {object} response.Envelope
// @Router /teachers/{id}/blocks [post]
func (h *AvailabilityHandler) Block(c *gin.Context) {
	var body blockTimeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	startsAt, err := parseRFC3339(body.StartsAt, "starts_at")
	if err != nil {
		response.Error(c, err)
		return
	}
	endsAt, err := parseRFC3339(body.EndsAt, "ends_at")
	if err != nil {
		response.Error(c, err)
		return
	}
	blocked, err := h.service.BlockTime(c.Request.Context(), service.BlockTimeRequest{
		TeacherID: c.Param("id"),
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		Reason:    body.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, blocked)
}

// Unblock godoc
// @Summary Remove a blocked interval
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param blockId path string true "Block ID"
// @Success 204
// @Router /teachers/{id}/blocks/{blockId} [delete]
func (h *AvailabilityHandler) Unblock(c *gin.Context) {
	if err := h.service.UnblockTime(c.Request.Context(), c.Param("id"), c.Param("blockId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
