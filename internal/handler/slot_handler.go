package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// SlotHandler serves bookable slot listings.
type SlotHandler struct {
	service *service.SlotService
}

// NewSlotHandler constructs handler.
func NewSlotHandler(svc *service.SlotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// List godoc
// @Summary List bookable slots for a teacher
// @Tags Slots
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Param tz query string false "IANA timezone for slot placement"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	from, to, err := timeRange(c, 14)
	if err != nil {
		response.Error(c, err)
		return
	}
	tz := c.DefaultQuery("tz", "UTC")

	slots, err := h.service.GetAvailableSlots(c.Request.Context(), c.Param("id"), from, to, tz)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
