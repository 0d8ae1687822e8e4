package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// RecurringHandler manages weekly subscription endpoints.
type RecurringHandler struct {
	service *service.RecurringService
}

// NewRecurringHandler constructs handler.
func NewRecurringHandler(svc *service.RecurringService) *RecurringHandler {
	return &RecurringHandler{service: svc}
}

// Create godoc
// @Summary Open an indefinite weekly subscription
// @Tags Recurring
// @Accept json
// @Produce json
// @Param payload body service.CreateRecurringSlotRequest true "Subscription payload"
// @Success 201 {object} response.Envelope
// @Router /recurring-slots [post]
func (h *RecurringHandler) Create(c *gin.Context) {
	var req service.CreateRecurringSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.service.CreateIndefinite(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Cancel godoc
// @Summary Cancel a subscription
// @Tags Recurring
// @Produce json
// @Param id path string true "Recurring slot ID"
// @Success 200 {object} response.Envelope
// @Router /recurring-slots/{id}/cancel [post]
func (h *RecurringHandler) Cancel(c *gin.Context) {
	slot, err := h.service.CancelSlot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// ListByTeacher godoc
// @Summary List a teacher's active subscriptions
// @Tags Recurring
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/recurring-slots [get]
func (h *RecurringHandler) ListByTeacher(c *gin.Context) {
	slots, err := h.service.ListByTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// ListByStudent godoc
// @Summary List a student's active subscriptions
// @Tags Recurring
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/recurring-slots [get]
func (h *RecurringHandler) ListByStudent(c *gin.Context) {
	slots, err := h.service.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
