package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// SettingsHandler manages lesson settings endpoints.
type SettingsHandler struct {
	service *service.SettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// Get godoc
// @Summary Get a teacher's lesson settings
// @Tags Settings
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/lesson-settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

type upsertSettingsBody struct {
	Allows30Min        bool  `json:"allows_30_min"`
	Allows60Min        bool  `json:"allows_60_min"`
	Price30Cents       int64 `json:"price_30_cents"`
	Price60Cents       int64 `json:"price_60_cents"`
	AdvanceBookingDays int   `json:"advance_booking_days"`
}

// Upsert godoc
// @Summary Create or replace a teacher's lesson settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body upsertSettingsBody true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/lesson-settings [put]
func (h *SettingsHandler) Upsert(c *gin.Context) {
	var body upsertSettingsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	settings, err := h.service.Upsert(c.Request.Context(), service.UpsertSettingsRequest{
		TeacherID:          c.Param("id"),
		Allows30Min:        body.Allows30Min,
		Allows60Min:        body.Allows60Min,
		Price30Cents:       body.Price30Cents,
		Price60Cents:       body.Price60Cents,
		AdvanceBookingDays: body.AdvanceBookingDays,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}
