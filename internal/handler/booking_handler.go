package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// BookingHandler manages lesson booking endpoints.
type BookingHandler struct {
	service *service.BookingService
}

// NewBookingHandler constructs handler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Book godoc
// @Summary Book a single lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body service.BookLessonRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /lessons [post]
func (h *BookingHandler) Book(c *gin.Context) {
	var req service.BookLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.service.BookSingle(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// BookBatch godoc
// @Summary Book a fixed run of weekly lessons
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body service.BookBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/batch [post]
func (h *BookingHandler) BookBatch(c *gin.Context) {
	var req service.BookBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lessons, err := h.service.BookFixedBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lessons)
}

// Get godoc
// @Summary Get a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	lesson, err := h.service.GetLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

type cancelLessonRequest struct {
	Reason string `json:"reason"`
}

// Cancel godoc
// @Summary Cancel a scheduled lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body cancelLessonRequest false "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req cancelLessonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	lesson, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Complete godoc
// @Summary Mark a lesson completed
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *BookingHandler) Complete(c *gin.Context) {
	lesson, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}
