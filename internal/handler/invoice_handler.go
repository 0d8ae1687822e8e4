package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/response"
)

// InvoiceHandler serves monthly invoices.
type InvoiceHandler struct {
	service *service.InvoiceService
}

// NewInvoiceHandler constructs handler.
func NewInvoiceHandler(svc *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: svc}
}

// Get godoc
// @Summary Get a student's monthly invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Student ID"
// @Param month path string true "Month (YYYY-MM)"
// @Param format query string false "json, csv or pdf" default(json)
// @Success 200 {object} response.Envelope
// @Router /students/{id}/invoices/{month} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoice, err := h.service.GenerateMonthly(c.Request.Context(), c.Param("id"), c.Param("month"))
	if err != nil {
		response.Error(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		response.JSON(c, http.StatusOK, invoice, nil)
	case "csv":
		data, err := h.service.RenderCSV(invoice)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=invoice-%s.csv", invoice.Month))
		c.Data(http.StatusOK, "text/csv", data)
	case "pdf":
		data, err := h.service.RenderPDF(invoice)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=invoice-%s.pdf", invoice.Month))
		c.Data(http.StatusOK, "application/pdf", data)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json, csv or pdf"))
	}
}
