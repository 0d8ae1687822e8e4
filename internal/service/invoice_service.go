package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/internal/models"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/export"
)

type invoiceLessonReader interface {
	ListCompletedByStudentBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.Lesson, error)
}

type invoiceSlotReader interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.RecurringSlot, error)
}

// InvoiceService assembles monthly statements: per-lesson charges for one-off
// bookings plus flat monthly rates for active subscriptions.
type InvoiceService struct {
	lessons invoiceLessonReader
	slots   invoiceSlotReader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewInvoiceService instantiates InvoiceService.
func NewInvoiceService(lessons invoiceLessonReader, slots invoiceSlotReader, logger *zap.Logger) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		lessons: lessons,
		slots:   slots,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// GenerateMonthly builds a student's invoice for a "2006-01" month.
// Subscriptions bill their flat rate; the lessons they spawned carry a
// RecurringSlotID and are skipped so nothing is billed twice.
func (s *InvoiceService) GenerateMonthly(ctx context.Context, studentID, month string) (*models.Invoice, error) {
	from, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "month must be formatted YYYY-MM")
	}
	to := from.AddDate(0, 1, 0)

	lessons, err := s.lessons.ListCompletedByStudentBetween(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load lessons")
	}
	slots, err := s.slots.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load subscriptions")
	}

	invoice := &models.Invoice{StudentID: studentID, Month: month}
	for _, lesson := range lessons {
		if lesson.RecurringSlotID != nil {
			continue
		}
		at := lesson.StartsAt
		invoice.Lines = append(invoice.Lines, models.InvoiceLine{
			Kind:        models.InvoiceLineLesson,
			Description: fmt.Sprintf("%d minute lesson", lesson.DurationMinutes),
			OccurredAt:  &at,
			AmountCents: lesson.PriceCents,
		})
		invoice.TotalCents += lesson.PriceCents
	}
	for _, slot := range slots {
		invoice.Lines = append(invoice.Lines, models.InvoiceLine{
			Kind:        models.InvoiceLineSubscription,
			Description: fmt.Sprintf("weekly %d minute lessons, %s %s", slot.DurationMinutes, time.Weekday(slot.DayOfWeek), slot.StartTime),
			AmountCents: slot.MonthlyRateCents,
		})
		invoice.TotalCents += slot.MonthlyRateCents
	}
	return invoice, nil
}

// RenderCSV encodes an invoice as CSV.
func (s *InvoiceService) RenderCSV(invoice *models.Invoice) ([]byte, error) {
	data, err := s.csv.Render(invoiceDataset(invoice))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice csv")
	}
	return data, nil
}

// RenderPDF renders an invoice as a tabular PDF.
func (s *InvoiceService) RenderPDF(invoice *models.Invoice) ([]byte, error) {
	title := fmt.Sprintf("Invoice %s", invoice.Month)
	data, err := s.pdf.Render(invoiceDataset(invoice), title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice pdf")
	}
	return data, nil
}

func invoiceDataset(invoice *models.Invoice) export.Dataset {
	headers := []string{"Type", "Description", "Date", "Amount"}
	rows := make([]map[string]string, 0, len(invoice.Lines)+1)
	for _, line := range invoice.Lines {
		date := ""
		if line.OccurredAt != nil {
			date = line.OccurredAt.Format("2006-01-02")
		}
		rows = append(rows, map[string]string{
			"Type":        string(line.Kind),
			"Description": line.Description,
			"Date":        date,
			"Amount":      formatCents(line.AmountCents),
		})
	}
	rows = append(rows, map[string]string{
		"Type":        "TOTAL",
		"Description": "",
		"Date":        "",
		"Amount":      formatCents(invoice.TotalCents),
	})
	return export.Dataset{Headers: headers, Rows: rows}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
