package models

import "time"

// InvoiceLineKind distinguishes one-off lessons from subscription charges.
type InvoiceLineKind string

const (
	InvoiceLineLesson       InvoiceLineKind = "LESSON"
	InvoiceLineSubscription InvoiceLineKind = "SUBSCRIPTION"
)

// InvoiceLine is one billable item on a monthly invoice.
type InvoiceLine struct {
	Kind        InvoiceLineKind `json:"kind"`
	Description string          `json:"description"`
	OccurredAt  *time.Time      `json:"occurred_at,omitempty"`
	AmountCents int64           `json:"amount_cents"`
}

// Invoice is a student's charges for one calendar month. Subscription months
// bill a flat monthly rate; lessons spawned from a subscription are excluded
// from the per-lesson lines so they are never charged twice.
type Invoice struct {
	StudentID  string        `json:"student_id"`
	Month      string        `json:"month"`
	Lines      []InvoiceLine `json:"lines"`
	TotalCents int64         `json:"total_cents"`
}
