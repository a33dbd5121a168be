package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceStatuses lists every status in display order.
var InvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusSent,
	InvoiceStatusPaid,
	InvoiceStatusOverdue,
	InvoiceStatusCancelled,
}

func (s InvoiceStatus) Valid() bool {
	for _, v := range InvoiceStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Invoice is the stored part of an invoice. Monetary totals are never
// persisted; they are derived from the linked tasks.
type Invoice struct {
	ID          int64           `db:"id" json:"id"`
	UserID      int64           `db:"user_id" json:"user_id"`
	Date        time.Time       `db:"date" json:"date"`
	DueDate     *time.Time      `db:"due_date" json:"due_date"`
	Status      InvoiceStatus   `db:"status" json:"status"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	Description *string         `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

func (i *Invoice) Clone() *Invoice {
	c := *i
	if i.DueDate != nil {
		d := *i.DueDate
		c.DueDate = &d
	}
	if i.Description != nil {
		s := *i.Description
		c.Description = &s
	}
	return &c
}

// Totals is the monetary aggregation of an invoice. Values are exact;
// rounding happens only when they are rendered.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total_after_tax"`
}

var hundred = decimal.NewFromInt(100)

// ComputeTotals sums task amounts (missing amounts count as zero) and applies
// taxRate as a percentage withheld from the subtotal.
func ComputeTotals(tasks []*Task, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, t := range tasks {
		subtotal = subtotal.Add(t.AmountOrZero())
	}
	tax := subtotal.Mul(taxRate).Div(hundred)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Sub(tax),
	}
}

// InvoiceDetails bundles an invoice with its linked tasks and derived totals.
type InvoiceDetails struct {
	Invoice *Invoice
	Tasks   []*Task
	Totals  Totals
}

// NewInvoiceDetails computes totals for inv over tasks.
func NewInvoiceDetails(inv *Invoice, tasks []*Task) *InvoiceDetails {
	return &InvoiceDetails{
		Invoice: inv,
		Tasks:   tasks,
		Totals:  ComputeTotals(tasks, inv.TaxRate),
	}
}

// TaskIDs returns the ids of the linked tasks in their current order.
func (d *InvoiceDetails) TaskIDs() []int64 {
	ids := make([]int64, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
