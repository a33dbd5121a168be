package handlers

import (
	"time"

	"taskify/internal/domain"
	"taskify/internal/service"

	"github.com/shopspring/decimal"
)

type taskView struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	StartingDate string     `json:"starting_date"`
	DueDate      string     `json:"due_date"`
	Status       string     `json:"status"`
	Amount       *string    `json:"amount"`
	UserID       int64      `json:"user_id"`
	ClientID     int64      `json:"client_id"`
	InvoiceID    *int64     `json:"invoice_id"`
	IsHidden     bool       `json:"is_hidden"`
	ArchivedAt   *time.Time `json:"archived_at"`
	ArchivedBy   *int64     `json:"archived_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func presentTask(t *domain.Task) taskView {
	v := taskView{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Priority:     string(t.Priority),
		StartingDate: t.StartingDate.Format(dateLayout),
		DueDate:      t.DueDate.Format(dateLayout),
		Status:       string(t.Status),
		UserID:       t.UserID,
		ClientID:     t.ClientID,
		InvoiceID:    t.InvoiceID,
		IsHidden:     t.IsHidden,
		ArchivedAt:   t.ArchivedAt,
		ArchivedBy:   t.ArchivedBy,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.Amount != nil {
		s := money(*t.Amount)
		v.Amount = &s
	}
	return v
}

func presentTasks(tasks []*domain.Task) []taskView {
	res := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, presentTask(t))
	}
	return res
}

type totalsView struct {
	Subtotal      string `json:"subtotal"`
	TaxAmount     string `json:"tax_amount"`
	TotalAfterTax string `json:"total_after_tax"`
}

func presentTotals(t domain.Totals) totalsView {
	return totalsView{
		Subtotal:      money(t.Subtotal),
		TaxAmount:     money(t.TaxAmount),
		TotalAfterTax: money(t.Total),
	}
}

type invoiceView struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Date        string     `json:"date"`
	DueDate     *string    `json:"due_date"`
	Status      string     `json:"status"`
	TaxRate     string     `json:"tax_rate"`
	Description *string    `json:"description"`
	TaskIDs     []int64    `json:"task_ids"`
	Tasks       []taskView `json:"tasks,omitempty"`
	totalsView
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func presentInvoice(d *domain.InvoiceDetails, withTasks bool) invoiceView {
	inv := d.Invoice
	v := invoiceView{
		ID:          inv.ID,
		UserID:      inv.UserID,
		Date:        inv.Date.Format(dateLayout),
		Status:      string(inv.Status),
		TaxRate:     inv.TaxRate.String(),
		Description: inv.Description,
		TaskIDs:     d.TaskIDs(),
		totalsView:  presentTotals(d.Totals),
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
	if inv.DueDate != nil {
		s := inv.DueDate.Format(dateLayout)
		v.DueDate = &s
	}
	if withTasks {
		v.Tasks = presentTasks(d.Tasks)
	}
	return v
}

type dashboardView struct {
	TasksByStatus  map[domain.TaskStatus]int                 `json:"tasks_by_status"`
	VisibleTasks   int                                       `json:"visible_tasks"`
	ArchivedTasks  int                                       `json:"archived_tasks"`
	UnbilledTasks  int                                       `json:"unbilled_tasks"`
	UnbilledAmount string                                    `json:"unbilled_amount"`
	Invoices       map[domain.InvoiceStatus]invoiceBucketView `json:"invoices"`
	Upcoming       []taskView                                `json:"upcoming"`
}

type invoiceBucketView struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

func presentDashboard(d *service.Dashboard) dashboardView {
	v := dashboardView{
		TasksByStatus:  d.TasksByStatus,
		VisibleTasks:   d.VisibleTasks,
		ArchivedTasks:  d.ArchivedTasks,
		UnbilledTasks:  d.UnbilledTasks,
		UnbilledAmount: money(d.UnbilledAmount),
		Invoices:       make(map[domain.InvoiceStatus]invoiceBucketView, len(d.Invoices)),
		Upcoming:       presentTasks(d.Upcoming),
	}
	for st, b := range d.Invoices {
		v.Invoices[st] = invoiceBucketView{Count: b.Count, Total: money(b.Total)}
	}
	return v
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
