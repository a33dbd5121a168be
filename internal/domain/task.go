package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is one of the known statuses. Transitions between
// statuses are unrestricted.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID           int64            `db:"id" json:"id"`
	Title        string           `db:"title" json:"title"`
	Description  string           `db:"description" json:"description"`
	Priority     TaskPriority     `db:"priority" json:"priority"`
	StartingDate time.Time        `db:"starting_date" json:"starting_date"`
	DueDate      time.Time        `db:"due_date" json:"due_date"`
	Status       TaskStatus       `db:"status" json:"status"`
	Amount       *decimal.Decimal `db:"amount" json:"amount"`
	UserID       int64            `db:"user_id" json:"user_id"`
	ClientID     int64            `db:"client_id" json:"client_id"`
	InvoiceID    *int64           `db:"invoice_id" json:"invoice_id"`
	IsHidden     bool             `db:"is_hidden" json:"is_hidden"`
	ArchivedAt   *time.Time       `db:"archived_at" json:"archived_at"`
	ArchivedBy   *int64           `db:"archived_by" json:"archived_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AmountOrZero treats a missing amount as zero.
func (t *Task) AmountOrZero() decimal.Decimal {
	if t.Amount == nil {
		return decimal.Zero
	}
	return *t.Amount
}

// Billable reports whether the task can be attached to an invoice by its owner.
func (t *Task) Billable() bool {
	return t.Status == TaskStatusCompleted && t.InvoiceID == nil
}

// Clone returns a deep copy so callers never share pointer fields.
func (t *Task) Clone() *Task {
	c := *t
	if t.Amount != nil {
		a := *t.Amount
		c.Amount = &a
	}
	if t.InvoiceID != nil {
		id := *t.InvoiceID
		c.InvoiceID = &id
	}
	if t.ArchivedAt != nil {
		at := *t.ArchivedAt
		c.ArchivedAt = &at
	}
	if t.ArchivedBy != nil {
		by := *t.ArchivedBy
		c.ArchivedBy = &by
	}
	return &c
}

// TaskView selects tasks by their archive flag.
type TaskView string

const (
	TaskViewVisible  TaskView = "visible"
	TaskViewArchived TaskView = "archived"
	TaskViewAll      TaskView = "all"
)

func (v TaskView) Valid() bool {
	switch v {
	case TaskViewVisible, TaskViewArchived, TaskViewAll:
		return true
	}
	return false
}

// TaskFilter narrows task listings. Zero values mean "any".
type TaskFilter struct {
	UserID    int64
	View      TaskView
	Status    TaskStatus
	ClientID  int64
	InvoiceID int64
	// Billable restricts to completed tasks without an invoice.
	Billable bool
	// From and To select tasks whose [StartingDate, DueDate] overlaps the window.
	From *time.Time
	To   *time.Time
}

// Match applies the filter to a single task.
func (f TaskFilter) Match(t *Task) bool {
	if f.UserID != 0 && t.UserID != f.UserID {
		return false
	}
	switch f.View {
	case TaskViewArchived:
		if !t.IsHidden {
			return false
		}
	case TaskViewAll:
	default:
		if t.IsHidden {
			return false
		}
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.ClientID != 0 && t.ClientID != f.ClientID {
		return false
	}
	if f.InvoiceID != 0 && (t.InvoiceID == nil || *t.InvoiceID != f.InvoiceID) {
		return false
	}
	if f.Billable && !t.Billable() {
		return false
	}
	if f.From != nil && t.DueDate.Before(*f.From) {
		return false
	}
	if f.To != nil && t.StartingDate.After(*f.To) {
		return false
	}
	return true
}
