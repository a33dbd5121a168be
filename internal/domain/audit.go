package domain

import "time"

// AuditLog represents an audit log entry for tracking important actions
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	UserAgent string                 `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategoryInvoice = "invoice"
	AuditCategoryTask    = "task"
	AuditCategoryClient  = "client"
)

// Audit actions
const (
	// Invoice actions
	AuditActionInvoiceCreate     = "invoice_create"
	AuditActionInvoiceUpdate     = "invoice_update"
	AuditActionInvoiceDelete     = "invoice_delete"
	AuditActionInvoiceEmptied    = "invoice_emptied"
	AuditActionInvoiceTaskAdd    = "invoice_task_add"
	AuditActionInvoiceTaskRemove = "invoice_task_remove"

	// Task actions
	AuditActionTaskCreate    = "task_create"
	AuditActionTaskUpdate    = "task_update"
	AuditActionTaskDelete    = "task_delete"
	AuditActionTaskArchive   = "task_archive"
	AuditActionTaskUnarchive = "task_unarchive"

	// Client actions
	AuditActionClientCreate = "client_create"
	AuditActionClientUpdate = "client_update"
	AuditActionClientDelete = "client_delete"
)
