package repository

import (
	"context"
	"errors"
	"fmt"

	"taskify/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate value")
)

// DuplicateError reports a unique constraint violation on Field.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Queries is the persistence surface shared by plain and transactional access.
type Queries interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error

	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	ListClients(ctx context.Context, filter domain.ClientFilter) ([]*domain.Client, error)
	CreateClient(ctx context.Context, c *domain.Client) error
	UpdateClient(ctx context.Context, c *domain.Client) error
	DeleteClient(ctx context.Context, id int64) error

	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	// LockTasks returns the existing tasks among ids, ordered by id, and holds
	// them against concurrent writers until the surrounding transaction ends.
	LockTasks(ctx context.Context, ids []int64) ([]*domain.Task, error)
	ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error)
	CreateTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, id int64) error
	// ClaimTasks links unassigned tasks among ids to invoiceID and returns how
	// many rows were claimed. Tasks already linked anywhere are left untouched.
	ClaimTasks(ctx context.Context, invoiceID int64, ids []int64) (int64, error)
	// ReleaseTask unlinks taskID from invoiceID and reports whether it was linked.
	ReleaseTask(ctx context.Context, invoiceID, taskID int64) (bool, error)
	ReleaseInvoiceTasks(ctx context.Context, invoiceID int64) (int64, error)
	ListInvoiceTasks(ctx context.Context, invoiceID int64) ([]*domain.Task, error)

	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	// LockInvoice is GetInvoice holding the row until the transaction ends.
	LockInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, userID int64, status domain.InvoiceStatus) ([]*domain.Invoice, error)
	CreateInvoice(ctx context.Context, inv *domain.Invoice) error
	UpdateInvoice(ctx context.Context, inv *domain.Invoice) error
	DeleteInvoice(ctx context.Context, id int64) error

	CreateAuditLog(ctx context.Context, log *domain.AuditLog) error
	ListAuditLogs(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error)
}

// Store is the root persistence handle. InTx runs fn atomically: either every
// write fn performs is committed or none is.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}
