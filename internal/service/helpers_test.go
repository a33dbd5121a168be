package service

import (
	"context"
	"testing"
	"time"

	"taskify/internal/domain"
	"taskify/internal/repository"

	"github.com/shopspring/decimal"
)

type testEnv struct {
	ctx    context.Context
	store  *repository.MemoryStore
	svc    *Services
	user   *domain.User
	other  *domain.User
	client *domain.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	user := &domain.User{Name: "Ann", Email: "ann@example.com"}
	other := &domain.User{Name: "Bob", Email: "bob@example.com"}
	for _, u := range []*domain.User{user, other} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	client := &domain.Client{Name: "Acme", TIN: "PL123", Email: "billing@acme.test", IsActive: true}
	if err := store.CreateClient(ctx, client); err != nil {
		t.Fatalf("create client: %v", err)
	}

	return &testEnv{
		ctx:    ctx,
		store:  store,
		svc:    New(store),
		user:   user,
		other:  other,
		client: client,
	}
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// addTask stores a task directly, bypassing the service.
func (e *testEnv) addTask(t *testing.T, owner *domain.User, status domain.TaskStatus, amount string) *domain.Task {
	t.Helper()
	task := &domain.Task{
		Title:        "task",
		Priority:     domain.TaskPriorityMedium,
		StartingDate: day(1),
		DueDate:      day(10),
		Status:       status,
		UserID:       owner.ID,
		ClientID:     e.client.ID,
	}
	if amount != "" {
		task.Amount = money(amount)
	}
	if err := e.store.CreateTask(e.ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (e *testEnv) invoice(t *testing.T, taskIDs ...int64) *domain.InvoiceDetails {
	t.Helper()
	d, err := e.svc.Invoices.Create(e.ctx, CreateInvoiceInput{
		UserID:  e.user.ID,
		TaskIDs: taskIDs,
		Date:    day(15),
		TaxRate: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return d
}

func (e *testEnv) taskInvoice(t *testing.T, id int64) *int64 {
	t.Helper()
	task, err := e.store.GetTask(e.ctx, id)
	if err != nil {
		t.Fatalf("get task %d: %v", id, err)
	}
	return task.InvoiceID
}

// assertNoEmptyInvoices fails if any stored invoice has no linked task.
func (e *testEnv) assertNoEmptyInvoices(t *testing.T) {
	t.Helper()
	for _, u := range []*domain.User{e.user, e.other} {
		invoices, err := e.store.ListInvoices(e.ctx, u.ID, "")
		if err != nil {
			t.Fatalf("list invoices: %v", err)
		}
		for _, inv := range invoices {
			tasks, err := e.store.ListInvoiceTasks(e.ctx, inv.ID)
			if err != nil {
				t.Fatalf("list invoice tasks: %v", err)
			}
			if len(tasks) == 0 {
				t.Fatalf("invoice %d has no tasks", inv.ID)
			}
		}
	}
}
