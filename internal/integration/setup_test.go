package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"taskify/internal/db"
	"taskify/internal/domain"
	"taskify/internal/migrations"
	"taskify/internal/repository"
	"taskify/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type pgEnv struct {
	pool   *pgxpool.Pool
	store  *repository.PostgresStore
	svc    *service.Services
	user   int64
	client int64
}

// newPgEnv connects to DATABASE_URL, applies pending migrations and seeds a
// fresh user and client. Every run uses unique emails and TINs so the tests
// can share a database.
func newPgEnv(t *testing.T) *pgEnv {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, 16)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := repository.NewPostgresStore(pool)
	svc := service.New(store)
	tag := fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())

	u, _, err := svc.Users.Ensure(ctx, "it", tag+"@example.com")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	c, err := svc.Clients.Create(ctx, u.ID, service.ClientInput{
		Name:  "Integration Client",
		TIN:   tag,
		Email: "client-" + tag + "@example.com",
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return &pgEnv{pool: pool, store: store, svc: svc, user: u.ID, client: c.ID}
}

func (e *pgEnv) completedTask(t *testing.T, amount string) *domain.Task {
	t.Helper()
	a := decimal.RequireFromString(amount)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	task, err := e.svc.Tasks.Create(context.Background(), e.user, service.TaskInput{
		Title:        "integration task",
		Priority:     domain.TaskPriorityMedium,
		StartingDate: day,
		DueDate:      day.AddDate(0, 0, 5),
		Status:       domain.TaskStatusCompleted,
		Amount:       &a,
		ClientID:     e.client,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (e *pgEnv) invoice(t *testing.T, ids ...int64) *domain.InvoiceDetails {
	t.Helper()
	d, err := e.svc.Invoices.Create(context.Background(), service.CreateInvoiceInput{
		UserID:  e.user,
		TaskIDs: ids,
		Date:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		TaxRate: decimal.NewFromInt(23),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return d
}
