package repository

import (
	"context"
	"strconv"
	"strings"

	"taskify/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const taskColumns = `id, title, COALESCE(description, ''), priority, starting_date, due_date, status,
	amount, user_id, client_id, invoice_id, is_hidden, archived_at, archived_by, created_at, updated_at`

type TaskRepository struct {
	db querier
}

func NewTaskRepository(db querier) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (r *TaskRepository) LockTasks(ctx context.Context, ids []int64) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTasks(rows)
}

func (r *TaskRepository) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if filter.UserID != 0 {
		add("user_id = ?", filter.UserID)
	}
	switch filter.View {
	case domain.TaskViewArchived:
		where = append(where, "is_hidden = TRUE")
	case domain.TaskViewAll:
	default:
		where = append(where, "is_hidden = FALSE")
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.ClientID != 0 {
		add("client_id = ?", filter.ClientID)
	}
	if filter.InvoiceID != 0 {
		add("invoice_id = ?", filter.InvoiceID)
	}
	if filter.Billable {
		add("status = ?", string(domain.TaskStatusCompleted))
		where = append(where, "invoice_id IS NULL")
	}
	if filter.From != nil {
		add("due_date >= ?", *filter.From)
	}
	if filter.To != nil {
		add("starting_date <= ?", *filter.To)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY due_date, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTasks(rows)
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *domain.Task) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO tasks (title, description, priority, starting_date, due_date, status, amount,
		                   user_id, client_id, invoice_id, is_hidden, archived_at, archived_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		t.Title, nullString(t.Description), t.Priority, t.StartingDate, t.DueDate, t.Status, nullDecimal(t.Amount),
		t.UserID, t.ClientID, t.InvoiceID, t.IsHidden, t.ArchivedAt, t.ArchivedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return mapError(err)
}

func (r *TaskRepository) UpdateTask(ctx context.Context, t *domain.Task) error {
	err := r.db.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, priority = $4, starting_date = $5, due_date = $6,
		    status = $7, amount = $8, client_id = $9, invoice_id = $10, is_hidden = $11,
		    archived_at = $12, archived_by = $13, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Title, nullString(t.Description), t.Priority, t.StartingDate, t.DueDate,
		t.Status, nullDecimal(t.Amount), t.ClientID, t.InvoiceID, t.IsHidden,
		t.ArchivedAt, t.ArchivedBy,
	).Scan(&t.UpdatedAt)
	return mapError(err)
}

func (r *TaskRepository) DeleteTask(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id))
}

func (r *TaskRepository) ClaimTasks(ctx context.Context, invoiceID int64, ids []int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET invoice_id = $1, updated_at = now()
		WHERE id = ANY($2) AND invoice_id IS NULL`, invoiceID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *TaskRepository) ReleaseTask(ctx context.Context, invoiceID, taskID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET invoice_id = NULL, updated_at = now()
		WHERE id = $1 AND invoice_id = $2`, taskID, invoiceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TaskRepository) ReleaseInvoiceTasks(ctx context.Context, invoiceID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET invoice_id = NULL, updated_at = now()
		WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *TaskRepository) ListInvoiceTasks(ctx context.Context, invoiceID int64) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTasks(rows)
}

func scanTask(row scanner) (*domain.Task, error) {
	var (
		t      domain.Task
		amount decimal.NullDecimal
	)
	if err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Priority, &t.StartingDate, &t.DueDate, &t.Status,
		&amount, &t.UserID, &t.ClientID, &t.InvoiceID, &t.IsHidden, &t.ArchivedAt, &t.ArchivedBy,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	t.Amount = decimalPtr(amount)
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
