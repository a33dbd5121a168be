package repository

import (
	"context"

	"taskify/internal/domain"

	"github.com/jackc/pgx/v5"
)

const invoiceColumns = `id, user_id, date, due_date, status, tax_rate, description, created_at, updated_at`

type InvoiceRepository struct {
	db querier
}

func NewInvoiceRepository(db querier) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

func (r *InvoiceRepository) LockInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row)
}

// ListInvoices returns the user's invoices, newest first. An empty status matches all.
func (r *InvoiceRepository) ListInvoices(ctx context.Context, userID int64, status domain.InvoiceStatus) ([]*domain.Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY date DESC, id DESC`, userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvoices(rows)
}

func (r *InvoiceRepository) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (user_id, date, due_date, status, tax_rate, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		inv.UserID, inv.Date, inv.DueDate, inv.Status, inv.TaxRate, inv.Description,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	return mapError(err)
}

func (r *InvoiceRepository) UpdateInvoice(ctx context.Context, inv *domain.Invoice) error {
	err := r.db.QueryRow(ctx, `
		UPDATE invoices
		SET date = $2, due_date = $3, status = $4, tax_rate = $5, description = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		inv.ID, inv.Date, inv.DueDate, inv.Status, inv.TaxRate, inv.Description,
	).Scan(&inv.UpdatedAt)
	return mapError(err)
}

func (r *InvoiceRepository) DeleteInvoice(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id))
}

func scanInvoice(row scanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := row.Scan(
		&inv.ID, &inv.UserID, &inv.Date, &inv.DueDate, &inv.Status, &inv.TaxRate,
		&inv.Description, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &inv, nil
}

func scanInvoices(rows pgx.Rows) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
