package repository

import (
	"context"

	"taskify/internal/domain"

	"github.com/jackc/pgx/v5"
)

const clientColumns = `id, name, tin, COALESCE(address, ''), email, COALESCE(company, ''),
	COALESCE(phone, ''), is_active, created_at, updated_at`

type ClientRepository struct {
	db querier
}

func NewClientRepository(db querier) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	row := r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return scanClient(row)
}

func (r *ClientRepository) ListClients(ctx context.Context, filter domain.ClientFilter) ([]*domain.Client, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Active != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+clientColumns+` FROM clients WHERE is_active = $1 ORDER BY name, id`, *filter.Active)
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name, id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *ClientRepository) CreateClient(ctx context.Context, c *domain.Client) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO clients (name, tin, address, email, company, phone, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		c.Name, c.TIN, nullString(c.Address), c.Email, nullString(c.Company), nullString(c.Phone), c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapError(err)
}

func (r *ClientRepository) UpdateClient(ctx context.Context, c *domain.Client) error {
	err := r.db.QueryRow(ctx, `
		UPDATE clients
		SET name = $2, tin = $3, address = $4, email = $5, company = $6, phone = $7,
		    is_active = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Name, c.TIN, nullString(c.Address), c.Email, nullString(c.Company), nullString(c.Phone), c.IsActive,
	).Scan(&c.UpdatedAt)
	return mapError(err)
}

// DeleteClient removes the client; its tasks go with it via ON DELETE CASCADE.
func (r *ClientRepository) DeleteClient(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id))
}

func scanClient(row scanner) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(
		&c.ID, &c.Name, &c.TIN, &c.Address, &c.Email, &c.Company, &c.Phone,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}
