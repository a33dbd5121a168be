package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type pgQueries struct {
	*UserRepository
	*ClientRepository
	*TaskRepository
	*InvoiceRepository
	*AuditRepository
}

func newPgQueries(db querier) pgQueries {
	return pgQueries{
		UserRepository:    NewUserRepository(db),
		ClientRepository:  NewClientRepository(db),
		TaskRepository:    NewTaskRepository(db),
		InvoiceRepository: NewInvoiceRepository(db),
		AuditRepository:   NewAuditRepository(db),
	}
}

// PostgresStore runs queries against a pgx pool. Transactions use row locks
// (SELECT ... FOR UPDATE) so check-then-act sequences are serialised per row.
type PostgresStore struct {
	pgQueries
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pgQueries: newPgQueries(pool),
		pool:      pool,
	}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(newPgQueries(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// mapError turns driver errors into the package's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &DuplicateError{Field: constraintField(pgErr.TableName, pgErr.ConstraintName)}
	}
	return err
}

// constraintField extracts the column from default unique constraint names
// such as clients_email_key.
func constraintField(table, constraint string) string {
	field := strings.TrimSuffix(constraint, "_key")
	if table != "" {
		field = strings.TrimPrefix(field, table+"_")
	}
	return field
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
