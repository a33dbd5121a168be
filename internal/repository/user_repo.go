package repository

import (
	"context"

	"taskify/internal/domain"
)

type UserRepository struct {
	db querier
}

func NewUserRepository(db querier) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, name, email, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, name, email, created_at
		 FROM users
		 WHERE lower(email) = lower($1)`,
		email,
	)
	return scanUser(row)
}

func (r *UserRepository) CreateUser(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (name, email)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		u.Name,
		u.Email,
	).Scan(&u.ID, &u.CreatedAt)
	return mapError(err)
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}
