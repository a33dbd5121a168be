package service

import (
	"context"
	"errors"
	"strings"

	"taskify/internal/domain"
	"taskify/internal/repository"
)

type UserService struct {
	store repository.Store
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store}
}

func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user", id)
	}
	return u, err
}

// Ensure returns the user registered under email, creating it when missing.
func (s *UserService) Ensure(ctx context.Context, name, email string) (*domain.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false, invalid("email", "required", nil, "email is required")
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	u = &domain.User{Name: strings.TrimSpace(name), Email: email}
	if u.Name == "" {
		u.Name = email
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// lost a race with a concurrent seed
			u, err = s.store.GetUserByEmail(ctx, email)
			return u, false, err
		}
		return nil, false, err
	}
	return u, true, nil
}
