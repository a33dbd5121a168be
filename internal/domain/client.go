package domain

import "time"

type Client struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TIN       string    `db:"tin" json:"tin"`
	Address   string    `db:"address" json:"address"`
	Email     string    `db:"email" json:"email"`
	Company   string    `db:"company" json:"company"`
	Phone     string    `db:"phone" json:"phone"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClientFilter narrows client listings; a nil Active matches both states.
type ClientFilter struct {
	Active *bool
}
