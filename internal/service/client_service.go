package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskify/internal/domain"
	"taskify/internal/repository"

	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

type ClientInput struct {
	Name     string
	TIN      string
	Address  string
	Email    string
	Company  string
	Phone    string
	IsActive *bool
}

type ClientService struct {
	store    repository.Store
	invoices *InvoiceService
	audit    *AuditService
}

func NewClientService(store repository.Store, invoices *InvoiceService, audit *AuditService) *ClientService {
	return &ClientService{store: store, invoices: invoices, audit: audit}
}

func (s *ClientService) Create(ctx context.Context, actorID int64, in ClientInput) (*domain.Client, error) {
	c := &domain.Client{IsActive: true}
	applyClientInput(c, in)
	if err := validateClient(c); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.CreateClient(ctx, c); err != nil {
			return mapClientErr(err, 0)
		}
		return s.audit.Record(ctx, q, actorID, domain.AuditActionClientCreate, domain.AuditCategoryClient, map[string]interface{}{
			"client_id": c.ID,
			"name":      c.Name,
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) Get(ctx context.Context, id int64) (*domain.Client, error) {
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, mapClientErr(err, id)
	}
	return c, nil
}

func (s *ClientService) List(ctx context.Context, filter domain.ClientFilter) ([]*domain.Client, error) {
	return s.store.ListClients(ctx, filter)
}

func (s *ClientService) Update(ctx context.Context, actorID, id int64, in ClientInput) (*domain.Client, error) {
	var c *domain.Client
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		if c, err = q.GetClient(ctx, id); err != nil {
			return mapClientErr(err, id)
		}
		applyClientInput(c, in)
		if err := validateClient(c); err != nil {
			return err
		}
		if err := q.UpdateClient(ctx, c); err != nil {
			return mapClientErr(err, id)
		}
		return s.audit.Record(ctx, q, actorID, domain.AuditActionClientUpdate, domain.AuditCategoryClient, map[string]interface{}{
			"client_id": id,
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes the client and, through the foreign key, its tasks.
// Invoices that lose their last task that way are deleted as well.
func (s *ClientService) Delete(ctx context.Context, actorID, id int64) error {
	var emptied int
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if _, err := q.GetClient(ctx, id); err != nil {
			return mapClientErr(err, id)
		}

		tasks, err := q.ListTasks(ctx, domain.TaskFilter{ClientID: id, View: domain.TaskViewAll})
		if err != nil {
			return err
		}
		var invoiceIDs []*int64
		for _, t := range tasks {
			invoiceIDs = append(invoiceIDs, t.InvoiceID)
		}
		if err := lockInvoices(ctx, q, invoiceIDs...); err != nil {
			return err
		}

		if err := q.DeleteClient(ctx, id); err != nil {
			return mapClientErr(err, id)
		}

		seen := make(map[int64]bool)
		for _, invID := range invoiceIDs {
			if invID == nil || seen[*invID] {
				continue
			}
			seen[*invID] = true
			dropped, err := s.invoices.dropIfEmpty(ctx, q, *invID)
			if err != nil {
				return err
			}
			if dropped {
				emptied++
			}
		}

		return s.audit.Record(ctx, q, actorID, domain.AuditActionClientDelete, domain.AuditCategoryClient, map[string]interface{}{
			"client_id":        id,
			"deleted_tasks":    len(tasks),
			"deleted_invoices": emptied,
		})
	})
	if err != nil {
		return err
	}
	if emptied > 0 {
		InvoicesDeleted.WithLabelValues("emptied").Add(float64(emptied))
	}
	return nil
}

func applyClientInput(c *domain.Client, in ClientInput) {
	c.Name = strings.TrimSpace(in.Name)
	c.TIN = strings.TrimSpace(in.TIN)
	c.Address = strings.TrimSpace(in.Address)
	c.Email = strings.ToLower(strings.TrimSpace(in.Email))
	c.Company = strings.TrimSpace(in.Company)
	c.Phone = strings.TrimSpace(in.Phone)
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

func validateClient(c *domain.Client) error {
	v := &ValidationError{}
	if c.Name == "" {
		v.Add("name", "required", nil, "name is required")
	}
	if c.TIN == "" {
		v.Add("tin", "required", nil, "tin is required")
	}
	if c.Email == "" {
		v.Add("email", "required", nil, "email is required")
	} else if err := validate.Var(c.Email, "email"); err != nil {
		v.Add("email", "invalid", nil, "email is not a valid address")
	}
	return v.OrNil()
}

func mapClientErr(err error, id int64) error {
	var dup *repository.DuplicateError
	switch {
	case errors.As(err, &dup):
		return invalid(dup.Field, "taken", ErrTaken, "%s has already been taken", dup.Field)
	case errors.Is(err, repository.ErrNotFound):
		return notFound("client", id)
	}
	return fmt.Errorf("client %d: %w", id, err)
}
