package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskify/internal/domain"
	"taskify/internal/logger"
	"taskify/internal/repository"

	"github.com/shopspring/decimal"
)

const maxTitleLen = 255

// amount is stored as NUMERIC(12,2).
const amountScale = 2

var maxAmount = decimal.New(1, 10)

// TaskInput is a full task body used by create and replace.
type TaskInput struct {
	Title        string
	Description  string
	Priority     domain.TaskPriority
	StartingDate time.Time
	DueDate      time.Time
	Status       domain.TaskStatus
	Amount       *decimal.Decimal
	ClientID     int64
}

// TaskPatch is a partial update. Nil fields are left untouched. When
// InvoiceSet is true the task is moved to InvoiceID, or off its invoice
// when InvoiceID is nil.
type TaskPatch struct {
	Title        *string
	Description  *string
	Priority     *domain.TaskPriority
	StartingDate *time.Time
	DueDate      *time.Time
	Status       *domain.TaskStatus
	Amount       *decimal.Decimal
	ClearAmount  bool
	ClientID     *int64

	InvoiceSet bool
	InvoiceID  *int64
}

// TaskResult carries the task after a write. Released is the outcome for the
// invoice the task left, Invoice the outcome for the invoice it joined.
type TaskResult struct {
	Task     *domain.Task
	Released *InvoiceOutcome
	Invoice  *InvoiceOutcome
}

type TaskService struct {
	store    repository.Store
	invoices *InvoiceService
	audit    *AuditService
	now      func() time.Time
}

func NewTaskService(store repository.Store, invoices *InvoiceService, audit *AuditService) *TaskService {
	return &TaskService{
		store:    store,
		invoices: invoices,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *TaskService) Create(ctx context.Context, userID int64, in TaskInput) (*domain.Task, error) {
	t := &domain.Task{
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Priority:     in.Priority,
		StartingDate: in.StartingDate,
		DueDate:      in.DueDate,
		Status:       in.Status,
		Amount:       in.Amount,
		UserID:       userID,
		ClientID:     in.ClientID,
	}
	if t.Priority == "" {
		t.Priority = domain.TaskPriorityMedium
	}
	if t.Status == "" {
		t.Status = domain.TaskStatusPending
	}

	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if err := validateTask(ctx, q, t); err != nil {
			return err
		}
		if err := q.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return s.audit.Record(ctx, q, userID, domain.AuditActionTaskCreate, domain.AuditCategoryTask, map[string]interface{}{
			"task_id":   t.ID,
			"client_id": t.ClientID,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskService) Get(ctx context.Context, userID, id int64) (*domain.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, mapTaskErr(err, id)
	}
	if t.UserID != userID {
		return nil, notFound("task", id)
	}
	return t, nil
}

// List returns the tasks of filter.UserID matching the filter.
func (s *TaskService) List(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	if filter.UserID == 0 {
		return nil, errors.New("task listing requires a user")
	}
	v := &ValidationError{}
	if filter.View != "" && !filter.View.Valid() {
		v.Add("view", "invalid", nil, "unknown view %q", filter.View)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		v.Add("status", "invalid", nil, "unknown status %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		v.Add("to", "before_from", nil, "to must not be before from")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, filter)
}

// Update replaces every editable field. The invoice link is kept.
func (s *TaskService) Update(ctx context.Context, userID, id int64, in TaskInput) (*domain.Task, error) {
	p := TaskPatch{
		Title:        &in.Title,
		Description:  &in.Description,
		StartingDate: &in.StartingDate,
		DueDate:      &in.DueDate,
		ClientID:     &in.ClientID,
		Amount:       in.Amount,
		ClearAmount:  in.Amount == nil,
	}
	if in.Priority != "" {
		p.Priority = &in.Priority
	}
	if in.Status != "" {
		p.Status = &in.Status
	}
	res, err := s.Patch(ctx, userID, id, p)
	if err != nil {
		return nil, err
	}
	return res.Task, nil
}

// Patch applies field edits first and then any invoice move, all in one
// transaction. Moving a task off its last-remaining invoice deletes the invoice.
func (s *TaskService) Patch(ctx context.Context, userID, id int64, p TaskPatch) (TaskResult, error) {
	var res TaskResult
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		cur, err := q.GetTask(ctx, id)
		if err != nil {
			return mapTaskErr(err, id)
		}
		if cur.UserID != userID {
			return notFound("task", id)
		}

		// Invoices are always locked before their tasks.
		if p.InvoiceSet {
			if err := lockInvoices(ctx, q, cur.InvoiceID, p.InvoiceID); err != nil {
				return err
			}
		}

		t, err := lockTask(ctx, q, id)
		if err != nil {
			return err
		}
		if p.InvoiceSet && !sameInvoice(t.InvoiceID, cur.InvoiceID) {
			return fmt.Errorf("task %d changed invoice while patching: %w", id, ErrConflict)
		}

		if applyTaskPatch(t, p) {
			t.Title = strings.TrimSpace(t.Title)
			if err := validateTask(ctx, q, t); err != nil {
				return err
			}
			if err := q.UpdateTask(ctx, t); err != nil {
				return fmt.Errorf("update task: %w", err)
			}
			if err := s.audit.Record(ctx, q, userID, domain.AuditActionTaskUpdate, domain.AuditCategoryTask, map[string]interface{}{
				"task_id": id,
				"status":  t.Status,
			}); err != nil {
				return err
			}
		}

		if p.InvoiceSet {
			if res.Released, res.Invoice, err = s.moveInvoice(ctx, q, userID, t, p.InvoiceID); err != nil {
				return err
			}
		}

		res.Task, err = q.GetTask(ctx, id)
		return err
	})
	if err != nil {
		return TaskResult{}, err
	}
	for _, out := range []*InvoiceOutcome{res.Released, res.Invoice} {
		if out != nil {
			s.invoices.logOutcome(ctx, userID, *out)
		}
	}
	return res, nil
}

// moveInvoice relinks t to target, or unlinks it when target is nil. It
// returns the outcome for the invoice left and for the invoice joined.
func (s *TaskService) moveInvoice(ctx context.Context, q repository.Queries, userID int64, t *domain.Task, target *int64) (released, joined *InvoiceOutcome, err error) {
	if sameInvoice(t.InvoiceID, target) {
		return nil, nil, nil
	}

	if t.InvoiceID != nil {
		out, err := s.invoices.removeTask(ctx, q, userID, *t.InvoiceID, t.ID)
		if err != nil {
			return nil, nil, err
		}
		released = &out
	}
	if target != nil {
		out, err := s.invoices.update(ctx, q, userID, *target, InvoiceChanges{}, []int64{t.ID})
		if err != nil {
			return nil, nil, err
		}
		joined = &out
	}
	return released, joined, nil
}

func sameInvoice(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Delete removes the task. An invoice it leaves empty is deleted too.
func (s *TaskService) Delete(ctx context.Context, userID, id int64) error {
	var emptied bool
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		cur, err := q.GetTask(ctx, id)
		if err != nil {
			return mapTaskErr(err, id)
		}
		if cur.UserID != userID {
			return notFound("task", id)
		}
		if err := lockInvoices(ctx, q, cur.InvoiceID); err != nil {
			return err
		}
		t, err := lockTask(ctx, q, id)
		if err != nil {
			return err
		}
		if !sameInvoice(t.InvoiceID, cur.InvoiceID) {
			return fmt.Errorf("task %d changed invoice while deleting: %w", id, ErrConflict)
		}

		if err := q.DeleteTask(ctx, id); err != nil {
			return mapTaskErr(err, id)
		}
		if t.InvoiceID != nil {
			if emptied, err = s.invoices.dropIfEmpty(ctx, q, *t.InvoiceID); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, q, userID, domain.AuditActionTaskDelete, domain.AuditCategoryTask, map[string]interface{}{
			"task_id":    id,
			"invoice_id": t.InvoiceID,
		})
	})
	if err != nil {
		return err
	}
	if emptied {
		InvoicesDeleted.WithLabelValues("emptied").Inc()
	}
	return nil
}

// Archive hides the task and records who did it. Archiving an archived
// task changes nothing.
func (s *TaskService) Archive(ctx context.Context, userID, id int64) (*domain.Task, error) {
	var (
		t       *domain.Task
		changed bool
	)
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		if t, err = lockOwnedTask(ctx, q, userID, id); err != nil {
			return err
		}
		if t.IsHidden {
			return nil
		}

		at := s.now()
		by := userID
		t.IsHidden = true
		t.ArchivedAt = &at
		t.ArchivedBy = &by
		if err := q.UpdateTask(ctx, t); err != nil {
			return fmt.Errorf("archive task: %w", err)
		}
		changed = true
		return s.audit.Record(ctx, q, userID, domain.AuditActionTaskArchive, domain.AuditCategoryTask, map[string]interface{}{
			"task_id": id,
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		TasksArchived.Inc()
		logger.WithContext(ctx).Info("task archived", "task_id", id, "user_id", userID)
	}
	return t, nil
}

// Unarchive makes the task visible again and clears the archive record.
func (s *TaskService) Unarchive(ctx context.Context, userID, id int64) (*domain.Task, error) {
	var t *domain.Task
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		if t, err = lockOwnedTask(ctx, q, userID, id); err != nil {
			return err
		}
		if !t.IsHidden && t.ArchivedAt == nil && t.ArchivedBy == nil {
			return nil
		}

		t.IsHidden = false
		t.ArchivedAt = nil
		t.ArchivedBy = nil
		if err := q.UpdateTask(ctx, t); err != nil {
			return fmt.Errorf("unarchive task: %w", err)
		}
		return s.audit.Record(ctx, q, userID, domain.AuditActionTaskUnarchive, domain.AuditCategoryTask, map[string]interface{}{
			"task_id": id,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func lockTask(ctx context.Context, q repository.Queries, id int64) (*domain.Task, error) {
	locked, err := q.LockTasks(ctx, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("lock task: %w", err)
	}
	if len(locked) == 0 {
		return nil, notFound("task", id)
	}
	return locked[0], nil
}

func lockOwnedTask(ctx context.Context, q repository.Queries, userID, id int64) (*domain.Task, error) {
	t, err := lockTask(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, notFound("task", id)
	}
	return t, nil
}

// lockInvoices locks the given invoices in id order. Missing ids are skipped;
// ownership is checked by the operation that uses the invoice.
func lockInvoices(ctx context.Context, q repository.Queries, ids ...*int64) error {
	var sorted []int64
	for _, id := range ids {
		if id != nil {
			sorted = append(sorted, *id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sorted = uniqueIDs(sorted)

	for _, id := range sorted {
		if _, err := q.LockInvoice(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lock invoice %d: %w", id, err)
		}
	}
	return nil
}

func mapTaskErr(err error, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("task", id)
	}
	return err
}

func applyTaskPatch(t *domain.Task, p TaskPatch) bool {
	changed := false
	if p.Title != nil {
		t.Title = *p.Title
		changed = true
	}
	if p.Description != nil {
		t.Description = *p.Description
		changed = true
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
		changed = true
	}
	if p.StartingDate != nil {
		t.StartingDate = *p.StartingDate
		changed = true
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
		changed = true
	}
	if p.Status != nil {
		t.Status = *p.Status
		changed = true
	}
	if p.ClearAmount {
		t.Amount = nil
		changed = true
	} else if p.Amount != nil {
		a := *p.Amount
		t.Amount = &a
		changed = true
	}
	if p.ClientID != nil {
		t.ClientID = *p.ClientID
		changed = true
	}
	return changed
}

func validateTask(ctx context.Context, q repository.Queries, t *domain.Task) error {
	v := &ValidationError{}
	if t.Title == "" {
		v.Add("title", "required", nil, "title is required")
	} else if len(t.Title) > maxTitleLen {
		v.Add("title", "too_long", nil, "title must be at most %d characters", maxTitleLen)
	}
	if !t.Priority.Valid() {
		v.Add("priority", "invalid", nil, "unknown priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		v.Add("status", "invalid", nil, "unknown status %q", t.Status)
	}
	if t.StartingDate.IsZero() {
		v.Add("starting_date", "required", nil, "starting_date is required")
	}
	if t.DueDate.IsZero() {
		v.Add("due_date", "required", nil, "due_date is required")
	} else if t.DueDate.Before(t.StartingDate) {
		v.Add("due_date", "before_starting_date", nil, "due_date must not be before starting_date")
	}
	if t.Amount != nil {
		switch {
		case t.Amount.IsNegative():
			v.Add("amount", "negative", nil, "amount must not be negative")
		case !t.Amount.Equal(t.Amount.Round(amountScale)):
			v.Add("amount", "too_precise", nil, "amount allows at most %d decimal places", amountScale)
		case t.Amount.GreaterThanOrEqual(maxAmount):
			v.Add("amount", "too_large", nil, "amount must be below %s", maxAmount)
		}
	}
	if t.ClientID <= 0 {
		v.Add("client_id", "required", nil, "client_id is required")
	} else if _, err := q.GetClient(ctx, t.ClientID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		v.Add("client_id", "not_found", nil, "client %d does not exist", t.ClientID)
	}
	return v.OrNil()
}
