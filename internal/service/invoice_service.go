package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"taskify/internal/domain"
	"taskify/internal/logger"
	"taskify/internal/repository"

	"github.com/shopspring/decimal"
)

var maxTaxRate = decimal.NewFromInt(100)

// tax_rate is stored as NUMERIC(7,4).
const taxRateScale = 4

// OutcomeKind tells callers whether an invoice survived a mutation.
type OutcomeKind string

const (
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeDeleted OutcomeKind = "deleted"
)

// InvoiceOutcome is the result of an operation that may empty an invoice.
// Details is nil when the invoice was deleted.
type InvoiceOutcome struct {
	Kind      OutcomeKind
	InvoiceID int64
	Details   *domain.InvoiceDetails
}

func (o InvoiceOutcome) Deleted() bool {
	return o.Kind == OutcomeDeleted
}

type CreateInvoiceInput struct {
	UserID      int64
	TaskIDs     []int64
	Date        time.Time
	DueDate     *time.Time
	TaxRate     decimal.Decimal
	Description *string
}

// InvoiceChanges lists field edits. Nil pointers leave a field untouched;
// the Clear flags set the nullable columns to null.
type InvoiceChanges struct {
	Date             *time.Time
	DueDate          *time.Time
	ClearDueDate     bool
	TaxRate          *decimal.Decimal
	Description      *string
	ClearDescription bool
	Status           *domain.InvoiceStatus
}

type InvoiceService struct {
	store repository.Store
	audit *AuditService
}

func NewInvoiceService(store repository.Store, audit *AuditService) *InvoiceService {
	return &InvoiceService{store: store, audit: audit}
}

// Create builds a draft invoice from the caller's completed, unbilled tasks.
// Either every task is linked to the new invoice or nothing is written.
func (s *InvoiceService) Create(ctx context.Context, in CreateInvoiceInput) (*domain.InvoiceDetails, error) {
	ids := uniqueIDs(in.TaskIDs)

	v := &ValidationError{}
	if len(ids) == 0 {
		v.Add("task_ids", "required", ErrEmptyTaskSet, "at least one task is required")
	}
	if in.Date.IsZero() {
		v.Add("date", "required", nil, "date is required")
	}
	validateTaxRate(v, in.TaxRate)
	validateDueDate(v, in.Date, in.DueDate)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	var details *domain.InvoiceDetails
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		locked, err := q.LockTasks(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock tasks: %w", err)
		}
		if err := checkEligible(ids, locked, in.UserID); err != nil {
			return err
		}

		inv := &domain.Invoice{
			UserID:      in.UserID,
			Date:        in.Date,
			DueDate:     in.DueDate,
			Status:      domain.InvoiceStatusDraft,
			TaxRate:     in.TaxRate,
			Description: in.Description,
		}
		if err := q.CreateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		if err := claim(ctx, q, inv.ID, ids); err != nil {
			return err
		}

		tasks, err := q.ListInvoiceTasks(ctx, inv.ID)
		if err != nil {
			return err
		}
		details = domain.NewInvoiceDetails(inv, tasks)

		return s.audit.Record(ctx, q, in.UserID, domain.AuditActionInvoiceCreate, domain.AuditCategoryInvoice, map[string]interface{}{
			"invoice_id": inv.ID,
			"task_ids":   ids,
			"subtotal":   details.Totals.Subtotal.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	InvoicesCreated.Inc()
	logger.WithContext(ctx).Info("invoice created",
		"invoice_id", details.Invoice.ID,
		"user_id", in.UserID,
		"tasks", len(ids),
	)
	return details, nil
}

// Update applies field edits and links addIDs. Ids already on the invoice are
// ignored. An invoice left without tasks is deleted instead of saved.
func (s *InvoiceService) Update(ctx context.Context, userID, invoiceID int64, ch InvoiceChanges, addIDs []int64) (InvoiceOutcome, error) {
	v := &ValidationError{}
	if ch.TaxRate != nil {
		validateTaxRate(v, *ch.TaxRate)
	}
	if ch.Status != nil && !ch.Status.Valid() {
		v.Add("status", "invalid", nil, "unknown status %q", *ch.Status)
	}
	if ch.Date != nil && ch.Date.IsZero() {
		v.Add("date", "required", nil, "date cannot be empty")
	}
	if err := v.OrNil(); err != nil {
		return InvoiceOutcome{}, err
	}

	var out InvoiceOutcome
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		out, err = s.update(ctx, q, userID, invoiceID, ch, uniqueIDs(addIDs))
		return err
	})
	if err != nil {
		return InvoiceOutcome{}, err
	}
	s.logOutcome(ctx, userID, out)
	return out, nil
}

func (s *InvoiceService) update(ctx context.Context, q repository.Queries, userID, invoiceID int64, ch InvoiceChanges, addIDs []int64) (InvoiceOutcome, error) {
	inv, err := lockOwnedInvoice(ctx, q, userID, invoiceID)
	if err != nil {
		return InvoiceOutcome{}, err
	}

	changed := applyInvoiceChanges(inv, ch)
	v := &ValidationError{}
	validateDueDate(v, inv.Date, inv.DueDate)
	if err := v.OrNil(); err != nil {
		return InvoiceOutcome{}, err
	}

	current, err := q.ListInvoiceTasks(ctx, invoiceID)
	if err != nil {
		return InvoiceOutcome{}, err
	}
	linked := make(map[int64]bool, len(current))
	for _, t := range current {
		linked[t.ID] = true
	}
	var toAdd []int64
	for _, id := range addIDs {
		if !linked[id] {
			toAdd = append(toAdd, id)
		}
	}

	if len(toAdd) > 0 {
		locked, err := q.LockTasks(ctx, toAdd)
		if err != nil {
			return InvoiceOutcome{}, fmt.Errorf("lock tasks: %w", err)
		}
		if err := checkEligible(toAdd, locked, userID); err != nil {
			return InvoiceOutcome{}, err
		}
		if err := claim(ctx, q, invoiceID, toAdd); err != nil {
			return InvoiceOutcome{}, err
		}
		if err := s.audit.Record(ctx, q, userID, domain.AuditActionInvoiceTaskAdd, domain.AuditCategoryInvoice, map[string]interface{}{
			"invoice_id": invoiceID,
			"task_ids":   toAdd,
		}); err != nil {
			return InvoiceOutcome{}, err
		}
	}

	if len(current)+len(toAdd) == 0 {
		if err := s.deleteEmptied(ctx, q, inv); err != nil {
			return InvoiceOutcome{}, err
		}
		return InvoiceOutcome{Kind: OutcomeDeleted, InvoiceID: invoiceID}, nil
	}

	if changed {
		if err := q.UpdateInvoice(ctx, inv); err != nil {
			return InvoiceOutcome{}, fmt.Errorf("update invoice: %w", err)
		}
		if err := s.audit.Record(ctx, q, userID, domain.AuditActionInvoiceUpdate, domain.AuditCategoryInvoice, map[string]interface{}{
			"invoice_id": invoiceID,
			"status":     inv.Status,
			"tax_rate":   inv.TaxRate.String(),
		}); err != nil {
			return InvoiceOutcome{}, err
		}
	}

	tasks, err := q.ListInvoiceTasks(ctx, invoiceID)
	if err != nil {
		return InvoiceOutcome{}, err
	}
	return InvoiceOutcome{
		Kind:      OutcomeUpdated,
		InvoiceID: invoiceID,
		Details:   domain.NewInvoiceDetails(inv, tasks),
	}, nil
}

// RemoveTask unlinks one task. Removing the last task deletes the invoice.
func (s *InvoiceService) RemoveTask(ctx context.Context, userID, invoiceID, taskID int64) (InvoiceOutcome, error) {
	var out InvoiceOutcome
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		out, err = s.removeTask(ctx, q, userID, invoiceID, taskID)
		return err
	})
	if err != nil {
		return InvoiceOutcome{}, err
	}
	s.logOutcome(ctx, userID, out)
	return out, nil
}

func (s *InvoiceService) removeTask(ctx context.Context, q repository.Queries, userID, invoiceID, taskID int64) (InvoiceOutcome, error) {
	inv, err := lockOwnedInvoice(ctx, q, userID, invoiceID)
	if err != nil {
		return InvoiceOutcome{}, err
	}

	released, err := q.ReleaseTask(ctx, invoiceID, taskID)
	if err != nil {
		return InvoiceOutcome{}, fmt.Errorf("release task: %w", err)
	}
	if !released {
		return InvoiceOutcome{}, invalid("task_id", "not_in_invoice", ErrTaskNotInInvoice,
			"task %d is not in invoice %d", taskID, invoiceID)
	}
	if err := s.audit.Record(ctx, q, userID, domain.AuditActionInvoiceTaskRemove, domain.AuditCategoryInvoice, map[string]interface{}{
		"invoice_id": invoiceID,
		"task_id":    taskID,
	}); err != nil {
		return InvoiceOutcome{}, err
	}

	remaining, err := q.ListInvoiceTasks(ctx, invoiceID)
	if err != nil {
		return InvoiceOutcome{}, err
	}
	if len(remaining) == 0 {
		if err := s.deleteEmptied(ctx, q, inv); err != nil {
			return InvoiceOutcome{}, err
		}
		return InvoiceOutcome{Kind: OutcomeDeleted, InvoiceID: invoiceID}, nil
	}
	return InvoiceOutcome{
		Kind:      OutcomeUpdated,
		InvoiceID: invoiceID,
		Details:   domain.NewInvoiceDetails(inv, remaining),
	}, nil
}

// Delete unlinks every task and removes the invoice in one transaction.
func (s *InvoiceService) Delete(ctx context.Context, userID, invoiceID int64) error {
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if _, err := lockOwnedInvoice(ctx, q, userID, invoiceID); err != nil {
			return err
		}
		released, err := q.ReleaseInvoiceTasks(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("release tasks: %w", err)
		}
		if err := q.DeleteInvoice(ctx, invoiceID); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		return s.audit.Record(ctx, q, userID, domain.AuditActionInvoiceDelete, domain.AuditCategoryInvoice, map[string]interface{}{
			"invoice_id":     invoiceID,
			"released_tasks": released,
		})
	})
	if err != nil {
		return err
	}

	InvoicesDeleted.WithLabelValues("explicit").Inc()
	logger.WithContext(ctx).Info("invoice deleted", "invoice_id", invoiceID, "user_id", userID)
	return nil
}

func (s *InvoiceService) Get(ctx context.Context, userID, invoiceID int64) (*domain.InvoiceDetails, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, mapInvoiceErr(err, invoiceID)
	}
	if inv.UserID != userID {
		return nil, notFound("invoice", invoiceID)
	}

	tasks, err := s.store.ListInvoiceTasks(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return domain.NewInvoiceDetails(inv, tasks), nil
}

// Totals derives subtotal, tax and total from the currently linked tasks.
func (s *InvoiceService) Totals(ctx context.Context, userID, invoiceID int64) (domain.Totals, error) {
	d, err := s.Get(ctx, userID, invoiceID)
	if err != nil {
		return domain.Totals{}, err
	}
	return d.Totals, nil
}

// List returns the user's invoices with their tasks and totals. An empty
// status matches every status.
func (s *InvoiceService) List(ctx context.Context, userID int64, status domain.InvoiceStatus) ([]*domain.InvoiceDetails, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("status", "invalid", nil, "unknown status %q", status)
	}

	invoices, err := s.store.ListInvoices(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return []*domain.InvoiceDetails{}, nil
	}

	// Linked tasks always belong to the invoice owner, so one scan groups them all.
	tasks, err := s.store.ListTasks(ctx, domain.TaskFilter{UserID: userID, View: domain.TaskViewAll})
	if err != nil {
		return nil, err
	}
	byInvoice := make(map[int64][]*domain.Task)
	for _, t := range tasks {
		if t.InvoiceID != nil {
			byInvoice[*t.InvoiceID] = append(byInvoice[*t.InvoiceID], t)
		}
	}

	res := make([]*domain.InvoiceDetails, 0, len(invoices))
	for _, inv := range invoices {
		linked := byInvoice[inv.ID]
		sort.Slice(linked, func(i, j int) bool { return linked[i].ID < linked[j].ID })
		res = append(res, domain.NewInvoiceDetails(inv, linked))
	}
	return res, nil
}

// ListBillable returns the caller's tasks that can be put on an invoice.
func (s *InvoiceService) ListBillable(ctx context.Context, userID int64) ([]*domain.Task, error) {
	return s.store.ListTasks(ctx, domain.TaskFilter{
		UserID:   userID,
		View:     domain.TaskViewAll,
		Billable: true,
	})
}

// dropIfEmpty deletes invoiceID when no task references it any more. Used
// after task and client deletions inside the caller's transaction.
func (s *InvoiceService) dropIfEmpty(ctx context.Context, q repository.Queries, invoiceID int64) (bool, error) {
	inv, err := q.LockInvoice(ctx, invoiceID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	remaining, err := q.ListInvoiceTasks(ctx, invoiceID)
	if err != nil {
		return false, err
	}
	if len(remaining) > 0 {
		return false, nil
	}
	return true, s.deleteEmptied(ctx, q, inv)
}

func (s *InvoiceService) deleteEmptied(ctx context.Context, q repository.Queries, inv *domain.Invoice) error {
	if err := q.DeleteInvoice(ctx, inv.ID); err != nil {
		return fmt.Errorf("delete emptied invoice: %w", err)
	}
	return s.audit.Record(ctx, q, inv.UserID, domain.AuditActionInvoiceEmptied, domain.AuditCategoryInvoice, map[string]interface{}{
		"invoice_id": inv.ID,
	})
}

func (s *InvoiceService) logOutcome(ctx context.Context, userID int64, out InvoiceOutcome) {
	if !out.Deleted() {
		return
	}
	InvoicesDeleted.WithLabelValues("emptied").Inc()
	logger.WithContext(ctx).Info("invoice deleted after losing its last task",
		"invoice_id", out.InvoiceID,
		"user_id", userID,
	)
}

// lockOwnedInvoice locks the invoice row. Invoices of other users are
// reported as missing.
func lockOwnedInvoice(ctx context.Context, q repository.Queries, userID, invoiceID int64) (*domain.Invoice, error) {
	inv, err := q.LockInvoice(ctx, invoiceID)
	if err != nil {
		return nil, mapInvoiceErr(err, invoiceID)
	}
	if inv.UserID != userID {
		return nil, notFound("invoice", invoiceID)
	}
	return inv, nil
}

func mapInvoiceErr(err error, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("invoice", id)
	}
	return err
}

// checkEligible reports every reason a requested task cannot be invoiced.
// locked holds the rows found for ids under lock.
func checkEligible(ids []int64, locked []*domain.Task, userID int64) error {
	byID := make(map[int64]*domain.Task, len(locked))
	for _, t := range locked {
		byID[t.ID] = t
	}

	v := &ValidationError{}
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			v.Add("task_ids", "not_found", ErrTaskNotFound, "task %d does not exist", id)
			continue
		}
		if t.UserID != userID {
			v.Add("task_ids", "not_owned", ErrTaskNotOwned, "task %d belongs to another user", id)
			continue
		}
		if t.Status != domain.TaskStatusCompleted {
			v.Add("task_ids", "not_completed", ErrTaskNotCompleted, "task %d is %s, not completed", id, t.Status)
		}
		if t.InvoiceID != nil {
			v.Add("task_ids", "already_invoiced", ErrTaskAlreadyInvoiced, "task %d already belongs to invoice %d", id, *t.InvoiceID)
		}
	}
	return v.OrNil()
}

// claim links ids to invoiceID. The conditional update only touches
// unassigned rows, so a short count means another invoice got there first.
func claim(ctx context.Context, q repository.Queries, invoiceID int64, ids []int64) error {
	n, err := q.ClaimTasks(ctx, invoiceID, ids)
	if err != nil {
		return fmt.Errorf("claim tasks: %w", err)
	}
	if n != int64(len(ids)) {
		InvoiceClaimConflicts.Inc()
		return fmt.Errorf("claimed %d of %d tasks: %w", n, len(ids), ErrConflict)
	}
	return nil
}

func applyInvoiceChanges(inv *domain.Invoice, ch InvoiceChanges) bool {
	changed := false
	if ch.Date != nil {
		inv.Date = *ch.Date
		changed = true
	}
	if ch.ClearDueDate {
		inv.DueDate = nil
		changed = true
	} else if ch.DueDate != nil {
		d := *ch.DueDate
		inv.DueDate = &d
		changed = true
	}
	if ch.TaxRate != nil {
		inv.TaxRate = *ch.TaxRate
		changed = true
	}
	if ch.ClearDescription {
		inv.Description = nil
		changed = true
	} else if ch.Description != nil {
		d := *ch.Description
		inv.Description = &d
		changed = true
	}
	if ch.Status != nil {
		inv.Status = *ch.Status
		changed = true
	}
	return changed
}

func validateTaxRate(v *ValidationError, rate decimal.Decimal) {
	switch {
	case rate.IsNegative() || rate.GreaterThan(maxTaxRate):
		v.Add("tax_rate", "out_of_range", nil, "tax_rate must be between 0 and 100")
	case !rate.Equal(rate.Round(taxRateScale)):
		v.Add("tax_rate", "too_precise", nil, "tax_rate allows at most %d decimal places", taxRateScale)
	}
}

func validateDueDate(v *ValidationError, date time.Time, due *time.Time) {
	if due != nil && !date.IsZero() && due.Before(date) {
		v.Add("due_date", "before_date", nil, "due_date must not be before date")
	}
}

// uniqueIDs drops duplicates while keeping the first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}
