package service

import (
	"errors"
	"sync"
	"testing"

	"taskify/internal/domain"

	"github.com/shopspring/decimal"
)

func TestCreateInvoice_ComputesTotalsAsDraft(t *testing.T) {
	e := newTestEnv(t)
	task := e.addTask(t, e.user, domain.TaskStatusCompleted, "100.00")

	d, err := e.svc.Invoices.Create(e.ctx, CreateInvoiceInput{
		UserID:  e.user.ID,
		TaskIDs: []int64{task.ID},
		Date:    day(15),
		TaxRate: decimal.NewFromInt(23),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if d.Invoice.Status != domain.InvoiceStatusDraft {
		t.Fatalf("status = %s, want draft", d.Invoice.Status)
	}
	if got := d.Totals.Subtotal.StringFixed(2); got != "100.00" {
		t.Fatalf("subtotal = %s", got)
	}
	if got := d.Totals.TaxAmount.StringFixed(2); got != "23.00" {
		t.Fatalf("tax = %s", got)
	}
	if got := d.Totals.Total.StringFixed(2); got != "77.00" {
		t.Fatalf("total = %s", got)
	}
	if id := e.taskInvoice(t, task.ID); id == nil || *id != d.Invoice.ID {
		t.Fatalf("task not linked to invoice %d", d.Invoice.ID)
	}
}

func TestCreateInvoice_Validation(t *testing.T) {
	e := newTestEnv(t)
	completed := e.addTask(t, e.user, domain.TaskStatusCompleted, "10")
	pending := e.addTask(t, e.user, domain.TaskStatusPending, "10")
	foreign := e.addTask(t, e.other, domain.TaskStatusCompleted, "10")
	invoiced := e.addTask(t, e.user, domain.TaskStatusCompleted, "10")
	e.invoice(t, invoiced.ID)

	due := day(1)
	tests := []struct {
		name  string
		in    CreateInvoiceInput
		cause error
	}{
		{"empty task set", CreateInvoiceInput{TaskIDs: nil}, ErrEmptyTaskSet},
		{"missing task", CreateInvoiceInput{TaskIDs: []int64{completed.ID, 9999}}, ErrTaskNotFound},
		{"not completed", CreateInvoiceInput{TaskIDs: []int64{pending.ID}}, ErrTaskNotCompleted},
		{"other user", CreateInvoiceInput{TaskIDs: []int64{foreign.ID}}, ErrTaskNotOwned},
		{"already invoiced", CreateInvoiceInput{TaskIDs: []int64{invoiced.ID}}, ErrTaskAlreadyInvoiced},
		{"tax above 100", CreateInvoiceInput{TaskIDs: []int64{completed.ID}, TaxRate: decimal.NewFromInt(101)}, ErrInvalidField},
		{"tax beyond four decimals", CreateInvoiceInput{TaskIDs: []int64{completed.ID}, TaxRate: decimal.RequireFromString("8.33333")}, ErrInvalidField},
		{"due before date", CreateInvoiceInput{TaskIDs: []int64{completed.ID}, DueDate: &due}, ErrInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.UserID = e.user.ID
			in.Date = day(15)

			_, err := e.svc.Invoices.Create(e.ctx, in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Fatalf("expected cause %v, got %v", tt.cause, err)
			}
		})
	}

	// nothing from the failed attempts may have been persisted
	if id := e.taskInvoice(t, completed.ID); id != nil {
		t.Fatalf("completed task linked to invoice %d after failed creates", *id)
	}
	invoices, _ := e.store.ListInvoices(e.ctx, e.user.ID, "")
	if len(invoices) != 1 {
		t.Fatalf("invoices = %d, want 1", len(invoices))
	}
}

func TestCreateInvoice_ReportsEveryViolation(t *testing.T) {
	e := newTestEnv(t)
	pending := e.addTask(t, e.user, domain.TaskStatusPending, "1")
	foreign := e.addTask(t, e.other, domain.TaskStatusCompleted, "1")

	_, err := e.svc.Invoices.Create(e.ctx, CreateInvoiceInput{
		UserID:  e.user.ID,
		TaskIDs: []int64{pending.ID, foreign.ID},
		Date:    day(15),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Problems) != 2 {
		t.Fatalf("problems = %+v, want 2", verr.Problems)
	}
	if !errors.Is(err, ErrTaskNotCompleted) || !errors.Is(err, ErrTaskNotOwned) {
		t.Fatalf("missing cause in %v", err)
	}
}

func TestCreateInvoice_OtherUsersTaskPersistsNothing(t *testing.T) {
	e := newTestEnv(t)
	mine := e.addTask(t, e.user, domain.TaskStatusCompleted, "5")
	foreign := e.addTask(t, e.other, domain.TaskStatusCompleted, "5")

	_, err := e.svc.Invoices.Create(e.ctx, CreateInvoiceInput{
		UserID:  e.user.ID,
		TaskIDs: []int64{mine.ID, foreign.ID},
		Date:    day(15),
	})
	if !errors.Is(err, ErrTaskNotOwned) {
		t.Fatalf("expected ErrTaskNotOwned, got %v", err)
	}
	invoices, _ := e.store.ListInvoices(e.ctx, e.user.ID, "")
	if len(invoices) != 0 {
		t.Fatalf("invoice persisted: %+v", invoices[0])
	}
	if id := e.taskInvoice(t, mine.ID); id != nil {
		t.Fatalf("task linked to %d", *id)
	}
}

func TestCreateInvoice_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	e := newTestEnv(t)
	task := e.addTask(t, e.user, domain.TaskStatusCompleted, "50")

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Invoices.Create(e.ctx, CreateInvoiceInput{
				UserID:  e.user.ID,
				TaskIDs: []int64{task.ID},
				Date:    day(15),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrTaskAlreadyInvoiced) && !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected failure: %v", err)
		}
	}
	e.assertNoEmptyInvoices(t)
}

func TestRemoveTask_LastTaskDeletesInvoice(t *testing.T) {
	e := newTestEnv(t)
	task := e.addTask(t, e.user, domain.TaskStatusCompleted, "10")
	d := e.invoice(t, task.ID)

	out, err := e.svc.Invoices.RemoveTask(e.ctx, e.user.ID, d.Invoice.ID, task.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !out.Deleted() || out.Details != nil {
		t.Fatalf("outcome = %+v, want deleted", out)
	}
	if _, err := e.svc.Invoices.Get(e.ctx, e.user.ID, d.Invoice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("invoice still readable: %v", err)
	}
	if id := e.taskInvoice(t, task.ID); id != nil {
		t.Fatalf("task still linked to %d", *id)
	}
}

func TestRemoveTask_KeepsInvoiceWithRemainingTasks(t *testing.T) {
	e := newTestEnv(t)
	a := e.addTask(t, e.user, domain.TaskStatusCompleted, "10")
	b := e.addTask(t, e.user, domain.TaskStatusCompleted, "15.50")
	d := e.invoice(t, a.ID, b.ID)

	out, err := e.svc.Invoices.RemoveTask(e.ctx, e.user.ID, d.Invoice.ID, a.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if out.Deleted() {
		t.Fatalf("invoice deleted with a task left")
	}
	if got := out.Details.Totals.Subtotal.StringFixed(2); got != "15.50" {
		t.Fatalf("subtotal = %s, want 15.50", got)
	}

	_, err = e.svc.Invoices.RemoveTask(e.ctx, e.user.ID, d.Invoice.ID, a.ID)
	if !errors.Is(err, ErrTaskNotInInvoice) {
		t.Fatalf("second remove: expected ErrTaskNotInInvoice, got %v", err)
	}
}

func TestUpdateInvoice_AddsTasksAndEditsFields(t *testing.T) {
	e := newTestEnv(t)
	a := e.addTask(t, e.user, domain.TaskStatusCompleted, "100")
	b := e.addTask(t, e.user, domain.TaskStatusCompleted, "")
	d := e.invoice(t, a.ID)

	rate := decimal.NewFromInt(10)
	paid := domain.InvoiceStatusPaid
	out, err := e.svc.Invoices.Update(e.ctx, e.user.ID, d.Invoice.ID, InvoiceChanges{
		TaxRate: &rate,
		Status:  &paid,
	}, []int64{a.ID, b.ID, b.ID})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Deleted() {
		t.Fatal("unexpected delete")
	}
	if out.Details.Invoice.Status != domain.InvoiceStatusPaid {
		t.Fatalf("status = %s", out.Details.Invoice.Status)
	}
	if len(out.Details.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(out.Details.Tasks))
	}
	if got := out.Details.Totals.Total.StringFixed(2); got != "90.00" {
		t.Fatalf("total = %s, want 90.00", got)
	}

	// any status may follow any other
	draft := domain.InvoiceStatusDraft
	if _, err := e.svc.Invoices.Update(e.ctx, e.user.ID, d.Invoice.ID, InvoiceChanges{Status: &draft}, nil); err != nil {
		t.Fatalf("paid -> draft: %v", err)
	}
}

func TestUpdateInvoice_RejectsIneligibleAdds(t *testing.T) {
	e := newTestEnv(t)
	a := e.addTask(t, e.user, domain.TaskStatusCompleted, "1")
	pending := e.addTask(t, e.user, domain.TaskStatusInProgress, "1")
	d := e.invoice(t, a.ID)

	desc := "changed"
	_, err := e.svc.Invoices.Update(e.ctx, e.user.ID, d.Invoice.ID, InvoiceChanges{Description: &desc}, []int64{pending.ID})
	if !errors.Is(err, ErrTaskNotCompleted) {
		t.Fatalf("expected ErrTaskNotCompleted, got %v", err)
	}

	got, err := e.svc.Invoices.Get(e.ctx, e.user.ID, d.Invoice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Invoice.Description != nil {
		t.Fatalf("description persisted from failed update: %q", *got.Invoice.Description)
	}
}

func TestInvoiceIsScopedToOwner(t *testing.T) {
	e := newTestEnv(t)
	task := e.addTask(t, e.user, domain.TaskStatusCompleted, "1")
	d := e.invoice(t, task.ID)

	if _, err := e.svc.Invoices.Get(e.ctx, e.other.ID, d.Invoice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get by other user: %v", err)
	}
	if err := e.svc.Invoices.Delete(e.ctx, e.other.ID, d.Invoice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete by other user: %v", err)
	}
	if _, err := e.svc.Invoices.RemoveTask(e.ctx, e.other.ID, d.Invoice.ID, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove by other user: %v", err)
	}
}

func TestDeleteInvoice_ReleasesTasks(t *testing.T) {
	e := newTestEnv(t)
	a := e.addTask(t, e.user, domain.TaskStatusCompleted, "1")
	b := e.addTask(t, e.user, domain.TaskStatusCompleted, "2")
	d := e.invoice(t, a.ID, b.ID)

	if err := e.svc.Invoices.Delete(e.ctx, e.user.ID, d.Invoice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, id := range []int64{a.ID, b.ID} {
		if inv := e.taskInvoice(t, id); inv != nil {
			t.Fatalf("task %d still linked to %d", id, *inv)
		}
	}

	billable, err := e.svc.Invoices.ListBillable(e.ctx, e.user.ID)
	if err != nil {
		t.Fatalf("billable: %v", err)
	}
	if len(billable) != 2 {
		t.Fatalf("billable = %d, want 2", len(billable))
	}
}

func TestListInvoices_GroupsTasksAndFiltersStatus(t *testing.T) {
	e := newTestEnv(t)
	a := e.addTask(t, e.user, domain.TaskStatusCompleted, "3")
	b := e.addTask(t, e.user, domain.TaskStatusCompleted, "4")
	first := e.invoice(t, a.ID)
	e.invoice(t, b.ID)

	sent := domain.InvoiceStatusSent
	if _, err := e.svc.Invoices.Update(e.ctx, e.user.ID, first.Invoice.ID, InvoiceChanges{Status: &sent}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := e.svc.Invoices.List(e.ctx, e.user.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("invoices = %d, want 2", len(all))
	}
	for _, d := range all {
		if len(d.Tasks) != 1 {
			t.Fatalf("invoice %d has %d tasks", d.Invoice.ID, len(d.Tasks))
		}
	}

	onlySent, err := e.svc.Invoices.List(e.ctx, e.user.ID, domain.InvoiceStatusSent)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(onlySent) != 1 || onlySent[0].Invoice.ID != first.Invoice.ID {
		t.Fatalf("sent invoices = %+v", onlySent)
	}

	if _, err := e.svc.Invoices.List(e.ctx, e.user.ID, "bogus"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bogus status: %v", err)
	}
}

func TestInvoiceNeverLeftEmpty(t *testing.T) {
	e := newTestEnv(t)
	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, e.addTask(t, e.user, domain.TaskStatusCompleted, "1").ID)
	}
	d := e.invoice(t, ids[0], ids[1])

	steps := []func() error{
		func() error {
			_, err := e.svc.Invoices.Update(e.ctx, e.user.ID, d.Invoice.ID, InvoiceChanges{}, []int64{ids[2]})
			return err
		},
		func() error {
			_, err := e.svc.Invoices.RemoveTask(e.ctx, e.user.ID, d.Invoice.ID, ids[0])
			return err
		},
		func() error { return e.svc.Tasks.Delete(e.ctx, e.user.ID, ids[1]) },
		func() error {
			_, err := e.svc.Invoices.RemoveTask(e.ctx, e.user.ID, d.Invoice.ID, ids[2])
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		e.assertNoEmptyInvoices(t)
	}

	if _, err := e.svc.Invoices.Get(e.ctx, e.user.ID, d.Invoice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("invoice should be gone, got %v", err)
	}
}

func TestTotals(t *testing.T) {
	e := newTestEnv(t)
	a := e.addTask(t, e.user, domain.TaskStatusCompleted, "19.99")
	b := e.addTask(t, e.user, domain.TaskStatusCompleted, "0.01")
	d, err := e.svc.Invoices.Create(e.ctx, CreateInvoiceInput{
		UserID:  e.user.ID,
		TaskIDs: []int64{a.ID, b.ID},
		Date:    day(15),
		TaxRate: decimal.RequireFromString("8.5"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	totals, err := e.svc.Invoices.Totals(e.ctx, e.user.ID, d.Invoice.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Subtotal.StringFixed(2) != "20.00" || totals.TaxAmount.StringFixed(2) != "1.70" || totals.Total.StringFixed(2) != "18.30" {
		t.Fatalf("totals = %s/%s/%s", totals.Subtotal, totals.TaxAmount, totals.Total)
	}
	if !totals.Total.Equal(totals.Subtotal.Sub(totals.TaxAmount)) {
		t.Fatal("total != subtotal - tax")
	}
}

func TestCreateInvoice_ResponseMatchesStoredInvoice(t *testing.T) {
	e := newTestEnv(t)
	task := e.addTask(t, e.user, domain.TaskStatusCompleted, "10.01")

	created, err := e.svc.Invoices.Create(e.ctx, CreateInvoiceInput{
		UserID:  e.user.ID,
		TaskIDs: []int64{task.ID},
		Date:    day(15),
		TaxRate: decimal.RequireFromString("8.3333"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := e.svc.Invoices.Get(e.ctx, e.user.ID, created.Invoice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Invoice.TaxRate.Equal(created.Invoice.TaxRate) {
		t.Fatalf("stored tax_rate = %s, created %s", got.Invoice.TaxRate, created.Invoice.TaxRate)
	}
	if !got.Totals.Total.Equal(created.Totals.Total) || !got.Totals.TaxAmount.Equal(created.Totals.TaxAmount) {
		t.Fatalf("totals drifted: created %+v, read %+v", created.Totals, got.Totals)
	}
}

func TestUpdateInvoice_RejectsOverPreciseTaxRate(t *testing.T) {
	e := newTestEnv(t)
	task := e.addTask(t, e.user, domain.TaskStatusCompleted, "10")
	d := e.invoice(t, task.ID)

	rate := decimal.RequireFromString("12.00001")
	_, err := e.svc.Invoices.Update(e.ctx, e.user.ID, d.Invoice.ID, InvoiceChanges{TaxRate: &rate}, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Problems[0].Code != "too_precise" {
		t.Fatalf("err = %v, want tax_rate too_precise", err)
	}
}
