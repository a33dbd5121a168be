package service

import (
	"context"
	"sort"
	"time"

	"taskify/internal/domain"
	"taskify/internal/repository"

	"github.com/shopspring/decimal"
)

const upcomingWindow = 7 * 24 * time.Hour

// InvoiceBucket aggregates the invoices sharing one status.
type InvoiceBucket struct {
	Count int
	Total decimal.Decimal
}

type Dashboard struct {
	TasksByStatus  map[domain.TaskStatus]int
	VisibleTasks   int
	ArchivedTasks  int
	UnbilledTasks  int
	UnbilledAmount decimal.Decimal
	Invoices       map[domain.InvoiceStatus]InvoiceBucket
	// Upcoming holds unfinished visible tasks due within the next week.
	Upcoming []*domain.Task
}

type DashboardService struct {
	store repository.Store
	now   func() time.Time
}

func NewDashboardService(store repository.Store) *DashboardService {
	return &DashboardService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *DashboardService) Summary(ctx context.Context, userID int64) (*Dashboard, error) {
	var (
		tasks    []*domain.Task
		invoices []*domain.Invoice
	)
	// one snapshot for both reads so invoice totals match the task counts
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		if tasks, err = q.ListTasks(ctx, domain.TaskFilter{UserID: userID, View: domain.TaskViewAll}); err != nil {
			return err
		}
		invoices, err = q.ListInvoices(ctx, userID, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TasksByStatus: map[domain.TaskStatus]int{
			domain.TaskStatusPending:    0,
			domain.TaskStatusInProgress: 0,
			domain.TaskStatusCompleted:  0,
		},
		UnbilledAmount: decimal.Zero,
		Invoices:       make(map[domain.InvoiceStatus]InvoiceBucket, len(domain.InvoiceStatuses)),
		Upcoming:       []*domain.Task{},
	}
	for _, st := range domain.InvoiceStatuses {
		d.Invoices[st] = InvoiceBucket{Total: decimal.Zero}
	}

	now := s.now()
	horizon := now.Add(upcomingWindow)
	byInvoice := make(map[int64][]*domain.Task)
	for _, t := range tasks {
		d.TasksByStatus[t.Status]++
		if t.IsHidden {
			d.ArchivedTasks++
		} else {
			d.VisibleTasks++
		}
		if t.Billable() {
			d.UnbilledTasks++
			d.UnbilledAmount = d.UnbilledAmount.Add(t.AmountOrZero())
		}
		if t.InvoiceID != nil {
			byInvoice[*t.InvoiceID] = append(byInvoice[*t.InvoiceID], t)
		}
		if !t.IsHidden && t.Status != domain.TaskStatusCompleted &&
			!t.DueDate.Before(now.Truncate(24*time.Hour)) && !t.DueDate.After(horizon) {
			d.Upcoming = append(d.Upcoming, t)
		}
	}
	sort.SliceStable(d.Upcoming, func(i, j int) bool { return d.Upcoming[i].DueDate.Before(d.Upcoming[j].DueDate) })

	for _, inv := range invoices {
		b := d.Invoices[inv.Status]
		b.Count++
		b.Total = b.Total.Add(domain.ComputeTotals(byInvoice[inv.ID], inv.TaxRate).Total)
		d.Invoices[inv.Status] = b
	}
	return d, nil
}
