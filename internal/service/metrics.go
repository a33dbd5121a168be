package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	InvoicesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoices_created_total",
			Help: "Invoices created from task sets",
		},
	)
	InvoicesDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoices_deleted_total",
			Help: "Invoices deleted, by reason (explicit or emptied)",
		},
		[]string{"reason"},
	)
	InvoiceClaimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoice_claim_conflicts_total",
			Help: "Task claims lost to a concurrent invoice",
		},
	)
	TasksArchived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_archived_total",
			Help: "Tasks moved to the archive",
		},
	)
)

func init() {
	prometheus.MustRegister(InvoicesCreated)
	prometheus.MustRegister(InvoicesDeleted)
	prometheus.MustRegister(InvoiceClaimConflicts)
	prometheus.MustRegister(TasksArchived)
}
