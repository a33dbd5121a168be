package service

import "taskify/internal/repository"

// Services wires every service over one store.
type Services struct {
	Audit     *AuditService
	Invoices  *InvoiceService
	Tasks     *TaskService
	Clients   *ClientService
	Dashboard *DashboardService
	Users     *UserService
}

func New(store repository.Store) *Services {
	audit := NewAuditService(store)
	invoices := NewInvoiceService(store, audit)
	return &Services{
		Audit:     audit,
		Invoices:  invoices,
		Tasks:     NewTaskService(store, invoices, audit),
		Clients:   NewClientService(store, invoices, audit),
		Dashboard: NewDashboardService(store),
		Users:     NewUserService(store),
	}
}
