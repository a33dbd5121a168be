package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"taskify/internal/domain"
)

// MemoryStore keeps everything in process memory. A single mutex serialises
// transactions, and a failed transaction restores the snapshot taken when it
// began. Foreign key behaviour mirrors the SQL schema: deleting a client
// cascades to its tasks, deleting an invoice unlinks its tasks.
type MemoryStore struct {
	memQueries

	mu   sync.Mutex
	data *memData
}

type memData struct {
	users    map[int64]*domain.User
	clients  map[int64]*domain.Client
	tasks    map[int64]*domain.Task
	invoices map[int64]*domain.Invoice
	audit    []*domain.AuditLog
	seq      int64
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data: &memData{
			users:    make(map[int64]*domain.User),
			clients:  make(map[int64]*domain.Client),
			tasks:    make(map[int64]*domain.Task),
			invoices: make(map[int64]*domain.Invoice),
		},
	}
	s.memQueries = memQueries{s: s}
	return s
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(memQueries{s: s, inTx: true}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (d *memData) clone() *memData {
	c := &memData{
		users:    make(map[int64]*domain.User, len(d.users)),
		clients:  make(map[int64]*domain.Client, len(d.clients)),
		tasks:    make(map[int64]*domain.Task, len(d.tasks)),
		invoices: make(map[int64]*domain.Invoice, len(d.invoices)),
		audit:    append([]*domain.AuditLog(nil), d.audit...),
		seq:      d.seq,
	}
	for id, u := range d.users {
		cp := *u
		c.users[id] = &cp
	}
	for id, cl := range d.clients {
		cp := *cl
		c.clients[id] = &cp
	}
	for id, t := range d.tasks {
		c.tasks[id] = t.Clone()
	}
	for id, inv := range d.invoices {
		c.invoices[id] = inv.Clone()
	}
	return c
}

func (d *memData) nextID() int64 {
	d.seq++
	return d.seq
}

// memQueries implements Queries. Outside a transaction every call takes the
// store lock itself; inside one the lock is already held by InTx.
type memQueries struct {
	s    *MemoryStore
	inTx bool
}

func (q memQueries) enter() (*memData, func()) {
	if q.inTx {
		return q.s.data, func() {}
	}
	q.s.mu.Lock()
	return q.s.data, q.s.mu.Unlock
}

func now() time.Time {
	return time.Now().UTC()
}

func (q memQueries) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	d, done := q.enter()
	defer done()

	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (q memQueries) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	d, done := q.enter()
	defer done()

	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (q memQueries) CreateUser(ctx context.Context, u *domain.User) error {
	d, done := q.enter()
	defer done()

	for _, existing := range d.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return &DuplicateError{Field: "email"}
		}
	}
	u.ID = d.nextID()
	u.CreatedAt = now()
	cp := *u
	d.users[u.ID] = &cp
	return nil
}

func (q memQueries) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	d, done := q.enter()
	defer done()

	c, ok := d.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (q memQueries) ListClients(ctx context.Context, filter domain.ClientFilter) ([]*domain.Client, error) {
	d, done := q.enter()
	defer done()

	var res []*domain.Client
	for _, c := range d.clients {
		if filter.Active != nil && c.IsActive != *filter.Active {
			continue
		}
		cp := *c
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (d *memData) checkClientUnique(c *domain.Client) error {
	for _, existing := range d.clients {
		if existing.ID == c.ID {
			continue
		}
		if existing.TIN == c.TIN {
			return &DuplicateError{Field: "tin"}
		}
		if strings.EqualFold(existing.Email, c.Email) {
			return &DuplicateError{Field: "email"}
		}
	}
	return nil
}

func (q memQueries) CreateClient(ctx context.Context, c *domain.Client) error {
	d, done := q.enter()
	defer done()

	c.ID = 0
	if err := d.checkClientUnique(c); err != nil {
		return err
	}
	c.ID = d.nextID()
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	d.clients[c.ID] = &cp
	return nil
}

func (q memQueries) UpdateClient(ctx context.Context, c *domain.Client) error {
	d, done := q.enter()
	defer done()

	existing, ok := d.clients[c.ID]
	if !ok {
		return ErrNotFound
	}
	if err := d.checkClientUnique(c); err != nil {
		return err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = now()
	cp := *c
	d.clients[c.ID] = &cp
	return nil
}

func (q memQueries) DeleteClient(ctx context.Context, id int64) error {
	d, done := q.enter()
	defer done()

	if _, ok := d.clients[id]; !ok {
		return ErrNotFound
	}
	delete(d.clients, id)
	for tid, t := range d.tasks {
		if t.ClientID == id {
			delete(d.tasks, tid)
		}
	}
	return nil
}

func (q memQueries) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	d, done := q.enter()
	defer done()

	t, ok := d.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (q memQueries) LockTasks(ctx context.Context, ids []int64) ([]*domain.Task, error) {
	d, done := q.enter()
	defer done()

	seen := make(map[int64]bool, len(ids))
	var res []*domain.Task
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := d.tasks[id]; ok {
			res = append(res, t.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (q memQueries) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	d, done := q.enter()
	defer done()

	var res []*domain.Task
	for _, t := range d.tasks {
		if filter.Match(t) {
			res = append(res, t.Clone())
		}
	}
	sortTasks(res)
	return res, nil
}

func sortTasks(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].DueDate.Equal(tasks[j].DueDate) {
			return tasks[i].DueDate.Before(tasks[j].DueDate)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func (d *memData) checkTaskRefs(t *domain.Task) error {
	if _, ok := d.users[t.UserID]; !ok {
		return fmt.Errorf("tasks.user_id: user %d does not exist", t.UserID)
	}
	if _, ok := d.clients[t.ClientID]; !ok {
		return fmt.Errorf("tasks.client_id: client %d does not exist", t.ClientID)
	}
	if t.InvoiceID != nil {
		if _, ok := d.invoices[*t.InvoiceID]; !ok {
			return fmt.Errorf("tasks.invoice_id: invoice %d does not exist", *t.InvoiceID)
		}
	}
	return nil
}

func (q memQueries) CreateTask(ctx context.Context, t *domain.Task) error {
	d, done := q.enter()
	defer done()

	if err := d.checkTaskRefs(t); err != nil {
		return err
	}
	t.ID = d.nextID()
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	d.tasks[t.ID] = t.Clone()
	return nil
}

func (q memQueries) UpdateTask(ctx context.Context, t *domain.Task) error {
	d, done := q.enter()
	defer done()

	existing, ok := d.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	if err := d.checkTaskRefs(t); err != nil {
		return err
	}
	t.UserID = existing.UserID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = now()
	d.tasks[t.ID] = t.Clone()
	return nil
}

func (q memQueries) DeleteTask(ctx context.Context, id int64) error {
	d, done := q.enter()
	defer done()

	if _, ok := d.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(d.tasks, id)
	return nil
}

func (q memQueries) ClaimTasks(ctx context.Context, invoiceID int64, ids []int64) (int64, error) {
	d, done := q.enter()
	defer done()

	if _, ok := d.invoices[invoiceID]; !ok {
		return 0, fmt.Errorf("tasks.invoice_id: invoice %d does not exist", invoiceID)
	}
	var n int64
	ts := now()
	for _, id := range ids {
		t, ok := d.tasks[id]
		if !ok || t.InvoiceID != nil {
			continue
		}
		inv := invoiceID
		t.InvoiceID = &inv
		t.UpdatedAt = ts
		n++
	}
	return n, nil
}

func (q memQueries) ReleaseTask(ctx context.Context, invoiceID, taskID int64) (bool, error) {
	d, done := q.enter()
	defer done()

	t, ok := d.tasks[taskID]
	if !ok || t.InvoiceID == nil || *t.InvoiceID != invoiceID {
		return false, nil
	}
	t.InvoiceID = nil
	t.UpdatedAt = now()
	return true, nil
}

func (q memQueries) ReleaseInvoiceTasks(ctx context.Context, invoiceID int64) (int64, error) {
	d, done := q.enter()
	defer done()

	return d.releaseInvoiceTasks(invoiceID), nil
}

func (d *memData) releaseInvoiceTasks(invoiceID int64) int64 {
	var n int64
	ts := now()
	for _, t := range d.tasks {
		if t.InvoiceID != nil && *t.InvoiceID == invoiceID {
			t.InvoiceID = nil
			t.UpdatedAt = ts
			n++
		}
	}
	return n
}

func (q memQueries) ListInvoiceTasks(ctx context.Context, invoiceID int64) ([]*domain.Task, error) {
	d, done := q.enter()
	defer done()

	var res []*domain.Task
	for _, t := range d.tasks {
		if t.InvoiceID != nil && *t.InvoiceID == invoiceID {
			res = append(res, t.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (q memQueries) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	d, done := q.enter()
	defer done()

	inv, ok := d.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inv.Clone(), nil
}

func (q memQueries) LockInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	return q.GetInvoice(ctx, id)
}

func (q memQueries) ListInvoices(ctx context.Context, userID int64, status domain.InvoiceStatus) ([]*domain.Invoice, error) {
	d, done := q.enter()
	defer done()

	var res []*domain.Invoice
	for _, inv := range d.invoices {
		if inv.UserID != userID || (status != "" && inv.Status != status) {
			continue
		}
		res = append(res, inv.Clone())
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.After(res[j].Date)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

func (q memQueries) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	d, done := q.enter()
	defer done()

	if _, ok := d.users[inv.UserID]; !ok {
		return fmt.Errorf("invoices.user_id: user %d does not exist", inv.UserID)
	}
	inv.ID = d.nextID()
	inv.CreatedAt = now()
	inv.UpdatedAt = inv.CreatedAt
	d.invoices[inv.ID] = inv.Clone()
	return nil
}

func (q memQueries) UpdateInvoice(ctx context.Context, inv *domain.Invoice) error {
	d, done := q.enter()
	defer done()

	existing, ok := d.invoices[inv.ID]
	if !ok {
		return ErrNotFound
	}
	inv.UserID = existing.UserID
	inv.CreatedAt = existing.CreatedAt
	inv.UpdatedAt = now()
	d.invoices[inv.ID] = inv.Clone()
	return nil
}

func (q memQueries) DeleteInvoice(ctx context.Context, id int64) error {
	d, done := q.enter()
	defer done()

	if _, ok := d.invoices[id]; !ok {
		return ErrNotFound
	}
	d.releaseInvoiceTasks(id)
	delete(d.invoices, id)
	return nil
}

func (q memQueries) CreateAuditLog(ctx context.Context, log *domain.AuditLog) error {
	d, done := q.enter()
	defer done()

	log.ID = d.nextID()
	log.CreatedAt = now()
	cp := *log
	d.audit = append(d.audit, &cp)
	return nil
}

func (q memQueries) ListAuditLogs(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error) {
	d, done := q.enter()
	defer done()

	if limit <= 0 {
		limit = 50
	}
	var res []*domain.AuditLog
	for i := len(d.audit) - 1; i >= 0 && len(res) < limit; i-- {
		if d.audit[i].UserID == userID {
			cp := *d.audit[i]
			res = append(res, &cp)
		}
	}
	return res, nil
}
