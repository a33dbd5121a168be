package handlers

import (
	"net/http"
	"strconv"
	"time"

	"taskify/internal/domain"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type taskRequest struct {
	Title        string           `json:"title" binding:"required,max=255"`
	Description  string           `json:"description" binding:"max=5000"`
	Priority     string           `json:"priority" binding:"omitempty,oneof=low medium high"`
	StartingDate *jsonDate        `json:"starting_date" binding:"required"`
	DueDate      *jsonDate        `json:"due_date" binding:"required"`
	Status       string           `json:"status" binding:"omitempty,oneof=pending in_progress completed"`
	Amount       *decimal.Decimal `json:"amount"`
	ClientID     int64            `json:"client_id" binding:"required,gt=0"`
}

func (r taskRequest) input() service.TaskInput {
	return service.TaskInput{
		Title:        r.Title,
		Description:  r.Description,
		Priority:     domain.TaskPriority(r.Priority),
		StartingDate: *r.StartingDate.Time(),
		DueDate:      *r.DueDate.Time(),
		Status:       domain.TaskStatus(r.Status),
		Amount:       r.Amount,
		ClientID:     r.ClientID,
	}
}

type patchTaskRequest struct {
	Title        *string                   `json:"title" binding:"omitempty,max=255"`
	Description  *string                   `json:"description"`
	Priority     *domain.TaskPriority      `json:"priority"`
	StartingDate *jsonDate                 `json:"starting_date"`
	DueDate      *jsonDate                 `json:"due_date"`
	Status       *domain.TaskStatus        `json:"status"`
	Amount       Optional[decimal.Decimal] `json:"amount"`
	ClientID     *int64                    `json:"client_id" binding:"omitempty,gt=0"`
	InvoiceID    Optional[int64]           `json:"invoice_id"`
}

type archiveRequest struct {
	IsHidden *bool `json:"is_hidden" binding:"required"`
}

func (h *Handler) ListTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	filter, err := taskFilterFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	filter.UserID = userID

	tasks, err := h.Tasks.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentTasks(tasks))
}

// BillableTasks lists completed tasks not yet on an invoice.
func (h *Handler) BillableTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	tasks, err := h.Invoices.ListBillable(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentTasks(tasks))
}

func (h *Handler) GetTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	t, err := h.Tasks.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentTask(t))
}

func (h *Handler) CreateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	t, err := h.Tasks.Create(c.Request.Context(), userID, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, presentTask(t))
}

func (h *Handler) UpdateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	t, err := h.Tasks.Update(c.Request.Context(), userID, id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentTask(t))
}

// PatchTask applies a partial update. {"invoice_id": null} takes the task off
// its invoice and deletes the invoice if it was the last task. The invoice a
// task leaves is reported under "released_invoice", the one it joins under
// "invoice".
func (h *Handler) PatchTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req patchTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.Tasks.Patch(c.Request.Context(), userID, id, service.TaskPatch{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		StartingDate: req.StartingDate.Time(),
		DueDate:      req.DueDate.Time(),
		Status:       req.Status,
		Amount:       req.Amount.Value,
		ClearAmount:  req.Amount.Null(),
		ClientID:     req.ClientID,
		InvoiceSet:   req.InvoiceID.Set,
		InvoiceID:    req.InvoiceID.Value,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{"success": true, "data": presentTask(res.Task)}
	if res.Released != nil {
		body["released_invoice"] = presentOutcome(*res.Released)
	}
	if res.Invoice != nil {
		body["invoice"] = presentOutcome(*res.Invoice)
	}
	c.JSON(http.StatusOK, body)
}

// presentOutcome summarises what a task move did to one invoice.
func presentOutcome(out service.InvoiceOutcome) gin.H {
	inv := gin.H{"id": out.InvoiceID, "deleted": out.Deleted()}
	if !out.Deleted() {
		inv["totals"] = presentTotals(out.Details.Totals)
	}
	return inv
}

func (h *Handler) DeleteTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Tasks.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "task deleted")
}

// ArchiveTask archives the task for {"is_hidden": true} and restores it for false.
func (h *Handler) ArchiveTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var (
		t   *domain.Task
		err error
	)
	if *req.IsHidden {
		t, err = h.Tasks.Archive(c.Request.Context(), userID, id)
	} else {
		t, err = h.Tasks.Unarchive(c.Request.Context(), userID, id)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentTask(t))
}

func taskFilterFromQuery(c *gin.Context) (domain.TaskFilter, error) {
	f := domain.TaskFilter{
		View:   domain.TaskView(c.Query("view")),
		Status: domain.TaskStatus(c.Query("status")),
	}
	v := &service.ValidationError{}

	parseInt := func(name string, dst *int64) {
		raw := c.Query(name)
		if raw == "" {
			return
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			v.Add(name, "invalid", nil, "%s must be a positive integer", name)
			return
		}
		*dst = n
	}
	parseInt("client_id", &f.ClientID)
	parseInt("invoice_id", &f.InvoiceID)

	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		name, dst := q.name, q.dst
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			v.Add(name, "invalid", nil, "%s must be a date (YYYY-MM-DD)", name)
			continue
		}
		*dst = &t
	}

	return f, v.OrNil()
}
