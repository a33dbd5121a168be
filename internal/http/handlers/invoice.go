package handlers

import (
	"net/http"

	"taskify/internal/domain"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createInvoiceRequest struct {
	TaskIDs     []int64          `json:"task_ids" binding:"dive,gt=0"`
	Date        *jsonDate        `json:"date" binding:"required"`
	DueDate     *jsonDate        `json:"due_date"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
	Description *string          `json:"description" binding:"omitempty,max=2000"`
	// Status is accepted for client compatibility; new invoices are always drafts.
	Status string `json:"status"`
}

type updateInvoiceRequest struct {
	Date        *jsonDate             `json:"date"`
	DueDate     Optional[jsonDate]    `json:"due_date"`
	TaxRate     *decimal.Decimal      `json:"tax_rate"`
	Description Optional[string]      `json:"description"`
	Status      *domain.InvoiceStatus `json:"status"`
	TaskIDs     []int64               `json:"task_ids" binding:"dive,gt=0"`
}

func (h *Handler) ListInvoices(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	invoices, err := h.Invoices.List(c.Request.Context(), userID, domain.InvoiceStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}

	res := make([]invoiceView, 0, len(invoices))
	for _, d := range invoices {
		res = append(res, presentInvoice(d, false))
	}
	respondData(c, http.StatusOK, res)
}

func (h *Handler) GetInvoice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	d, err := h.Invoices.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentInvoice(d, true))
}

func (h *Handler) InvoiceTotals(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	totals, err := h.Invoices.Totals(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentTotals(totals))
}

func (h *Handler) CreateInvoice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	in := service.CreateInvoiceInput{
		UserID:      userID,
		TaskIDs:     req.TaskIDs,
		Date:        *req.Date.Time(),
		DueDate:     req.DueDate.Time(),
		TaxRate:     decimal.Zero,
		Description: req.Description,
	}
	if req.TaxRate != nil {
		in.TaxRate = *req.TaxRate
	}

	d, err := h.Invoices.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, presentInvoice(d, true))
}

func (h *Handler) UpdateInvoice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ch := service.InvoiceChanges{
		Date:             req.Date.Time(),
		DueDate:          req.DueDate.Value.Time(),
		ClearDueDate:     req.DueDate.Null(),
		TaxRate:          req.TaxRate,
		Description:      req.Description.Value,
		ClearDescription: req.Description.Null(),
		Status:           req.Status,
	}

	out, err := h.Invoices.Update(c.Request.Context(), userID, id, ch, req.TaskIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

func (h *Handler) DeleteInvoice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Invoices.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "invoice deleted")
}

func (h *Handler) RemoveInvoiceTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	taskID, ok := pathID(c, "taskId")
	if !ok {
		return
	}

	out, err := h.Invoices.RemoveTask(c.Request.Context(), userID, id, taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

func respondOutcome(c *gin.Context, out service.InvoiceOutcome) {
	if out.Deleted() {
		respondDeleted(c, "invoice has no tasks left and was deleted")
		return
	}
	respondData(c, http.StatusOK, presentInvoice(out.Details, true))
}
