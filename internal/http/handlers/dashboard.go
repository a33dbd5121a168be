package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetDashboard(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	d, err := h.Dashboard.Summary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, presentDashboard(d))
}

// Activity lists the caller's recent audit entries.
func (h *Handler) Activity(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondMessage(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := h.Audit.GetUserAuditLogs(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		respondData(c, http.StatusOK, []any{})
		return
	}
	respondData(c, http.StatusOK, logs)
}
