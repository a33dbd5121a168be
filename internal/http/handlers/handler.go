package handlers

import (
	"strconv"

	"taskify/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Invoices  *service.InvoiceService
	Tasks     *service.TaskService
	Clients   *service.ClientService
	Dashboard *service.DashboardService
	Users     *service.UserService
	Audit     *service.AuditService
}

func NewHandler(svc *service.Services) *Handler {
	return &Handler{
		Invoices:  svc.Invoices,
		Tasks:     svc.Tasks,
		Clients:   svc.Clients,
		Dashboard: svc.Dashboard,
		Users:     svc.Users,
		Audit:     svc.Audit,
	}
}

// getUserID извлекает user_id из контекста Gin
func getUserID(c interface{ Get(string) (any, bool) }) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// requireUser writes 401 and returns false when the request is unauthenticated.
func requireUser(c *gin.Context) (int64, bool) {
	userID, ok := getUserID(c)
	if !ok {
		respondMessage(c, 401, "unauthorized")
		return 0, false
	}
	return userID, true
}

// pathID parses a positive integer path parameter, writing 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondMessage(c, 400, "invalid "+name)
		return 0, false
	}
	return id, true
}
