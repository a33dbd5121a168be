package http

import (
	"taskify/internal/config"
	"taskify/internal/http/handlers"
	"taskify/internal/http/middleware"
	"taskify/internal/repository"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the engine with the standard middleware chain and all routes.
func NewRouter(store repository.Store, cfg *config.Config, version string) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Metrics(),
		middleware.CORS(cfg.CORSOrigins),
	)
	RegisterRoutes(r, store, cfg, version)
	return r
}

func RegisterRoutes(r *gin.Engine, store repository.Store, cfg *config.Config, version string) {
	h := handlers.NewHandler(service.New(store))
	healthHandler := handlers.NewHealthHandler(store, middleware.PingRedis, version)

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	v1.GET("/health", healthHandler.Health)
	v1.GET("/healthz", healthHandler.Liveness)
	v1.GET("/readyz", healthHandler.Readiness)

	authed := v1.Group("")
	authed.Use(middleware.JWT(), middleware.UserRateLimit(cfg.WriteRateLimit, cfg.WriteRateWindow))
	registerAPIRoutes(authed, h)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler) {
	api.GET("/me", h.Me)

	// Clients
	clients := api.Group("/clients")
	{
		clients.GET("", h.ListClients)
		clients.POST("", h.CreateClient)
		clients.GET("/:id", h.GetClient)
		clients.PUT("/:id", h.UpdateClient)
		clients.DELETE("/:id", h.DeleteClient)
	}

	// Tasks
	tasks := api.Group("/tasks")
	{
		tasks.GET("", h.ListTasks)
		tasks.POST("", h.CreateTask)
		tasks.GET("/billable", h.BillableTasks)
		tasks.GET("/:id", h.GetTask)
		tasks.PUT("/:id", h.UpdateTask)
		tasks.PATCH("/:id", h.PatchTask)
		tasks.DELETE("/:id", h.DeleteTask)
		tasks.PATCH("/:id/archive", h.ArchiveTask)
	}

	// Invoices
	invoices := api.Group("/invoices")
	{
		invoices.GET("", h.ListInvoices)
		invoices.POST("", h.CreateInvoice)
		invoices.GET("/:id", h.GetInvoice)
		invoices.PUT("/:id", h.UpdateInvoice)
		invoices.DELETE("/:id", h.DeleteInvoice)
		invoices.GET("/:id/totals", h.InvoiceTotals)
		invoices.DELETE("/:id/tasks/:taskId", h.RemoveInvoiceTask)
	}

	api.GET("/dashboard", h.GetDashboard)
	api.GET("/activity", h.Activity)
}
