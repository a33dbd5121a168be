package handlers

import (
	"net/http"
	"strconv"

	"taskify/internal/domain"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
)

type clientRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	TIN      string `json:"tin" binding:"required,max=64"`
	Address  string `json:"address" binding:"max=500"`
	Email    string `json:"email" binding:"required,email"`
	Company  string `json:"company" binding:"max=255"`
	Phone    string `json:"phone" binding:"max=64"`
	IsActive *bool  `json:"is_active"`
}

func (r clientRequest) input() service.ClientInput {
	return service.ClientInput{
		Name:     r.Name,
		TIN:      r.TIN,
		Address:  r.Address,
		Email:    r.Email,
		Company:  r.Company,
		Phone:    r.Phone,
		IsActive: r.IsActive,
	}
}

func (h *Handler) ListClients(c *gin.Context) {
	var filter domain.ClientFilter
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, "active must be true or false")
			return
		}
		filter.Active = &active
	}

	clients, err := h.Clients.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if clients == nil {
		clients = []*domain.Client{}
	}
	respondData(c, http.StatusOK, clients)
}

func (h *Handler) GetClient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	client, err := h.Clients.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, client)
}

func (h *Handler) CreateClient(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	client, err := h.Clients.Create(c.Request.Context(), userID, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, client)
}

func (h *Handler) UpdateClient(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	client, err := h.Clients.Update(c.Request.Context(), userID, id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, client)
}

func (h *Handler) DeleteClient(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Clients.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "client deleted")
}
