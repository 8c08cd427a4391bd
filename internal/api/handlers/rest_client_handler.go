package handlers

import (
	"net/http"

	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
)

// RestClientHandler serves clients and leads.
type RestClientHandler struct {
	clientService services.IClientService
}

func NewRestClientHandler(clientService services.IClientService) *RestClientHandler {
	return &RestClientHandler{clientService: clientService}
}

type ClientRequest struct {
	Name             string  `json:"name" binding:"required"`
	Email            string  `json:"email" binding:"required,email"`
	Phone            string  `json:"phone"`
	ManagerID        string  `json:"manager_id"`
	FinderID         string  `json:"finder_id"`
	FinderFeePercent float64 `json:"finder_fee_percent" binding:"gte=0,lte=100"`
}

type LeadRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Company string `json:"company"`
}

type LeadStatusRequest struct {
	Status models.LeadStatus `json:"status" binding:"required,oneof=NEW CONTACTED QUALIFIED LOST"`
}

type ConvertLeadRequest struct {
	ManagerID string `json:"manager_id"`
}

func (h *RestClientHandler) clientInput(c *gin.Context) (services.ClientInput, bool) {
	var req ClientRequest
	if !bindJSON(c, &req) {
		return services.ClientInput{}, false
	}
	managerID, err := optionalID(req.ManagerID)
	if err != nil {
		badID(c, "manager_id")
		return services.ClientInput{}, false
	}
	finderID, err := optionalID(req.FinderID)
	if err != nil {
		badID(c, "finder_id")
		return services.ClientInput{}, false
	}
	return services.ClientInput{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		ManagerID:        managerID,
		FinderID:         finderID,
		FinderFeePercent: req.FinderFeePercent,
	}, true
}

// CreateClient handles POST /api/clients
func (h *RestClientHandler) CreateClient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	in, ok := h.clientInput(c)
	if !ok {
		return
	}
	client, err := h.clientService.Create(c.Request.Context(), p, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

// ListClients handles GET /api/clients
func (h *RestClientHandler) ListClients(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	clients, err := h.clientService.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

// GetClient handles GET /api/clients/:id
func (h *RestClientHandler) GetClient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	client, err := h.clientService.FindByID(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient handles PUT /api/clients/:id
func (h *RestClientHandler) UpdateClient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	in, ok := h.clientInput(c)
	if !ok {
		return
	}
	client, err := h.clientService.Update(c.Request.Context(), p, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// DeleteClient handles DELETE /api/clients/:id
func (h *RestClientHandler) DeleteClient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.clientService.SoftDelete(c.Request.Context(), p, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateLead handles POST /api/leads
func (h *RestClientHandler) CreateLead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req LeadRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := h.clientService.CreateLead(c.Request.Context(), p, services.LeadInput{Name: req.Name, Email: req.Email, Company: req.Company})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lead)
}

// ListLeads handles GET /api/leads?status=
func (h *RestClientHandler) ListLeads(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	leads, err := h.clientService.ListLeads(c.Request.Context(), p, models.LeadStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, leads)
}

// UpdateLeadStatus handles PUT /api/leads/:id/status
func (h *RestClientHandler) UpdateLeadStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req LeadStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := h.clientService.UpdateLeadStatus(c.Request.Context(), p, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// ConvertLead handles POST /api/leads/:id/convert
func (h *RestClientHandler) ConvertLead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ConvertLeadRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	managerID, err := optionalID(req.ManagerID)
	if err != nil {
		badID(c, "manager_id")
		return
	}
	client, err := h.clientService.ConvertLead(c.Request.Context(), p, id, managerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}
