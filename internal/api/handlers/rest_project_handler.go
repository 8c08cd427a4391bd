package handlers

import (
	"net/http"
	"time"

	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
)

// RestProjectHandler serves projects with their timesheets and charges.
type RestProjectHandler struct {
	projectService services.IProjectService
}

func NewRestProjectHandler(projectService services.IProjectService) *RestProjectHandler {
	return &RestProjectHandler{projectService: projectService}
}

type ProjectRequest struct {
	Name       string             `json:"name" binding:"required"`
	ClientID   string             `json:"client_id" binding:"required"`
	ManagerID  string             `json:"manager_id"`
	Milestones []models.Milestone `json:"milestones"`
}

type ProjectUpdateRequest struct {
	Name       *string               `json:"name"`
	ManagerID  *string               `json:"manager_id"`
	Status     *models.ProjectStatus `json:"status" binding:"omitempty,oneof=ACTIVE ON_HOLD COMPLETED"`
	Milestones *[]models.Milestone   `json:"milestones"`
}

type TimesheetRequest struct {
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"date" binding:"required"`
	Hours       float64   `json:"hours" binding:"gt=0,lte=24"`
	Rate        *float64  `json:"rate" binding:"omitempty,gte=0"`
	Description string    `json:"description"`
	Billable    *bool     `json:"billable"`
}

type ChargeRequest struct {
	Description string  `json:"description" binding:"required"`
	Amount      float64 `json:"amount" binding:"gt=0"`
}

// CreateProject handles POST /api/projects
func (h *RestProjectHandler) CreateProject(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req ProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	clientID, err := optionalID(req.ClientID)
	if err != nil || clientID == nil {
		badID(c, "client_id")
		return
	}
	managerID, err := optionalID(req.ManagerID)
	if err != nil {
		badID(c, "manager_id")
		return
	}
	project, err := h.projectService.Create(c.Request.Context(), p, services.ProjectInput{
		Name:       req.Name,
		ClientID:   *clientID,
		ManagerID:  managerID,
		Milestones: req.Milestones,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// ListProjects handles GET /api/projects?client_id=
func (h *RestProjectHandler) ListProjects(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	clientID, err := optionalID(c.Query("client_id"))
	if err != nil {
		badID(c, "client_id")
		return
	}
	projects, err := h.projectService.List(c.Request.Context(), p, clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// GetProject handles GET /api/projects/:id
func (h *RestProjectHandler) GetProject(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	project, err := h.projectService.FindByID(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProject handles PATCH /api/projects/:id
func (h *RestProjectHandler) UpdateProject(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ProjectUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	in := services.ProjectUpdate{Name: req.Name, Status: req.Status, Milestones: req.Milestones}
	if req.ManagerID != nil {
		managerID, err := optionalID(*req.ManagerID)
		if err != nil || managerID == nil {
			badID(c, "manager_id")
			return
		}
		in.ManagerID = managerID
	}
	project, err := h.projectService.Update(c.Request.Context(), p, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// LogTime handles POST /api/projects/:id/timesheets
func (h *RestProjectHandler) LogTime(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req TimesheetRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, err := optionalID(req.UserID)
	if err != nil {
		badID(c, "user_id")
		return
	}
	billable := req.Billable == nil || *req.Billable
	entry, err := h.projectService.LogTime(c.Request.Context(), p, id, services.TimesheetInput{
		UserID:      userID,
		Date:        req.Date,
		Hours:       req.Hours,
		Rate:        req.Rate,
		Description: req.Description,
		Billable:    billable,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ListTimesheets handles GET /api/projects/:id/timesheets
func (h *RestProjectHandler) ListTimesheets(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	entries, err := h.projectService.ListTimesheets(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// AddCharge handles POST /api/projects/:id/charges
func (h *RestProjectHandler) AddCharge(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ChargeRequest
	if !bindJSON(c, &req) {
		return
	}
	charge, err := h.projectService.AddCharge(c.Request.Context(), p, id, services.ChargeInput{Description: req.Description, Amount: req.Amount})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, charge)
}

// ListCharges handles GET /api/projects/:id/charges
func (h *RestProjectHandler) ListCharges(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	charges, err := h.projectService.ListCharges(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, charges)
}

// GetUnbilled handles GET /api/projects/:id/unbilled
func (h *RestProjectHandler) GetUnbilled(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	summary, err := h.projectService.Unbilled(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
