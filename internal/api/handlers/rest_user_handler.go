package handlers

import (
	"context"
	"net/http"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RestUserHandler handles REST requests related to users and their removal.
type RestUserHandler struct {
	userService     services.IUserService
	deletionService services.IUserDeletionService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(userService services.IUserService, deletionService services.IUserDeletionService) *RestUserHandler {
	return &RestUserHandler{userService: userService, deletionService: deletionService}
}

type CreateUserRequest struct {
	Name         string              `json:"name" binding:"required"`
	Email        string              `json:"email" binding:"required,email"`
	Password     string              `json:"password" binding:"required"`
	Role         models.Role         `json:"role" binding:"required,oneof=ADMIN MANAGER STAFF CLIENT EXTERNAL"`
	Capabilities models.Capabilities `json:"capabilities"`
	ClientID     string              `json:"client_id"`
}

type UpdateAccessRequest struct {
	Role         models.Role         `json:"role" binding:"required,oneof=ADMIN MANAGER STAFF CLIENT EXTERNAL"`
	Capabilities models.Capabilities `json:"capabilities"`
}

type DeletionRequestBody struct {
	Reason string `json:"reason"`
}

// ListUsers handles GET /api/users
func (h *RestUserHandler) ListUsers(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	users, err := h.userService.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser handles POST /api/users
func (h *RestUserHandler) CreateUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	clientID, err := optionalID(req.ClientID)
	if err != nil {
		badID(c, "client_id")
		return
	}
	user, err := h.userService.Create(c.Request.Context(), p, services.CreateUserInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         req.Role,
		Capabilities: req.Capabilities,
		ClientID:     clientID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetUserByID handles GET /api/users/:id
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	if _, ok := principal(c); !ok {
		return
	}
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateAccess handles PUT /api/users/:id/access
func (h *RestUserHandler) UpdateAccess(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateAccessRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.UpdateAccess(c.Request.Context(), p, userID, req.Role, req.Capabilities)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RequestDeletion handles POST /api/users/:id/deletion-requests
func (h *RestUserHandler) RequestDeletion(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req DeletionRequestBody
	// The body is optional.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	dr, err := h.deletionService.Request(c.Request.Context(), p, userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dr)
}

// DeletionCheckResponse reports what still references a user.
type DeletionCheckResponse struct {
	Deletable bool                   `json:"deletable"`
	Census    models.ReferenceCensus `json:"census"`
	Blocking  map[string]int64       `json:"blocking"`
}

// DeletionCheck handles GET /api/users/:id/deletion-check
func (h *RestUserHandler) DeletionCheck(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.userService.FindByID(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	census, err := h.deletionService.Census(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeletionCheckResponse{Deletable: !census.Blocking(), Census: census, Blocking: census.Details()})
}

// ListDeletionRequests handles GET /api/deletion-requests?status=
func (h *RestUserHandler) ListDeletionRequests(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.deletionService.List(c.Request.Context(), p, models.DeletionStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetDeletionRequest handles GET /api/deletion-requests/:id
func (h *RestUserHandler) GetDeletionRequest(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if !p.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	dr, err := h.deletionService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dr)
}

// ApproveDeletion handles POST /api/deletion-requests/:id/approve
func (h *RestUserHandler) ApproveDeletion(c *gin.Context) {
	h.decideDeletion(c, h.deletionService.Approve)
}

// RejectDeletion handles POST /api/deletion-requests/:id/reject
func (h *RestUserHandler) RejectDeletion(c *gin.Context) {
	h.decideDeletion(c, h.deletionService.Reject)
}

func (h *RestUserHandler) decideDeletion(c *gin.Context, decide func(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.UserDeletionRequest, error)) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	dr, err := decide(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dr)
}
