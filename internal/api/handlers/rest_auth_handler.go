package handlers

import (
	"net/http"
	"time"

	"greendrake/chambers/internal/auth"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
)

// RestAuthHandler issues bearer tokens.
type RestAuthHandler struct {
	cfg         *config.Config
	userService services.IUserService
}

func NewRestAuthHandler(cfg *config.Config, userService services.IUserService) *RestAuthHandler {
	return &RestAuthHandler{cfg: cfg, userService: userService}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Login handles POST /api/auth/login
func (h *RestAuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := auth.GenerateJWT(user, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: time.Now().Add(h.cfg.JwtTTL).UTC(), User: user})
}

// Me handles GET /api/auth/me
func (h *RestAuthHandler) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
