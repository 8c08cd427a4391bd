package handlers

import (
	"net/http"
	"time"

	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RestFinanceHandler serves the staff ledger and the aggregate reports.
type RestFinanceHandler struct {
	financeService services.IFinanceService
}

func NewRestFinanceHandler(financeService services.IFinanceService) *RestFinanceHandler {
	return &RestFinanceHandler{financeService: financeService}
}

type EntryRequest struct {
	Kind          models.EntryKind `json:"kind" binding:"required,oneof=ADVANCE COMPENSATION FRINGE_BENEFIT FINDER_FEE"`
	UserID        string           `json:"user_id" binding:"required"`
	Amount        float64          `json:"amount" binding:"gt=0"`
	Currency      string           `json:"currency"`
	EffectiveDate *time.Time       `json:"effective_date"`
	Notes         string           `json:"notes"`
}

// userParam reads ?user_id=, defaulting to the caller.
func userParam(c *gin.Context, self primitive.ObjectID) (primitive.ObjectID, bool) {
	id, err := optionalID(c.Query("user_id"))
	if err != nil {
		badID(c, "user_id")
		return primitive.NilObjectID, false
	}
	if id == nil {
		return self, true
	}
	return *id, true
}

// RecordEntry handles POST /api/finance/entries
func (h *RestFinanceHandler) RecordEntry(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req EntryRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, err := optionalID(req.UserID)
	if err != nil || userID == nil {
		badID(c, "user_id")
		return
	}
	effective := time.Now().UTC()
	if req.EffectiveDate != nil {
		effective = req.EffectiveDate.UTC()
	}
	entry, err := h.financeService.RecordEntry(c.Request.Context(), p, services.EntryInput{
		Kind:          req.Kind,
		UserID:        *userID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		EffectiveDate: effective,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ListEntries handles GET /api/finance/entries?user_id=
func (h *RestFinanceHandler) ListEntries(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	userID, ok := userParam(c, p.UserID)
	if !ok {
		return
	}
	entries, err := h.financeService.ListEntries(c.Request.Context(), p, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// DeleteEntry handles DELETE /api/finance/entries/:id
func (h *RestFinanceHandler) DeleteEntry(c *gin.Context) {
	runDelete(c, h.financeService.DeleteEntry)
}

// GetBalance handles GET /api/finance/balance?user_id=
func (h *RestFinanceHandler) GetBalance(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	userID, ok := userParam(c, p.UserID)
	if !ok {
		return
	}
	balance, err := h.financeService.Balance(c.Request.Context(), p, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// GetUnchargedProposals handles GET /api/finance/uncharged-proposals
func (h *RestFinanceHandler) GetUnchargedProposals(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	report, err := h.financeService.UnchargedProposals(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
