package handlers

import (
	"net/http"

	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
)

// RestApprovalHandler records internal approval decisions.
type RestApprovalHandler struct {
	approvalService services.IApprovalService
}

func NewRestApprovalHandler(approvalService services.IApprovalService) *RestApprovalHandler {
	return &RestApprovalHandler{approvalService: approvalService}
}

// DecisionRequest names exactly one of proposal_id or bill_id.
type DecisionRequest struct {
	ProposalID string                `json:"proposal_id"`
	BillID     string                `json:"bill_id"`
	Status     models.ApprovalStatus `json:"status" binding:"required,oneof=APPROVED REJECTED"`
	Comments   string                `json:"comments"`
}

// Decide handles POST /api/approvals
func (h *RestApprovalHandler) Decide(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	proposalID, err := optionalID(req.ProposalID)
	if err != nil {
		badID(c, "proposal_id")
		return
	}
	billID, err := optionalID(req.BillID)
	if err != nil {
		badID(c, "bill_id")
		return
	}
	approval, err := h.approvalService.Decide(c.Request.Context(), p, services.DecisionInput{
		ProposalID: proposalID,
		BillID:     billID,
		Status:     req.Status,
		Comments:   req.Comments,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, approval)
}

// ListPending handles GET /api/approvals/pending
func (h *RestApprovalHandler) ListPending(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.approvalService.ListPending(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListForProposal handles GET /api/proposals/:id/approvals
func (h *RestApprovalHandler) ListForProposal(c *gin.Context) {
	h.listFor(c, models.SubjectProposal)
}

// ListForBill handles GET /api/bills/:id/approvals
func (h *RestApprovalHandler) ListForBill(c *gin.Context) {
	h.listFor(c, models.SubjectInvoice)
}

func (h *RestApprovalHandler) listFor(c *gin.Context, kind models.SubjectKind) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.approvalService.ListFor(c.Request.Context(), p, models.Subject{Kind: kind, ID: id})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
