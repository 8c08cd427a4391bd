package handlers

import (
	"net/http"
	"time"

	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
)

// RestBillHandler serves invoices.
type RestBillHandler struct {
	billService services.IBillService
}

func NewRestBillHandler(billService services.IBillService) *RestBillHandler {
	return &RestBillHandler{billService: billService}
}

type BillRequest struct {
	ClientID        string            `json:"client_id" binding:"required"`
	ProjectID       string            `json:"project_id"`
	ProposalID      string            `json:"proposal_id"`
	Lines           []models.BillLine `json:"lines" binding:"required,min=1"`
	Currency        string            `json:"currency"`
	DueDate         *time.Time        `json:"due_date"`
	InstallmentDate *time.Time        `json:"installment_date"`
}

type GenerateBillRequest struct {
	DueDate  *time.Time `json:"due_date"`
	Currency string     `json:"currency"`
}

// CreateBill handles POST /api/bills
func (h *RestBillHandler) CreateBill(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req BillRequest
	if !bindJSON(c, &req) {
		return
	}
	clientID, err := optionalID(req.ClientID)
	if err != nil || clientID == nil {
		badID(c, "client_id")
		return
	}
	projectID, err := optionalID(req.ProjectID)
	if err != nil {
		badID(c, "project_id")
		return
	}
	proposalID, err := optionalID(req.ProposalID)
	if err != nil {
		badID(c, "proposal_id")
		return
	}
	bill, err := h.billService.Create(c.Request.Context(), p, services.BillInput{
		ClientID:        *clientID,
		ProjectID:       projectID,
		ProposalID:      proposalID,
		Lines:           req.Lines,
		Currency:        req.Currency,
		DueDate:         req.DueDate,
		InstallmentDate: req.InstallmentDate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

// GenerateBill handles POST /api/projects/:id/bills
func (h *RestBillHandler) GenerateBill(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req GenerateBillRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	bill, err := h.billService.GenerateFromUnbilled(c.Request.Context(), p, projectID, services.GenerateInput{DueDate: req.DueDate, Currency: req.Currency})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

// ListBills handles GET /api/bills?status=&client_id=&project_id=&deleted=
func (h *RestBillHandler) ListBills(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	clientID, err := optionalID(c.Query("client_id"))
	if err != nil {
		badID(c, "client_id")
		return
	}
	projectID, err := optionalID(c.Query("project_id"))
	if err != nil {
		badID(c, "project_id")
		return
	}
	bills, err := h.billService.List(c.Request.Context(), p, services.BillFilter{
		Status:    models.BillStatus(c.Query("status")),
		ClientID:  clientID,
		ProjectID: projectID,
		Deleted:   c.Query("deleted") == "true",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bills)
}

// ListOutstanding handles GET /api/bills/outstanding
func (h *RestBillHandler) ListOutstanding(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	bills, err := h.billService.ListOutstanding(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bills)
}

// GetBill handles GET /api/bills/:id
func (h *RestBillHandler) GetBill(c *gin.Context) {
	h.transition(c, h.billService.FindByID, http.StatusOK)
}

// SubmitBill handles POST /api/bills/:id/submit
func (h *RestBillHandler) SubmitBill(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	in, ok := bindSubmit(c)
	if !ok {
		return
	}
	bill, err := h.billService.Submit(c.Request.Context(), p, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

// MarkPaid handles POST /api/bills/:id/pay
func (h *RestBillHandler) MarkPaid(c *gin.Context) {
	h.transition(c, h.billService.MarkPaid, http.StatusOK)
}

// CancelBill handles POST /api/bills/:id/cancel
func (h *RestBillHandler) CancelBill(c *gin.Context) {
	h.transition(c, h.billService.Cancel, http.StatusOK)
}

// WriteOffBill handles POST /api/bills/:id/write-off
func (h *RestBillHandler) WriteOffBill(c *gin.Context) {
	h.transition(c, h.billService.WriteOff, http.StatusOK)
}

func (h *RestBillHandler) transition(c *gin.Context, fn billTransition, status int) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	bill, err := fn(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, bill)
}

// DeleteBill handles DELETE /api/bills/:id[?permanent=true]
func (h *RestBillHandler) DeleteBill(c *gin.Context) {
	del := h.billService.SoftDelete
	if c.Query("permanent") == "true" {
		del = h.billService.PermanentDelete
	}
	runDelete(c, del)
}

// RestoreBill handles POST /api/bills/:id/restore
func (h *RestBillHandler) RestoreBill(c *gin.Context) {
	runDelete(c, h.billService.Restore)
}

// BulkDeleteBills handles POST /api/bills/bulk-delete
func (h *RestBillHandler) BulkDeleteBills(c *gin.Context) {
	runBulkDelete(c, h.billService.BulkSoftDelete)
}
