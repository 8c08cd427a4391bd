package handlers

import (
	"errors"
	"net/http"
	"time"

	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"
	"greendrake/chambers/internal/storage"
	"greendrake/chambers/internal/workflow"

	"github.com/gin-gonic/gin"
)

// RestProposalHandler serves proposals, including the public review link
// a client opens without an account.
type RestProposalHandler struct {
	cfg             *config.Config
	proposalService services.IProposalService
	storageService  storage.IS3Storage
}

func NewRestProposalHandler(cfg *config.Config, proposalService services.IProposalService, storageService storage.IS3Storage) *RestProposalHandler {
	return &RestProposalHandler{cfg: cfg, proposalService: proposalService, storageService: storageService}
}

type ProposalRequest struct {
	Title       string                `json:"title" binding:"required"`
	ClientID    string                `json:"client_id"`
	LeadID      string                `json:"lead_id"`
	Items       []models.ProposalItem `json:"items" binding:"required,min=1"`
	Currency    string                `json:"currency"`
	PaymentTerm *models.PaymentTerm   `json:"payment_term"`
}

type ProposalUpdateRequest struct {
	Title       *string                `json:"title"`
	ClientID    *string                `json:"client_id"`
	LeadID      *string                `json:"lead_id"`
	Items       *[]models.ProposalItem `json:"items"`
	Currency    *string                `json:"currency"`
	PaymentTerm *models.PaymentTerm    `json:"payment_term"`
}

type SubmitRequest struct {
	ApproverIDs []string                   `json:"approver_ids"`
	Requirement models.ApprovalRequirement `json:"approval_requirement" binding:"omitempty,oneof=NONE ANY ALL"`
}

type ClientDecisionRequest struct {
	Token        string                `json:"token"`
	Status       models.ApprovalStatus `json:"status" binding:"required,oneof=APPROVED REJECTED"`
	SignerName   string                `json:"signer_name" binding:"required"`
	Comments     string                `json:"comments"`
	SignatureKey string                `json:"signature_key"`
}

type SignatureUploadRequest struct {
	Token       string `json:"token"`
	ContentType string `json:"content_type" binding:"required,oneof=image/png image/jpeg"`
}

type SignatureUploadResponse struct {
	UploadURL string    `json:"upload_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConvertRequest struct {
	Name       string             `json:"name"`
	ManagerID  string             `json:"manager_id"`
	Milestones []models.Milestone `json:"milestones"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// CreateProposal handles POST /api/proposals
func (h *RestProposalHandler) CreateProposal(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req ProposalRequest
	if !bindJSON(c, &req) {
		return
	}
	clientID, err := optionalID(req.ClientID)
	if err != nil {
		badID(c, "client_id")
		return
	}
	leadID, err := optionalID(req.LeadID)
	if err != nil {
		badID(c, "lead_id")
		return
	}
	prop, err := h.proposalService.Create(c.Request.Context(), p, services.ProposalInput{
		Title:       req.Title,
		ClientID:    clientID,
		LeadID:      leadID,
		Items:       req.Items,
		Currency:    req.Currency,
		PaymentTerm: req.PaymentTerm,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, prop)
}

// ListProposals handles GET /api/proposals?status=&client_id=&deleted=
func (h *RestProposalHandler) ListProposals(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	clientID, err := optionalID(c.Query("client_id"))
	if err != nil {
		badID(c, "client_id")
		return
	}
	list, err := h.proposalService.List(c.Request.Context(), p, services.ProposalFilter{
		Status:   models.SubmissionStatus(c.Query("status")),
		ClientID: clientID,
		Deleted:  c.Query("deleted") == "true",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetProposal handles GET /api/proposals/:id
func (h *RestProposalHandler) GetProposal(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	prop, err := h.proposalService.FindByID(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// UpdateProposal handles PATCH /api/proposals/:id
func (h *RestProposalHandler) UpdateProposal(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ProposalUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	in := services.ProposalUpdate{Title: req.Title, Items: req.Items, Currency: req.Currency, PaymentTerm: req.PaymentTerm}
	if req.ClientID != nil {
		clientID, err := optionalID(*req.ClientID)
		if err != nil || clientID == nil {
			badID(c, "client_id")
			return
		}
		in.ClientID = clientID
	}
	if req.LeadID != nil {
		leadID, err := optionalID(*req.LeadID)
		if err != nil || leadID == nil {
			badID(c, "lead_id")
			return
		}
		in.LeadID = leadID
	}
	prop, err := h.proposalService.Update(c.Request.Context(), p, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// SubmitProposal handles POST /api/proposals/:id/submit
func (h *RestProposalHandler) SubmitProposal(c *gin.Context) {
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
	prop, err := h.proposalService.Submit(c.Request.Context(), p, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

func bindSubmit(c *gin.Context) (services.SubmitInput, bool) {
	var req SubmitRequest
	if !bindJSON(c, &req) {
		return services.SubmitInput{}, false
	}
	ids, err := parseIDs(req.ApproverIDs)
	if err != nil {
		badID(c, "approver_ids")
		return services.SubmitInput{}, false
	}
	return services.SubmitInput{ApproverIDs: ids, Requirement: req.Requirement}, true
}

// SendToClient handles POST /api/proposals/:id/send
func (h *RestProposalHandler) SendToClient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	prop, err := h.proposalService.SendToClient(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// GetReview handles GET /api/proposals/:id/review?token=
func (h *RestProposalHandler) GetReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := h.proposalService.GetForReview(c.Request.Context(), id, c.Query("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SubmitReview handles POST /api/proposals/:id/review?token=
func (h *RestProposalHandler) SubmitReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ClientDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	token := req.Token
	if token == "" {
		token = c.Query("token")
	}
	view, err := h.proposalService.ClientDecide(c.Request.Context(), id, services.ClientDecisionInput{
		Token:        token,
		Status:       req.Status,
		SignerName:   req.SignerName,
		Comments:     req.Comments,
		SignatureKey: req.SignatureKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SignatureUploadURL handles POST /api/proposals/:id/review/signature-upload
func (h *RestProposalHandler) SignatureUploadURL(c *gin.Context) {
	if h.storageService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Signature uploads are not configured"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SignatureUploadRequest
	if !bindJSON(c, &req) {
		return
	}
	token := req.Token
	if token == "" {
		token = c.Query("token")
	}
	view, err := h.proposalService.GetForReview(c.Request.Context(), id, token)
	if err != nil {
		respondError(c, err)
		return
	}
	if view.ClientApprovalStatus != models.ApprovalPending {
		respondError(c, workflow.ErrAlreadyDecided)
		return
	}
	url, key, err := h.storageService.PresignSignatureUpload(c.Request.Context(), services.SignaturePrefix(h.cfg, id), req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedContent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": map[string]string{"content_type": err.Error()}})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SignatureUploadResponse{UploadURL: url, Key: key, ExpiresAt: time.Now().Add(h.cfg.SignatureUploadTTL).UTC()})
}

// ConvertToProject handles POST /api/proposals/:id/convert
func (h *RestProposalHandler) ConvertToProject(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ConvertRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	managerID, err := optionalID(req.ManagerID)
	if err != nil {
		badID(c, "manager_id")
		return
	}
	project, err := h.proposalService.ConvertToProject(c.Request.Context(), p, id, services.ConvertInput{
		Name:       req.Name,
		ManagerID:  managerID,
		Milestones: req.Milestones,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// GetInstallments handles GET /api/proposals/:id/installments
func (h *RestProposalHandler) GetInstallments(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	plan, err := h.proposalService.Installments(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// RequestDeletion handles POST /api/proposals/:id/deletion-request
func (h *RestProposalHandler) RequestDeletion(c *gin.Context) {
	h.transition(c, h.proposalService.RequestDeletion)
}

// ApproveDeletion handles POST /api/proposals/:id/deletion-approve
func (h *RestProposalHandler) ApproveDeletion(c *gin.Context) {
	h.transition(c, h.proposalService.ApproveDeletion)
}

func (h *RestProposalHandler) transition(c *gin.Context, fn proposalTransition) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	prop, err := fn(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// DeleteProposal handles DELETE /api/proposals/:id, and with ?permanent=true
// removes a soft-deleted proposal for good.
func (h *RestProposalHandler) DeleteProposal(c *gin.Context) {
	del := h.proposalService.SoftDelete
	if c.Query("permanent") == "true" {
		del = h.proposalService.PermanentDelete
	}
	runDelete(c, del)
}

// RestoreProposal handles POST /api/proposals/:id/restore
func (h *RestProposalHandler) RestoreProposal(c *gin.Context) {
	runDelete(c, h.proposalService.Restore)
}

// BulkDeleteProposals handles POST /api/proposals/bulk-delete
func (h *RestProposalHandler) BulkDeleteProposals(c *gin.Context) {
	runBulkDelete(c, h.proposalService.BulkSoftDelete)
}
