package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/finance"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/reminders"
	"greendrake/chambers/internal/workflow"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProposalInput struct {
	Title       string
	ClientID    *primitive.ObjectID
	LeadID      *primitive.ObjectID
	Items       []models.ProposalItem
	Currency    string
	PaymentTerm *models.PaymentTerm
}

// ProposalUpdate carries only the fields being changed.
type ProposalUpdate struct {
	Title       *string
	ClientID    *primitive.ObjectID
	LeadID      *primitive.ObjectID
	Items       *[]models.ProposalItem
	Currency    *string
	PaymentTerm *models.PaymentTerm
}

type SubmitInput struct {
	ApproverIDs []primitive.ObjectID
	Requirement models.ApprovalRequirement
}

type ClientDecisionInput struct {
	Token        string
	Status       models.ApprovalStatus
	SignerName   string
	Comments     string
	SignatureKey string
}

type ConvertInput struct {
	Name       string
	ManagerID  *primitive.ObjectID
	Milestones []models.Milestone
}

type ProposalFilter struct {
	Status   models.SubmissionStatus
	ClientID *primitive.ObjectID
	Deleted  bool
}

// ReviewView is what an external reviewer sees through the review link.
type ReviewView struct {
	ID                   primitive.ObjectID     `json:"id"`
	Reference            string                 `json:"reference"`
	Title                string                 `json:"title"`
	Items                []models.ProposalItem  `json:"items"`
	Amount               float64                `json:"amount"`
	Currency             string                 `json:"currency"`
	PaymentTerm          *models.PaymentTerm    `json:"payment_term,omitempty"`
	ClientApprovalStatus models.ApprovalStatus  `json:"client_approval_status"`
	ExpiresAt            *time.Time             `json:"expires_at,omitempty"`
	Decision             *models.ClientDecision `json:"decision,omitempty"`
}

type Installment struct {
	DueDate  time.Time `json:"due_date"`
	Amount   float64   `json:"amount"`
	Invoiced bool      `json:"invoiced"`
}

type InstallmentPlan struct {
	ProposalID   primitive.ObjectID `json:"proposal_id"`
	Base         float64            `json:"base"`
	Upfront      float64            `json:"upfront"`
	Installments []Installment      `json:"installments"`
}

type IProposalService interface {
	Create(ctx context.Context, p authz.Principal, in ProposalInput) (*models.Proposal, error)
	FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error)
	List(ctx context.Context, p authz.Principal, f ProposalFilter) ([]models.Proposal, error)
	Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ProposalUpdate) (*models.Proposal, error)
	Submit(ctx context.Context, p authz.Principal, id primitive.ObjectID, in SubmitInput) (*models.Proposal, error)

	SendToClient(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error)
	GetForReview(ctx context.Context, id primitive.ObjectID, token string) (*ReviewView, error)
	ClientDecide(ctx context.Context, id primitive.ObjectID, in ClientDecisionInput) (*ReviewView, error)

	ConvertToProject(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ConvertInput) (*models.Project, error)
	Installments(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*InstallmentPlan, error)

	RequestDeletion(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error)
	ApproveDeletion(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error)
	SoftDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	Restore(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	PermanentDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	BulkSoftDelete(ctx context.Context, p authz.Principal, ids []primitive.ObjectID) ([]BulkResult, error)
}

type proposalService struct {
	db            *mongo.Database
	cfg           *config.Config
	userSvc       IUserService
	approvals     IApprovalService
	notifications INotificationService
	signatures    ISignatureQueue
	log           zerolog.Logger
}

func NewProposalService(
	db *mongo.Database,
	cfg *config.Config,
	userSvc IUserService,
	approvals IApprovalService,
	notifications INotificationService,
	signatures ISignatureQueue,
	log zerolog.Logger,
) IProposalService {
	return &proposalService{
		db:            db,
		cfg:           cfg,
		userSvc:       userSvc,
		approvals:     approvals,
		notifications: notifications,
		signatures:    signatures,
		log:           log.With().Str("component", "proposals").Logger(),
	}
}

func (s *proposalService) coll() *mongo.Collection {
	return s.db.Collection(db.ProposalsCollection)
}

func newReference(t time.Time) string {
	return fmt.Sprintf("P-%d-%s", t.Year(), strings.ToUpper(uuid.NewString()[:8]))
}

func validateProposal(title string, items []models.ProposalItem, term *models.PaymentTerm) error {
	details := map[string]string{}
	if strings.TrimSpace(title) == "" {
		details["title"] = "required"
	}
	for i, it := range items {
		if it.Quantity <= 0 {
			details[fmt.Sprintf("items[%d].quantity", i)] = "must be positive"
		}
		if it.UnitPrice < 0 {
			details[fmt.Sprintf("items[%d].unit_price", i)] = "must not be negative"
		}
	}
	if term != nil {
		if term.InstallmentCount < 0 {
			details["payment_term.installment_count"] = "must not be negative"
		}
		if _, err := finance.UpfrontDeduction(finance.SumItems(append([]models.ProposalItem(nil), items...)), term); err != nil {
			details["payment_term.upfront_value"] = "exceeds the proposal amount or is invalid"
		}
		if term.Frequency != "" {
			if _, ok := reminders.Step(time.Time{}, term.Frequency, 1); !ok {
				details["payment_term.frequency"] = "unknown frequency"
			}
		}
	}
	if len(details) > 0 {
		return invalid("invalid proposal", details)
	}
	return nil
}

func (s *proposalService) Create(ctx context.Context, p authz.Principal, in ProposalInput) (*models.Proposal, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	if err := validateProposal(in.Title, in.Items, in.PaymentTerm); err != nil {
		return nil, err
	}
	currency := in.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	items := append([]models.ProposalItem{}, in.Items...)
	amount := finance.SumItems(items)

	var prop *models.Proposal
	err := db.Try(func() error {
		ts := now()
		prop = &models.Proposal{
			Base:                models.NewBase(),
			Reference:           newReference(ts),
			Title:               strings.TrimSpace(in.Title),
			ClientID:            in.ClientID,
			LeadID:              in.LeadID,
			CreatedBy:           p.UserID,
			Items:               items,
			Amount:              amount,
			Currency:            currency,
			Status:              models.StatusDraft,
			ApprovalRequirement: models.RequireNone,
			PaymentTerm:         in.PaymentTerm,
			CreatedAt:           ts,
			UpdatedAt:           ts,
		}
		_, err := s.coll().InsertOne(ctx, prop)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating proposal: %w", err)
	}
	return prop, nil
}

func (s *proposalService) load(ctx context.Context, id primitive.ObjectID, includeDeleted bool) (*models.Proposal, error) {
	filter := bson.M{"_id": id}
	if !includeDeleted {
		filter = notDeleted(filter)
	}
	var prop models.Proposal
	if err := s.coll().FindOne(ctx, filter).Decode(&prop); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding proposal %s: %w", id.Hex(), err)
	}
	return &prop, nil
}

func canView(p authz.Principal, prop *models.Proposal) bool {
	switch {
	case authz.CanViewAllProposals(p):
		return true
	case p.Role == models.RoleClient:
		return p.ClientID != nil && prop.ClientID != nil && *p.ClientID == *prop.ClientID && prop.ClientApprovalStatus != ""
	case p.IsStaff():
		return prop.CreatedBy == p.UserID
	}
	return false
}

func (s *proposalService) FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	prop, err := s.load(ctx, id, p.IsAdmin())
	if err != nil {
		return nil, err
	}
	if !canView(p, prop) {
		return nil, workflow.ErrForbidden
	}
	return prop, nil
}

func (s *proposalService) List(ctx context.Context, p authz.Principal, f ProposalFilter) ([]models.Proposal, error) {
	filter := bson.M{}
	switch {
	case authz.CanViewAllProposals(p):
	case p.Role == models.RoleClient && p.ClientID != nil:
		filter["client_id"] = *p.ClientID
		filter["client_approval_status"] = bson.M{"$exists": true}
	case p.IsStaff():
		filter["created_by"] = p.UserID
	default:
		return nil, workflow.ErrForbidden
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.ClientID != nil && p.Role != models.RoleClient {
		filter["client_id"] = *f.ClientID
	}
	if f.Deleted {
		if !p.IsAdmin() {
			return nil, workflow.ErrForbidden
		}
		filter["deleted_at"] = bson.M{"$ne": nil}
	} else {
		filter = notDeleted(filter)
	}

	cursor, err := s.coll().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing proposals: %w", err)
	}
	out := []models.Proposal{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding proposals: %w", err)
	}
	return out, nil
}

func (s *proposalService) Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ProposalUpdate) (*models.Proposal, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	allowed := map[string]bool{}
	for _, f := range authz.UpdatableProposalFields(p, prop.CreatedBy, prop.Status) {
		allowed[f] = true
	}

	set := bson.M{}
	var denied []string
	apply := func(field string, present bool, value interface{}) {
		if !present {
			return
		}
		if !allowed[field] {
			denied = append(denied, field)
			return
		}
		set[field] = value
	}
	apply("title", in.Title != nil, deref(in.Title))
	apply("client_id", in.ClientID != nil, in.ClientID)
	apply("lead_id", in.LeadID != nil, in.LeadID)
	apply("currency", in.Currency != nil, deref(in.Currency))
	apply("payment_term", in.PaymentTerm != nil, in.PaymentTerm)
	if in.Items != nil {
		items := append([]models.ProposalItem{}, (*in.Items)...)
		apply("items", true, items)
		if allowed["items"] {
			set["amount"] = finance.SumItems(items)
		}
	}
	if len(denied) > 0 {
		return nil, fmt.Errorf("%w: cannot update %s", workflow.ErrForbidden, strings.Join(denied, ", "))
	}
	if len(set) == 0 {
		return prop, nil
	}

	title, items, term := prop.Title, prop.Items, prop.PaymentTerm
	if in.Title != nil {
		title = *in.Title
	}
	if in.Items != nil {
		items = *in.Items
	}
	if in.PaymentTerm != nil {
		term = in.PaymentTerm
	}
	if err := validateProposal(title, items, term); err != nil {
		return nil, err
	}

	set["updated_at"] = now()
	var updated models.Proposal
	err = s.coll().FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "status": prop.Status}),
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: proposal changed concurrently", workflow.ErrInvalidState)
		}
		return nil, fmt.Errorf("error updating proposal %s: %w", id.Hex(), err)
	}
	return &updated, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func (s *proposalService) Submit(ctx context.Context, p authz.Principal, id primitive.ObjectID, in SubmitInput) (*models.Proposal, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckSubmit(p, prop.CreatedBy, prop.Status == models.StatusDraft); err != nil {
		return nil, err
	}
	if len(prop.Items) == 0 {
		return nil, invalid("invalid proposal", map[string]string{"items": "at least one item is required"})
	}
	creator, err := s.userSvc.FindByID(ctx, prop.CreatedBy)
	if err != nil {
		return nil, err
	}
	approvers, err := s.approvals.ValidateApprovers(ctx, p, creator.Role, in.ApproverIDs)
	if err != nil {
		return nil, err
	}

	ts := now()
	requirement := workflow.NormalizeRequirement(in.Requirement, len(approvers))
	approverIDs := make([]primitive.ObjectID, 0, len(approvers))
	for _, u := range approvers {
		approverIDs = append(approverIDs, u.ID)
	}
	subject := models.Subject{Kind: models.SubjectProposal, ID: prop.ID}

	err = db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		res, err := s.coll().UpdateOne(sc,
			notDeleted(bson.M{"_id": prop.ID, "status": models.StatusDraft}),
			bson.M{"$set": bson.M{
				"status":                models.StatusSubmitted,
				"submitted_at":          ts,
				"approval_requirement":  requirement,
				"required_approver_ids": approverIDs,
				"updated_at":            ts,
			}})
		if err != nil {
			return fmt.Errorf("error submitting proposal %s: %w", prop.ID.Hex(), err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: proposal is no longer a draft", workflow.ErrInvalidState)
		}
		return s.approvals.CreatePending(sc, subject, approvers)
	})
	if err != nil {
		return nil, err
	}

	s.approvals.NotifyRequested(ctx, p, ApprovalTarget{Subject: subject, Title: prop.Title}, approvers)

	prop.Status = models.StatusSubmitted
	prop.SubmittedAt = &ts
	prop.ApprovalRequirement = requirement
	prop.RequiredApproverIDs = approverIDs
	prop.UpdatedAt = ts
	return prop, nil
}

func (s *proposalService) reviewLink(id primitive.ObjectID, token string) string {
	return fmt.Sprintf("%s/proposals/%s/review?token=%s", strings.TrimRight(s.cfg.AppURL, "/"), id.Hex(), token)
}

func (s *proposalService) SendToClient(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !authz.CanActAsOwner(p, prop.CreatedBy) && !p.IsManager() {
		return nil, workflow.ErrForbidden
	}
	if err := workflow.CheckSendToClient(prop); err != nil {
		return nil, err
	}
	if prop.ClientID == nil {
		return nil, invalid("proposal has no client", map[string]string{"client_id": "required before sending to the client"})
	}
	var client models.Client
	if err := s.db.Collection(db.ClientsCollection).FindOne(ctx, notDeleted(bson.M{"_id": *prop.ClientID})).Decode(&client); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, invalid("proposal client not found", map[string]string{"client_id": "unknown client"})
		}
		return nil, fmt.Errorf("error finding client: %w", err)
	}
	if client.Email == "" {
		return nil, invalid("client has no email address", map[string]string{"client.email": "required"})
	}

	token := uuid.NewString()
	expires := now().Add(s.cfg.ClientApprovalTokenTTL)
	var updated models.Proposal
	err = s.coll().FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "status": models.StatusApproved}),
		bson.M{
			"$set": bson.M{
				"client_approval_status":           models.ApprovalPending,
				"client_approval_token":            token,
				"client_approval_token_expires_at": expires,
				"updated_at":                       now(),
			},
			"$unset": bson.M{"client_decision": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: proposal changed concurrently", workflow.ErrInvalidState)
		}
		return nil, fmt.Errorf("error issuing review token: %w", err)
	}

	s.notifications.Email(ctx, email.TemplateClientReview, client.Name, client.Email, map[string]interface{}{
		"ClientName": client.Name,
		"Reference":  prop.Reference,
		"Title":      prop.Title,
		"Amount":     fmt.Sprintf("%.2f", prop.Amount),
		"Currency":   prop.Currency,
		"Link":       s.reviewLink(prop.ID, token),
		"ExpiresAt":  formatDate(expires),
	})
	return &updated, nil
}

func toReview(p *models.Proposal) *ReviewView {
	return &ReviewView{
		ID:                   p.ID,
		Reference:            p.Reference,
		Title:                p.Title,
		Items:                p.Items,
		Amount:               p.Amount,
		Currency:             p.Currency,
		PaymentTerm:          p.PaymentTerm,
		ClientApprovalStatus: p.ClientApprovalStatus,
		ExpiresAt:            p.ClientApprovalTokenExpiresAt,
		Decision:             p.ClientDecision,
	}
}

func (s *proposalService) GetForReview(ctx context.Context, id primitive.ObjectID, token string) (*ReviewView, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckClientToken(prop, token, now()); err != nil {
		return nil, err
	}
	return toReview(prop), nil
}

func (s *proposalService) ClientDecide(ctx context.Context, id primitive.ObjectID, in ClientDecisionInput) (*ReviewView, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	ts := now()
	if err := workflow.CheckClientDecision(prop, in.Token, in.Status, ts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.SignerName) == "" {
		return nil, invalid("invalid decision", map[string]string{"signer_name": "required"})
	}
	if in.SignatureKey != "" && !strings.HasPrefix(in.SignatureKey, s.signaturePrefix(id)) {
		return nil, invalid("invalid decision", map[string]string{"signature_key": "does not belong to this proposal"})
	}

	decision := &models.ClientDecision{
		DecidedAt:    ts,
		SignerName:   strings.TrimSpace(in.SignerName),
		SignatureKey: in.SignatureKey,
		Comments:     in.Comments,
	}
	var updated models.Proposal
	err = s.coll().FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "client_approval_token": in.Token, "client_approval_status": models.ApprovalPending}),
		bson.M{"$set": bson.M{
			"client_approval_status": in.Status,
			"client_decision":        decision,
			"updated_at":             ts,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: client has already responded", workflow.ErrAlreadyDecided)
		}
		return nil, fmt.Errorf("error recording client decision: %w", err)
	}

	if in.SignatureKey != "" && s.signatures != nil {
		if err := s.signatures.EnqueueSignature(ctx, id, in.SignatureKey); err != nil {
			s.log.Error().Err(err).Str("proposal_id", id.Hex()).Msg("failed to enqueue signature processing")
		}
	}
	s.notifyClientDecision(ctx, &updated, decision)
	return toReview(&updated), nil
}

func (s *proposalService) signaturePrefix(id primitive.ObjectID) string {
	return SignaturePrefix(s.cfg, id)
}

// SignaturePrefix is the object key prefix signature uploads for a proposal must use.
func SignaturePrefix(cfg *config.Config, id primitive.ObjectID) string {
	return cfg.SignatureKeyPrefix + id.Hex() + "/"
}

func (s *proposalService) notifyClientDecision(ctx context.Context, prop *models.Proposal, d *models.ClientDecision) {
	creator, err := s.userSvc.FindByID(ctx, prop.CreatedBy)
	if err != nil {
		s.log.Error().Err(err).Str("proposal_id", prop.ID.Hex()).Msg("failed to load creator for client decision")
		return
	}
	decision := strings.ToLower(string(prop.ClientApprovalStatus))
	err = s.notifications.Notify(ctx, Notice{
		Recipients: []models.User{*creator},
		Subject:    models.Subject{Kind: models.SubjectProposal, ID: prop.ID},
		Event:      models.EventClientDecided,
		Title:      "Client responded to proposal",
		Message:    fmt.Sprintf("%s %s proposal %s", d.SignerName, decision, prop.Reference),
		Template:   email.TemplateClientDecided,
		Data: map[string]interface{}{
			"SignerName": d.SignerName,
			"Decision":   decision,
			"Reference":  prop.Reference,
			"Title":      prop.Title,
			"Comments":   d.Comments,
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("proposal_id", prop.ID.Hex()).Msg("failed to notify client decision")
	}
}

func (s *proposalService) ConvertToProject(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ConvertInput) (*models.Project, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !authz.CanActAsOwner(p, prop.CreatedBy) && !p.IsManager() {
		return nil, workflow.ErrForbidden
	}
	if prop.Status != models.StatusApproved {
		return nil, fmt.Errorf("%w: only approved proposals can be converted", workflow.ErrInvalidState)
	}
	if prop.ClientApprovalStatus == models.ApprovalRejected {
		return nil, fmt.Errorf("%w: client rejected the proposal", workflow.ErrInvalidState)
	}
	if prop.ClientID == nil {
		return nil, invalid("proposal has no client", map[string]string{"client_id": "required before conversion"})
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = prop.Title
	}
	ts := now()
	managerID := in.ManagerID
	if managerID == nil {
		managerID = &p.UserID
	}
	project := &models.Project{
		Base:       models.NewBase(),
		Name:       name,
		ClientID:   *prop.ClientID,
		ProposalID: &prop.ID,
		ManagerID:  managerID,
		Status:     models.ProjectActive,
		Milestones: in.Milestones,
		CreatedBy:  p.UserID,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if _, err := s.db.Collection(db.ProjectsCollection).InsertOne(ctx, project); err != nil {
		return nil, fmt.Errorf("error creating project from proposal: %w", err)
	}
	return project, nil
}

func (s *proposalService) Installments(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*InstallmentPlan, error) {
	prop, err := s.FindByID(ctx, p, id)
	if err != nil {
		return nil, err
	}
	plan := &InstallmentPlan{ProposalID: prop.ID, Base: prop.Amount, Installments: []Installment{}}
	if !prop.PaymentTerm.HasInstallments() {
		return plan, nil
	}
	if plan.Upfront, err = finance.UpfrontDeduction(prop.Amount, prop.PaymentTerm); err != nil {
		return nil, invalid("invalid payment term", map[string]string{"payment_term": err.Error()})
	}

	dates, err := installmentDates(ctx, s.db, prop)
	if err != nil {
		return nil, err
	}
	count := len(dates)
	if count == 0 {
		count = prop.PaymentTerm.InstallmentCount
	}
	if count == 0 {
		return plan, nil
	}
	amounts, err := finance.InstallmentSchedule(prop.Amount, prop.PaymentTerm, count)
	if err != nil {
		return nil, invalid("invalid payment term", map[string]string{"payment_term": err.Error()})
	}
	invoiced, err := invoicedInstallments(ctx, s.db, prop.ID)
	if err != nil {
		return nil, err
	}
	for i, amt := range amounts {
		inst := Installment{Amount: amt}
		if i < len(dates) {
			inst.DueDate = dates[i]
			for _, d := range invoiced {
				if reminders.SameDay(d, dates[i]) {
					inst.Invoiced = true
				}
			}
		}
		plan.Installments = append(plan.Installments, inst)
	}
	return plan, nil
}

// installmentDates derives due dates, loading milestones of the proposal's
// projects when the term uses them.
func installmentDates(ctx context.Context, database *mongo.Database, prop *models.Proposal) ([]time.Time, error) {
	var milestones []models.Milestone
	if prop.PaymentTerm.UseMilestones {
		cursor, err := database.Collection(db.ProjectsCollection).Find(ctx, notDeleted(bson.M{"proposal_id": prop.ID}))
		if err != nil {
			return nil, fmt.Errorf("error loading projects for proposal %s: %w", prop.ID.Hex(), err)
		}
		var projects []models.Project
		if err := cursor.All(ctx, &projects); err != nil {
			return nil, fmt.Errorf("error decoding projects: %w", err)
		}
		for _, pr := range projects {
			milestones = append(milestones, pr.Milestones...)
		}
	}
	start := prop.CreatedAt
	if prop.ApprovedAt != nil {
		start = *prop.ApprovedAt
	}
	return reminders.DueDates(prop.PaymentTerm, milestones, start), nil
}

// invoicedInstallments returns the installment dates that already have a live bill.
func invoicedInstallments(ctx context.Context, database *mongo.Database, proposalID primitive.ObjectID) ([]time.Time, error) {
	cursor, err := database.Collection(db.BillsCollection).Find(ctx, notDeleted(bson.M{
		"proposal_id":      proposalID,
		"installment_date": bson.M{"$ne": nil},
		"status":           bson.M{"$nin": bson.A{models.BillCancelled, models.BillWrittenOff}},
	}), options.Find().SetProjection(bson.M{"installment_date": 1}))
	if err != nil {
		return nil, fmt.Errorf("error loading installment bills: %w", err)
	}
	var bills []models.Bill
	if err := cursor.All(ctx, &bills); err != nil {
		return nil, fmt.Errorf("error decoding installment bills: %w", err)
	}
	out := make([]time.Time, 0, len(bills))
	for _, b := range bills {
		if b.InstallmentDate != nil {
			out = append(out, *b.InstallmentDate)
		}
	}
	return out, nil
}

func (s *proposalService) RequestDeletion(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckProposalDeletionRequest(p, prop); err != nil {
		return nil, err
	}
	if !canView(p, prop) {
		return nil, workflow.ErrForbidden
	}
	ts := now()
	var updated models.Proposal
	err = s.coll().FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "deletion_requested_at": nil}),
		bson.M{"$set": bson.M{"deletion_requested_at": ts, "deletion_requested_by": p.UserID, "updated_at": ts}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: deletion already requested", workflow.ErrAlreadyDecided)
		}
		return nil, fmt.Errorf("error requesting proposal deletion: %w", err)
	}
	return &updated, nil
}

func (s *proposalService) ApproveDeletion(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckProposalDeletionApproval(p, prop); err != nil {
		return nil, err
	}
	ts := now()
	var updated models.Proposal
	err = s.coll().FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "deletion_requested_by": *prop.DeletionRequestedBy}),
		bson.M{"$set": bson.M{
			"deletion_approved_at": ts,
			"deletion_approved_by": p.UserID,
			"deleted_at":           ts,
			"updated_at":           ts,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: proposal changed concurrently", workflow.ErrAlreadyDecided)
		}
		return nil, fmt.Errorf("error approving proposal deletion: %w", err)
	}
	return &updated, nil
}

// SoftDelete hides a proposal. Admins may delete any proposal; creators only
// their own drafts. Anything else goes through the two-person deletion.
func (s *proposalService) SoftDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	prop, err := s.load(ctx, id, false)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && !(prop.CreatedBy == p.UserID && prop.Status == models.StatusDraft) {
		return fmt.Errorf("%w: request a deletion approval instead", workflow.ErrForbidden)
	}
	res, err := s.coll().UpdateOne(ctx, notDeleted(bson.M{"_id": id}), bson.M{"$set": bson.M{"deleted_at": now()}})
	if err != nil {
		return fmt.Errorf("error deleting proposal %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *proposalService) Restore(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	if !p.IsAdmin() {
		return workflow.ErrForbidden
	}
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"_id": id, "deleted_at": bson.M{"$ne": nil}},
		bson.M{
			"$set": bson.M{"updated_at": now()},
			"$unset": bson.M{
				"deleted_at":            "",
				"deletion_requested_at": "",
				"deletion_requested_by": "",
				"deletion_approved_at":  "",
				"deletion_approved_by":  "",
			},
		})
	if err != nil {
		return fmt.Errorf("error restoring proposal %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *proposalService) PermanentDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	if !p.IsAdmin() {
		return workflow.ErrForbidden
	}
	prop, err := s.load(ctx, id, true)
	if err != nil {
		return err
	}
	if !prop.IsDeleted() {
		return fmt.Errorf("%w: proposal must be deleted before it can be purged", workflow.ErrInvalidState)
	}
	linked, err := s.db.Collection(db.ProjectsCollection).CountDocuments(ctx, bson.M{"proposal_id": id})
	if err != nil {
		return fmt.Errorf("error counting projects of proposal %s: %w", id.Hex(), err)
	}
	if linked > 0 {
		return invalid("proposal has projects", map[string]string{"projects": fmt.Sprintf("%d linked", linked)})
	}
	return db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		if _, err := s.db.Collection(db.ApprovalsCollection).DeleteMany(sc, bson.M{"proposal_id": id}); err != nil {
			return fmt.Errorf("error deleting approvals of proposal %s: %w", id.Hex(), err)
		}
		if _, err := s.db.Collection(db.NotificationsCollection).DeleteMany(sc, bson.M{
			"subject.kind": bson.M{"$in": bson.A{models.SubjectProposal, models.SubjectInstallment}},
			"subject.id":   id,
		}); err != nil {
			return fmt.Errorf("error deleting notifications of proposal %s: %w", id.Hex(), err)
		}
		if _, err := s.coll().DeleteOne(sc, bson.M{"_id": id}); err != nil {
			return fmt.Errorf("error purging proposal %s: %w", id.Hex(), err)
		}
		return nil
	})
}

func (s *proposalService) BulkSoftDelete(ctx context.Context, p authz.Principal, ids []primitive.ObjectID) ([]BulkResult, error) {
	return runBulk(ctx, ids, s.cfg.BulkConcurrency, func(ctx context.Context, id primitive.ObjectID) error {
		return s.SoftDelete(ctx, p, id)
	})
}
