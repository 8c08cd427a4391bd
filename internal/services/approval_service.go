package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/workflow"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DecisionInput is an approver's answer. Exactly one of ProposalID and
// BillID must be set.
type DecisionInput struct {
	ProposalID *primitive.ObjectID
	BillID     *primitive.ObjectID
	Status     models.ApprovalStatus
	Comments   string
}

// ApprovalTarget names what approvers are asked to review.
type ApprovalTarget struct {
	Subject models.Subject
	Title   string
}

type IApprovalService interface {
	// ValidateApprovers resolves approver ids and checks each may approve
	// work created by a user with creatorRole. The requester is dropped.
	ValidateApprovers(ctx context.Context, requester authz.Principal, creatorRole models.Role, ids []primitive.ObjectID) ([]models.User, error)
	// CreatePending stores one PENDING approval per approver.
	CreatePending(ctx context.Context, subject models.Subject, approvers []models.User) error
	// NotifyRequested emails each approver; failures are logged only.
	NotifyRequested(ctx context.Context, requester authz.Principal, target ApprovalTarget, approvers []models.User)
	Decide(ctx context.Context, p authz.Principal, in DecisionInput) (*models.Approval, error)
	ListPending(ctx context.Context, p authz.Principal) ([]models.Approval, error)
	ListFor(ctx context.Context, p authz.Principal, subject models.Subject) ([]models.Approval, error)
}

type approvalService struct {
	db            *mongo.Database
	userSvc       IUserService
	notifications INotificationService
	appURL        string
	log           zerolog.Logger
}

func NewApprovalService(db *mongo.Database, userSvc IUserService, notifications INotificationService, appURL string, log zerolog.Logger) IApprovalService {
	return &approvalService{
		db:            db,
		userSvc:       userSvc,
		notifications: notifications,
		appURL:        strings.TrimRight(appURL, "/"),
		log:           log.With().Str("component", "approvals").Logger(),
	}
}

func parentField(kind models.SubjectKind) string {
	if kind == models.SubjectInvoice {
		return "bill_id"
	}
	return "proposal_id"
}

func (s *approvalService) ValidateApprovers(ctx context.Context, requester authz.Principal, creatorRole models.Role, ids []primitive.ObjectID) ([]models.User, error) {
	ids = workflow.DistinctApprovers(ids)
	filtered := ids[:0]
	for _, id := range ids {
		if id != requester.UserID {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}
	users, err := s.userSvc.FindByIDs(ctx, filtered)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	details := map[string]string{}
	out := make([]models.User, 0, len(filtered))
	for _, id := range filtered {
		u, ok := byID[id]
		switch {
		case !ok:
			details[id.Hex()] = "unknown user"
		case !authz.CanApprove(u.Role, creatorRole):
			details[id.Hex()] = fmt.Sprintf("%s cannot approve work created by %s", u.Role, creatorRole)
		default:
			out = append(out, u)
		}
	}
	if len(details) > 0 {
		return nil, invalid("invalid approvers", details)
	}
	return out, nil
}

func (s *approvalService) CreatePending(ctx context.Context, subject models.Subject, approvers []models.User) error {
	if len(approvers) == 0 {
		return nil
	}
	ts := now()
	docs := make([]interface{}, 0, len(approvers))
	for _, u := range approvers {
		a := models.Approval{
			Base:       models.NewBase(),
			ApproverID: u.ID,
			Status:     models.ApprovalPending,
			CreatedAt:  ts,
		}
		id := subject.ID
		if subject.Kind == models.SubjectInvoice {
			a.BillID = &id
		} else {
			a.ProposalID = &id
		}
		docs = append(docs, a)
	}
	if _, err := s.db.Collection(db.ApprovalsCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("error creating approvals for %s %s: %w", subject.Kind, subject.ID.Hex(), err)
	}
	return nil
}

func (s *approvalService) NotifyRequested(ctx context.Context, requester authz.Principal, target ApprovalTarget, approvers []models.User) {
	if len(approvers) == 0 {
		return
	}
	requesterName := ""
	if u, err := s.userSvc.FindByID(ctx, requester.UserID); err == nil {
		requesterName = u.Name
	}
	kind, path := "proposal", "proposals"
	if target.Subject.Kind == models.SubjectInvoice {
		kind, path = "bill", "bills"
	}
	err := s.notifications.Notify(ctx, Notice{
		Recipients: approvers,
		Subject:    target.Subject,
		Event:      models.EventApprovalRequested,
		Title:      "Approval requested",
		Message:    fmt.Sprintf("%s %q is waiting for your approval", kind, target.Title),
		Template:   email.TemplateApprovalRequested,
		Data: map[string]interface{}{
			"RequesterName": requesterName,
			"Kind":          kind,
			"Title":         target.Title,
			"Link":          fmt.Sprintf("%s/%s/%s", s.appURL, path, target.Subject.ID.Hex()),
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("subject_id", target.Subject.ID.Hex()).Msg("failed to notify approvers")
	}
}

func (s *approvalService) Decide(ctx context.Context, p authz.Principal, in DecisionInput) (*models.Approval, error) {
	probe := models.Approval{ProposalID: in.ProposalID, BillID: in.BillID}
	if err := probe.Validate(); err != nil {
		return nil, invalid(err.Error(), nil)
	}
	if !in.Status.IsDecision() {
		return nil, invalid("invalid decision", map[string]string{"status": "must be APPROVED or REJECTED"})
	}
	if in.ProposalID != nil {
		return s.decideProposal(ctx, p, *in.ProposalID, in)
	}
	return s.decideBill(ctx, p, *in.BillID, in)
}

func (s *approvalService) creatorRole(ctx context.Context, creatorID primitive.ObjectID) (models.Role, error) {
	creator, err := s.userSvc.FindByID(ctx, creatorID)
	if err != nil {
		if errIsNotFound(err) {
			return "", fmt.Errorf("creator %s not found: %w", creatorID.Hex(), err)
		}
		return "", err
	}
	return creator.Role, nil
}

func (s *approvalService) decideProposal(ctx context.Context, p authz.Principal, id primitive.ObjectID, in DecisionInput) (*models.Approval, error) {
	var prop models.Proposal
	if err := s.db.Collection(db.ProposalsCollection).FindOne(ctx, notDeleted(bson.M{"_id": id})).Decode(&prop); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding proposal %s: %w", id.Hex(), err)
	}
	role, err := s.creatorRole(ctx, prop.CreatedBy)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckDecision(p, role, prop.Status == models.StatusSubmitted, in.Status); err != nil {
		return nil, err
	}

	subject := models.Subject{Kind: models.SubjectProposal, ID: prop.ID}
	ts := now()
	set := bson.M{"status": workflow.ProposalStatusFor(in.Status), "updated_at": ts}
	if in.Status == models.ApprovalApproved {
		set["approved_at"] = ts
		set["approved_by"] = p.UserID
	} else {
		set["rejected_at"] = ts
	}

	var approval *models.Approval
	err = db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		res, err := s.db.Collection(db.ProposalsCollection).UpdateOne(sc,
			bson.M{"_id": prop.ID, "status": models.StatusSubmitted},
			bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("error updating proposal %s: %w", prop.ID.Hex(), err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: proposal was decided concurrently", workflow.ErrAlreadyDecided)
		}
		if approval, err = s.record(sc, subject, p.UserID, in.Status, in.Comments); err != nil {
			return err
		}
		return s.closePending(sc, subject)
	})
	if err != nil {
		return nil, err
	}
	s.notifyDecision(ctx, p, prop.CreatedBy, subject, prop.Title, in)
	return approval, nil
}

func (s *approvalService) decideBill(ctx context.Context, p authz.Principal, id primitive.ObjectID, in DecisionInput) (*models.Approval, error) {
	var bill models.Bill
	if err := s.db.Collection(db.BillsCollection).FindOne(ctx, notDeleted(bson.M{"_id": id})).Decode(&bill); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding bill %s: %w", id.Hex(), err)
	}
	role, err := s.creatorRole(ctx, bill.CreatedBy)
	if err != nil {
		return nil, err
	}

	submitted := bill.Status == models.BillSubmitted
	// Once approved, a bill that needs ALL its approvers keeps collecting
	// answers from the remaining required approvers.
	late := bill.Status == models.BillApproved && bill.InternalApprovalRequired &&
		!bill.InternalApprovalsComplete && containsID(bill.RequiredApproverIDs, p.UserID)
	if err := workflow.CheckDecision(p, role, submitted || late, in.Status); err != nil {
		return nil, err
	}

	subject := models.Subject{Kind: models.SubjectInvoice, ID: bill.ID}
	var approval *models.Approval
	err = db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		var err error
		if approval, err = s.record(sc, subject, p.UserID, in.Status, in.Comments); err != nil {
			return err
		}
		rows, err := s.rows(sc, subject)
		if err != nil {
			return err
		}
		complete := !bill.InternalApprovalRequired ||
			workflow.InternalApprovalsComplete(bill.InternalApprovalType, bill.RequiredApproverIDs, rows)

		ts := now()
		coll := s.db.Collection(db.BillsCollection)
		if late {
			_, err := coll.UpdateOne(sc, bson.M{"_id": bill.ID, "status": models.BillApproved},
				bson.M{"$set": bson.M{"internal_approvals_complete": complete, "updated_at": ts}})
			if err != nil {
				return fmt.Errorf("error updating bill %s: %w", bill.ID.Hex(), err)
			}
			if complete {
				return s.closePending(sc, subject)
			}
			return nil
		}

		update := bson.M{}
		if in.Status == models.ApprovalApproved {
			update["$set"] = bson.M{
				"status":                      workflow.BillStatusFor(in.Status),
				"approved_at":                 ts,
				"approved_by":                 p.UserID,
				"internal_approvals_complete": complete,
				"updated_at":                  ts,
			}
		} else {
			update["$set"] = bson.M{
				"status":                      workflow.BillStatusFor(in.Status),
				"internal_approvals_complete": false,
				"updated_at":                  ts,
			}
			update["$unset"] = bson.M{"submitted_at": ""}
		}
		res, err := coll.UpdateOne(sc, bson.M{"_id": bill.ID, "status": models.BillSubmitted}, update)
		if err != nil {
			return fmt.Errorf("error updating bill %s: %w", bill.ID.Hex(), err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: bill was decided concurrently", workflow.ErrAlreadyDecided)
		}
		if in.Status == models.ApprovalRejected || complete {
			return s.closePending(sc, subject)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A late answer leaves the bill APPROVED; a rejection only keeps
	// MarkPaid blocked, so the creator is not told the bill was rejected.
	if !late {
		s.notifyDecision(ctx, p, bill.CreatedBy, subject, bill.Number, in)
	}
	return approval, nil
}

// record answers the approver's pending row, or writes a new decided row
// when the approver was not asked explicitly.
func (s *approvalService) record(ctx context.Context, subject models.Subject, approverID primitive.ObjectID, status models.ApprovalStatus, comments string) (*models.Approval, error) {
	coll := s.db.Collection(db.ApprovalsCollection)
	ts := now()
	var a models.Approval
	err := coll.FindOneAndUpdate(ctx,
		bson.M{parentField(subject.Kind): subject.ID, "approver_id": approverID, "status": models.ApprovalPending},
		bson.M{"$set": bson.M{"status": status, "comments": comments, "responded_at": ts}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error recording approval: %w", err)
	}

	a = models.Approval{
		Base:        models.NewBase(),
		ApproverID:  approverID,
		Status:      status,
		Comments:    comments,
		CreatedAt:   ts,
		RespondedAt: &ts,
	}
	id := subject.ID
	if subject.Kind == models.SubjectInvoice {
		a.BillID = &id
	} else {
		a.ProposalID = &id
	}
	if _, err := coll.InsertOne(ctx, a); err != nil {
		return nil, fmt.Errorf("error recording approval: %w", err)
	}
	return &a, nil
}

// closePending drops approval requests nobody needs to answer any more.
func (s *approvalService) closePending(ctx context.Context, subject models.Subject) error {
	_, err := s.db.Collection(db.ApprovalsCollection).DeleteMany(ctx,
		bson.M{parentField(subject.Kind): subject.ID, "status": models.ApprovalPending})
	if err != nil {
		return fmt.Errorf("error closing pending approvals: %w", err)
	}
	return nil
}

func (s *approvalService) rows(ctx context.Context, subject models.Subject) ([]models.Approval, error) {
	cursor, err := s.db.Collection(db.ApprovalsCollection).Find(ctx,
		bson.M{parentField(subject.Kind): subject.ID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing approvals: %w", err)
	}
	out := []models.Approval{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding approvals: %w", err)
	}
	return out, nil
}

func (s *approvalService) notifyDecision(ctx context.Context, p authz.Principal, creatorID primitive.ObjectID, subject models.Subject, title string, in DecisionInput) {
	if creatorID == p.UserID {
		return
	}
	creator, err := s.userSvc.FindByID(ctx, creatorID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", creatorID.Hex()).Msg("failed to load creator for decision notice")
		return
	}
	approverName := ""
	if u, err := s.userSvc.FindByID(ctx, p.UserID); err == nil {
		approverName = u.Name
	}
	kind, label := "proposal", "Proposal"
	if subject.Kind == models.SubjectInvoice {
		kind, label = "bill", "Bill"
	}
	err = s.notifications.Notify(ctx, Notice{
		Recipients: []models.User{*creator},
		Subject:    subject,
		Event:      models.EventApprovalDecided,
		Title:      fmt.Sprintf("%s %s", label, strings.ToLower(string(in.Status))),
		Message:    fmt.Sprintf("%s %q was %s", kind, title, strings.ToLower(string(in.Status))),
		Template:   email.TemplateApprovalDecided,
		Data: map[string]interface{}{
			"Kind":         kind,
			"Title":        title,
			"Decision":     strings.ToLower(string(in.Status)),
			"ApproverName": approverName,
			"Comments":     in.Comments,
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("subject_id", subject.ID.Hex()).Msg("failed to notify creator of decision")
	}
}

func (s *approvalService) ListPending(ctx context.Context, p authz.Principal) ([]models.Approval, error) {
	cursor, err := s.db.Collection(db.ApprovalsCollection).Find(ctx,
		bson.M{"approver_id": p.UserID, "status": models.ApprovalPending},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing pending approvals: %w", err)
	}
	out := []models.Approval{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding approvals: %w", err)
	}
	return out, nil
}

func (s *approvalService) ListFor(ctx context.Context, p authz.Principal, subject models.Subject) ([]models.Approval, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	return s.rows(ctx, subject)
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
