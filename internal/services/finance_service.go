package services

import (
	"context"
	"fmt"
	"time"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/finance"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/workflow"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EntryInput struct {
	Kind          models.EntryKind
	UserID        primitive.ObjectID
	Amount        float64
	Currency      string
	EffectiveDate time.Time
	Notes         string
}

type IFinanceService interface {
	RecordEntry(ctx context.Context, p authz.Principal, in EntryInput) (*models.FinancialEntry, error)
	ListEntries(ctx context.Context, p authz.Principal, userID primitive.ObjectID) ([]models.FinancialEntry, error)
	DeleteEntry(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	Balance(ctx context.Context, p authz.Principal, userID primitive.ObjectID) (*finance.Balance, error)
	UnchargedProposals(ctx context.Context, p authz.Principal) (*finance.UnchargedReport, error)
}

type financeService struct {
	db  *mongo.Database
	cfg *config.Config
}

func NewFinanceService(db *mongo.Database, cfg *config.Config) IFinanceService {
	return &financeService{db: db, cfg: cfg}
}

func (s *financeService) coll() *mongo.Collection {
	return s.db.Collection(db.FinancialEntriesCollection)
}

func (s *financeService) RecordEntry(ctx context.Context, p authz.Principal, in EntryInput) (*models.FinancialEntry, error) {
	if !authz.CanManageFinance(p) {
		return nil, workflow.ErrForbidden
	}
	details := map[string]string{}
	if !in.Kind.Valid() {
		details["kind"] = "unknown entry kind"
	}
	if in.UserID.IsZero() {
		details["user_id"] = "required"
	}
	if in.Amount <= 0 {
		details["amount"] = "must be positive"
	}
	if len(details) > 0 {
		return nil, invalid("invalid financial entry", details)
	}
	currency := in.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	effective := in.EffectiveDate
	if effective.IsZero() {
		effective = now()
	}
	entry := &models.FinancialEntry{
		Base:          models.NewBase(),
		Kind:          in.Kind,
		UserID:        in.UserID,
		Amount:        finance.Round(in.Amount),
		Currency:      currency,
		EffectiveDate: effective.UTC(),
		Notes:         in.Notes,
		CreatedBy:     p.UserID,
		CreatedAt:     now(),
	}
	if _, err := s.coll().InsertOne(ctx, entry); err != nil {
		return nil, fmt.Errorf("error recording financial entry: %w", err)
	}
	return entry, nil
}

// ListEntries returns a user's ledger. Staff may read their own.
func (s *financeService) ListEntries(ctx context.Context, p authz.Principal, userID primitive.ObjectID) ([]models.FinancialEntry, error) {
	if !authz.CanManageFinance(p) && !(p.IsStaff() && p.UserID == userID) {
		return nil, workflow.ErrForbidden
	}
	cursor, err := s.coll().Find(ctx, notDeleted(bson.M{"user_id": userID}),
		options.Find().SetSort(bson.D{{Key: "effective_date", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing financial entries: %w", err)
	}
	out := []models.FinancialEntry{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding financial entries: %w", err)
	}
	return out, nil
}

func (s *financeService) DeleteEntry(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	if !authz.CanManageFinance(p) {
		return workflow.ErrForbidden
	}
	res, err := s.coll().UpdateOne(ctx, notDeleted(bson.M{"_id": id}), bson.M{"$set": bson.M{"deleted_at": now()}})
	if err != nil {
		return fmt.Errorf("error deleting financial entry %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *financeService) Balance(ctx context.Context, p authz.Principal, userID primitive.ObjectID) (*finance.Balance, error) {
	entries, err := s.ListEntries(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	b := finance.StaffBalance(entries)
	return &b, nil
}

func (s *financeService) UnchargedProposals(ctx context.Context, p authz.Principal) (*finance.UnchargedReport, error) {
	if !authz.CanManageFinance(p) && !authz.CanViewAllBills(p) {
		return nil, workflow.ErrForbidden
	}
	cursor, err := s.db.Collection(db.ProposalsCollection).Find(ctx, notDeleted(bson.M{"status": models.StatusApproved}))
	if err != nil {
		return nil, fmt.Errorf("error loading approved proposals: %w", err)
	}
	var proposals []models.Proposal
	if err := cursor.All(ctx, &proposals); err != nil {
		return nil, fmt.Errorf("error decoding proposals: %w", err)
	}
	if len(proposals) == 0 {
		return &finance.UnchargedReport{Proposals: []finance.ProposalCharge{}}, nil
	}

	proposalIDs := make([]primitive.ObjectID, len(proposals))
	for i, pr := range proposals {
		proposalIDs[i] = pr.ID
	}
	cursor, err = s.db.Collection(db.ProjectsCollection).Find(ctx,
		bson.M{"proposal_id": bson.M{"$in": proposalIDs}},
		options.Find().SetProjection(bson.M{"_id": 1, "proposal_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("error loading projects: %w", err)
	}
	var projects []models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("error decoding projects: %w", err)
	}

	projectsByProposal := map[primitive.ObjectID][]primitive.ObjectID{}
	projectIDs := make([]primitive.ObjectID, 0, len(projects))
	for _, pr := range projects {
		projectsByProposal[*pr.ProposalID] = append(projectsByProposal[*pr.ProposalID], pr.ID)
		projectIDs = append(projectIDs, pr.ID)
	}

	billsByProject := map[primitive.ObjectID][]models.Bill{}
	if len(projectIDs) > 0 {
		cursor, err = s.db.Collection(db.BillsCollection).Find(ctx, bson.M{"project_id": bson.M{"$in": projectIDs}})
		if err != nil {
			return nil, fmt.Errorf("error loading bills: %w", err)
		}
		var bills []models.Bill
		if err := cursor.All(ctx, &bills); err != nil {
			return nil, fmt.Errorf("error decoding bills: %w", err)
		}
		for _, b := range bills {
			billsByProject[*b.ProjectID] = append(billsByProject[*b.ProjectID], b)
		}
	}

	report := finance.ClosedProposalsNotCharged(proposals, projectsByProposal, billsByProject)
	return &report, nil
}
