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
	"greendrake/chambers/internal/finance"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/workflow"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type BillInput struct {
	ClientID        primitive.ObjectID
	ProjectID       *primitive.ObjectID
	ProposalID      *primitive.ObjectID
	Lines           []models.BillLine
	Currency        string
	DueDate         *time.Time
	InstallmentDate *time.Time
}

type GenerateInput struct {
	DueDate  *time.Time
	Currency string
}

type BillFilter struct {
	Status    models.BillStatus
	ClientID  *primitive.ObjectID
	ProjectID *primitive.ObjectID
	Deleted   bool
}

type IBillService interface {
	Create(ctx context.Context, p authz.Principal, in BillInput) (*models.Bill, error)
	GenerateFromUnbilled(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in GenerateInput) (*models.Bill, error)
	FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error)
	List(ctx context.Context, p authz.Principal, f BillFilter) ([]models.Bill, error)
	ListOutstanding(ctx context.Context, p authz.Principal) ([]models.Bill, error)

	Submit(ctx context.Context, p authz.Principal, id primitive.ObjectID, in SubmitInput) (*models.Bill, error)
	MarkPaid(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error)
	Cancel(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error)
	WriteOff(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error)

	SoftDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	Restore(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	PermanentDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	BulkSoftDelete(ctx context.Context, p authz.Principal, ids []primitive.ObjectID) ([]BulkResult, error)
}

type billService struct {
	db        *mongo.Database
	cfg       *config.Config
	userSvc   IUserService
	approvals IApprovalService
	log       zerolog.Logger
}

func NewBillService(db *mongo.Database, cfg *config.Config, userSvc IUserService, approvals IApprovalService, log zerolog.Logger) IBillService {
	return &billService{
		db:        db,
		cfg:       cfg,
		userSvc:   userSvc,
		approvals: approvals,
		log:       log.With().Str("component", "bills").Logger(),
	}
}

func (s *billService) coll() *mongo.Collection {
	return s.db.Collection(db.BillsCollection)
}

func newBillNumber(t time.Time) string {
	return fmt.Sprintf("INV-%s-%s", t.Format("200601"), strings.ToUpper(uuid.NewString()[:6]))
}

func (s *billService) dueDate(in *time.Time, from time.Time) time.Time {
	if in != nil {
		return in.UTC()
	}
	return from.AddDate(0, 0, s.cfg.BillPaymentTermDays)
}

func priceLines(lines []models.BillLine) ([]models.BillLine, error) {
	details := map[string]string{}
	out := make([]models.BillLine, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l.Description) == "" {
			details[fmt.Sprintf("lines[%d].description", i)] = "required"
		}
		if l.Quantity <= 0 {
			details[fmt.Sprintf("lines[%d].quantity", i)] = "must be positive"
		}
		if l.Kind == "" {
			l.Kind = models.LineFee
		}
		l.Amount = finance.Round(l.Quantity * l.Rate)
		out[i] = l
	}
	if len(lines) == 0 {
		details["lines"] = "at least one line is required"
	}
	if len(details) > 0 {
		return nil, invalid("invalid bill", details)
	}
	return out, nil
}

// insert stores b under a freshly generated number, retrying on collisions.
func (s *billService) insert(ctx context.Context, b *models.Bill) error {
	return db.Try(func() error {
		b.Number = newBillNumber(b.CreatedAt)
		_, err := s.coll().InsertOne(ctx, b)
		return err
	})
}

func (s *billService) Create(ctx context.Context, p authz.Principal, in BillInput) (*models.Bill, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	if in.ClientID.IsZero() {
		return nil, invalid("invalid bill", map[string]string{"client_id": "required"})
	}
	lines, err := priceLines(in.Lines)
	if err != nil {
		return nil, err
	}
	currency := in.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	ts := now()
	b := &models.Bill{
		Base:            models.NewBase(),
		ClientID:        in.ClientID,
		ProjectID:       in.ProjectID,
		ProposalID:      in.ProposalID,
		CreatedBy:       p.UserID,
		Lines:           lines,
		Amount:          finance.SumLines(lines),
		Currency:        currency,
		Status:          models.BillDraft,
		DueDate:         s.dueDate(in.DueDate, ts),
		InstallmentDate: in.InstallmentDate,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if err := s.insert(ctx, b); err != nil {
		return nil, fmt.Errorf("error creating bill: %w", err)
	}
	return b, nil
}

func (s *billService) GenerateFromUnbilled(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in GenerateInput) (*models.Bill, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	var project models.Project
	if err := s.db.Collection(db.ProjectsCollection).FindOne(ctx, notDeleted(bson.M{"_id": projectID})).Decode(&project); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding project %s: %w", projectID.Hex(), err)
	}

	currency := in.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	ts := now()
	bill := &models.Bill{
		Base:       models.NewBase(),
		ClientID:   project.ClientID,
		ProjectID:  &project.ID,
		ProposalID: project.ProposalID,
		CreatedBy:  p.UserID,
		Currency:   currency,
		Status:     models.BillDraft,
		DueDate:    s.dueDate(in.DueDate, ts),
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}

	err := db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		entries, charges, err := loadUnbilled(sc, s.db, projectID)
		if err != nil {
			return err
		}
		if len(entries) == 0 && len(charges) == 0 {
			return invalid("nothing to bill", map[string]string{"project_id": "project has no unbilled time or charges"})
		}
		bill.Lines = finance.BillLines(entries, charges)
		bill.Amount = finance.SumLines(bill.Lines)
		if err := s.insert(sc, bill); err != nil {
			return fmt.Errorf("error creating bill: %w", err)
		}

		mark := bson.M{"$set": bson.M{"billed": true, "bill_id": bill.ID}}
		if len(entries) > 0 {
			ids := make([]primitive.ObjectID, len(entries))
			for i, e := range entries {
				ids[i] = e.ID
			}
			res, err := s.db.Collection(db.TimesheetsCollection).UpdateMany(sc, bson.M{"_id": bson.M{"$in": ids}, "billed": false}, mark)
			if err != nil {
				return fmt.Errorf("error marking timesheets billed: %w", err)
			}
			if res.ModifiedCount != int64(len(ids)) {
				return fmt.Errorf("%w: timesheet entries were billed concurrently", workflow.ErrInvalidState)
			}
		}
		if len(charges) > 0 {
			ids := make([]primitive.ObjectID, len(charges))
			for i, c := range charges {
				ids[i] = c.ID
			}
			res, err := s.db.Collection(db.ChargesCollection).UpdateMany(sc, bson.M{"_id": bson.M{"$in": ids}, "billed": false}, mark)
			if err != nil {
				return fmt.Errorf("error marking charges billed: %w", err)
			}
			if res.ModifiedCount != int64(len(ids)) {
				return fmt.Errorf("%w: charges were billed concurrently", workflow.ErrInvalidState)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("bill_id", bill.ID.Hex()).Str("project_id", projectID.Hex()).Float64("amount", bill.Amount).Msg("bill generated from unbilled work")
	return bill, nil
}

// loadUnbilled returns the billable, unbilled timesheet entries and the
// unbilled charges of a project.
func loadUnbilled(ctx context.Context, database *mongo.Database, projectID primitive.ObjectID) ([]models.TimesheetEntry, []models.ProjectCharge, error) {
	cursor, err := database.Collection(db.TimesheetsCollection).Find(ctx,
		bson.M{"project_id": projectID, "billable": true, "billed": false},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, nil, fmt.Errorf("error loading timesheets: %w", err)
	}
	entries := []models.TimesheetEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, nil, fmt.Errorf("error decoding timesheets: %w", err)
	}

	cursor, err = database.Collection(db.ChargesCollection).Find(ctx,
		bson.M{"project_id": projectID, "billed": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, nil, fmt.Errorf("error loading charges: %w", err)
	}
	charges := []models.ProjectCharge{}
	if err := cursor.All(ctx, &charges); err != nil {
		return nil, nil, fmt.Errorf("error decoding charges: %w", err)
	}
	return entries, charges, nil
}

func (s *billService) load(ctx context.Context, id primitive.ObjectID, includeDeleted bool) (*models.Bill, error) {
	filter := bson.M{"_id": id}
	if !includeDeleted {
		filter = notDeleted(filter)
	}
	var b models.Bill
	if err := s.coll().FindOne(ctx, filter).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding bill %s: %w", id.Hex(), err)
	}
	return &b, nil
}

func canViewBill(p authz.Principal, b *models.Bill) bool {
	switch {
	case authz.CanViewAllBills(p):
		return true
	case p.Role == models.RoleClient:
		return p.ClientID != nil && *p.ClientID == b.ClientID && b.Status != models.BillDraft
	case p.IsStaff():
		return b.CreatedBy == p.UserID || containsID(b.RequiredApproverIDs, p.UserID)
	}
	return false
}

func (s *billService) FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error) {
	b, err := s.load(ctx, id, p.IsAdmin())
	if err != nil {
		return nil, err
	}
	if !canViewBill(p, b) {
		return nil, workflow.ErrForbidden
	}
	return b, nil
}

func (s *billService) List(ctx context.Context, p authz.Principal, f BillFilter) ([]models.Bill, error) {
	filter := bson.M{}
	switch {
	case authz.CanViewAllBills(p):
	case p.Role == models.RoleClient && p.ClientID != nil:
		filter["client_id"] = *p.ClientID
		filter["status"] = bson.M{"$ne": models.BillDraft}
	case p.IsStaff():
		filter["$or"] = bson.A{bson.M{"created_by": p.UserID}, bson.M{"required_approver_ids": p.UserID}}
	default:
		return nil, workflow.ErrForbidden
	}
	if f.Status != "" {
		if p.Role == models.RoleClient && f.Status == models.BillDraft {
			return []models.Bill{}, nil
		}
		filter["status"] = f.Status
	}
	if f.ClientID != nil && p.Role != models.RoleClient {
		filter["client_id"] = *f.ClientID
	}
	if f.ProjectID != nil {
		filter["project_id"] = *f.ProjectID
	}
	if f.Deleted {
		if !p.IsAdmin() {
			return nil, workflow.ErrForbidden
		}
		filter["deleted_at"] = bson.M{"$ne": nil}
	} else {
		filter = notDeleted(filter)
	}
	return s.find(ctx, filter)
}

func (s *billService) find(ctx context.Context, filter bson.M) ([]models.Bill, error) {
	cursor, err := s.coll().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing bills: %w", err)
	}
	out := []models.Bill{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding bills: %w", err)
	}
	return out, nil
}

func (s *billService) ListOutstanding(ctx context.Context, p authz.Principal) ([]models.Bill, error) {
	if !authz.CanViewAllBills(p) && !authz.CanManageFinance(p) {
		return nil, workflow.ErrForbidden
	}
	return findOutstanding(ctx, s.db, now())
}

// findOutstanding returns collectible bills whose due date has passed.
func findOutstanding(ctx context.Context, database *mongo.Database, at time.Time) ([]models.Bill, error) {
	cursor, err := database.Collection(db.BillsCollection).Find(ctx, notDeleted(bson.M{
		"status":   bson.M{"$in": bson.A{models.BillSubmitted, models.BillApproved}},
		"due_date": bson.M{"$lt": at},
	}), options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error finding outstanding bills: %w", err)
	}
	var bills []models.Bill
	if err := cursor.All(ctx, &bills); err != nil {
		return nil, fmt.Errorf("error decoding outstanding bills: %w", err)
	}
	out := bills[:0]
	for i := range bills {
		if finance.IsOutstanding(&bills[i], at) && finance.IsCollectible(&bills[i]) {
			out = append(out, bills[i])
		}
	}
	return out, nil
}

func (s *billService) Submit(ctx context.Context, p authz.Principal, id primitive.ObjectID, in SubmitInput) (*models.Bill, error) {
	b, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckSubmit(p, b.CreatedBy, b.Status == models.BillDraft); err != nil {
		return nil, err
	}
	if err := workflow.CheckBillTransition(b.Status, models.BillSubmitted); err != nil {
		return nil, err
	}
	creator, err := s.userSvc.FindByID(ctx, b.CreatedBy)
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
	required := len(approvers) > 0
	subject := models.Subject{Kind: models.SubjectInvoice, ID: b.ID}

	err = db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		res, err := s.coll().UpdateOne(sc,
			notDeleted(bson.M{"_id": b.ID, "status": models.BillDraft}),
			bson.M{"$set": bson.M{
				"status":                      models.BillSubmitted,
				"submitted_at":                ts,
				"internal_approval_required":  required,
				"internal_approval_type":      requirement,
				"required_approver_ids":       approverIDs,
				"internal_approvals_complete": false,
				"updated_at":                  ts,
			}})
		if err != nil {
			return fmt.Errorf("error submitting bill %s: %w", b.ID.Hex(), err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: bill is no longer a draft", workflow.ErrInvalidState)
		}
		return s.approvals.CreatePending(sc, subject, approvers)
	})
	if err != nil {
		return nil, err
	}
	s.approvals.NotifyRequested(ctx, p, ApprovalTarget{Subject: subject, Title: "invoice " + b.Number}, approvers)

	b.Status = models.BillSubmitted
	b.SubmittedAt = &ts
	b.InternalApprovalRequired = required
	b.InternalApprovalType = requirement
	b.RequiredApproverIDs = approverIDs
	b.InternalApprovalsComplete = false
	b.UpdatedAt = ts
	return b, nil
}

// transition moves b to status "to" if it is still in its loaded status.
func (s *billService) transition(ctx context.Context, b *models.Bill, to models.BillStatus, set bson.M) (*models.Bill, error) {
	if err := workflow.CheckBillTransition(b.Status, to); err != nil {
		return nil, err
	}
	set["status"] = to
	set["updated_at"] = now()
	var updated models.Bill
	err := s.coll().FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": b.ID, "status": b.Status}),
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: bill changed concurrently", workflow.ErrInvalidState)
		}
		return nil, fmt.Errorf("error updating bill %s: %w", b.ID.Hex(), err)
	}
	return &updated, nil
}

// MarkPaid records payment. When the client came through a finder, the
// finder fee is booked in the same transaction.
func (s *billService) MarkPaid(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error) {
	if !authz.CanManageFinance(p) {
		return nil, workflow.ErrForbidden
	}
	b, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if b.InternalApprovalRequired && !b.InternalApprovalsComplete {
		return nil, fmt.Errorf("%w: internal approvals are not complete", workflow.ErrInvalidState)
	}
	var client models.Client
	if err := s.db.Collection(db.ClientsCollection).FindOne(ctx, bson.M{"_id": b.ClientID}).Decode(&client); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error finding client of bill %s: %w", id.Hex(), err)
	}

	ts := now()
	var paid *models.Bill
	err = db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		var err error
		if paid, err = s.transition(sc, b, models.BillPaid, bson.M{"paid_at": ts}); err != nil {
			return err
		}
		fee := finance.FinderFee(paid.Amount, client.FinderFeePercent)
		if client.FinderID == nil || fee <= 0 {
			return nil
		}
		entry := models.FinancialEntry{
			Base:          models.NewBase(),
			Kind:          models.EntryFinderFee,
			UserID:        *client.FinderID,
			Amount:        fee,
			Currency:      paid.Currency,
			EffectiveDate: ts,
			Notes:         fmt.Sprintf("Finder fee for invoice %s", paid.Number),
			BillID:        &paid.ID,
			CreatedBy:     p.UserID,
			CreatedAt:     ts,
		}
		if _, err := s.db.Collection(db.FinancialEntriesCollection).InsertOne(sc, entry); err != nil {
			return fmt.Errorf("error recording finder fee: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Cancel voids a bill and releases its timesheet entries and charges so they
// can be billed again.
func (s *billService) Cancel(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error) {
	b, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !authz.CanManageFinance(p) && !(b.CreatedBy == p.UserID && b.Status == models.BillDraft) {
		return nil, workflow.ErrForbidden
	}
	var cancelled *models.Bill
	err = db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		var err error
		if cancelled, err = s.transition(sc, b, models.BillCancelled, bson.M{"cancelled_at": now()}); err != nil {
			return err
		}
		return releaseSources(sc, s.db, b.ID)
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func releaseSources(ctx context.Context, database *mongo.Database, billID primitive.ObjectID) error {
	release := bson.M{"$set": bson.M{"billed": false}, "$unset": bson.M{"bill_id": ""}}
	if _, err := database.Collection(db.TimesheetsCollection).UpdateMany(ctx, bson.M{"bill_id": billID}, release); err != nil {
		return fmt.Errorf("error releasing timesheets of bill %s: %w", billID.Hex(), err)
	}
	if _, err := database.Collection(db.ChargesCollection).UpdateMany(ctx, bson.M{"bill_id": billID}, release); err != nil {
		return fmt.Errorf("error releasing charges of bill %s: %w", billID.Hex(), err)
	}
	return nil
}

func (s *billService) WriteOff(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error) {
	if !authz.CanManageFinance(p) {
		return nil, workflow.ErrForbidden
	}
	b, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, b, models.BillWrittenOff, bson.M{"written_off_at": now()})
}

func (s *billService) SoftDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	b, err := s.load(ctx, id, false)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && !(b.CreatedBy == p.UserID && b.Status == models.BillDraft) {
		return workflow.ErrForbidden
	}
	if b.Status == models.BillPaid {
		return fmt.Errorf("%w: paid bills cannot be deleted", workflow.ErrInvalidState)
	}
	res, err := s.coll().UpdateOne(ctx, notDeleted(bson.M{"_id": id}), bson.M{"$set": bson.M{"deleted_at": now()}})
	if err != nil {
		return fmt.Errorf("error deleting bill %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *billService) Restore(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	if !p.IsAdmin() {
		return workflow.ErrForbidden
	}
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"_id": id, "deleted_at": bson.M{"$ne": nil}},
		bson.M{"$set": bson.M{"updated_at": now()}, "$unset": bson.M{"deleted_at": ""}})
	if err != nil {
		return fmt.Errorf("error restoring bill %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *billService) PermanentDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	if !p.IsAdmin() {
		return workflow.ErrForbidden
	}
	b, err := s.load(ctx, id, true)
	if err != nil {
		return err
	}
	if !b.IsDeleted() {
		return fmt.Errorf("%w: bill must be deleted before it can be purged", workflow.ErrInvalidState)
	}
	return db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		if err := releaseSources(sc, s.db, id); err != nil {
			return err
		}
		if _, err := s.db.Collection(db.ApprovalsCollection).DeleteMany(sc, bson.M{"bill_id": id}); err != nil {
			return fmt.Errorf("error deleting approvals of bill %s: %w", id.Hex(), err)
		}
		if _, err := s.db.Collection(db.NotificationsCollection).DeleteMany(sc, bson.M{"subject.kind": models.SubjectInvoice, "subject.id": id}); err != nil {
			return fmt.Errorf("error deleting notifications of bill %s: %w", id.Hex(), err)
		}
		if _, err := s.coll().DeleteOne(sc, bson.M{"_id": id}); err != nil {
			return fmt.Errorf("error purging bill %s: %w", id.Hex(), err)
		}
		return nil
	})
}

func (s *billService) BulkSoftDelete(ctx context.Context, p authz.Principal, ids []primitive.ObjectID) ([]BulkResult, error) {
	return runBulk(ctx, ids, s.cfg.BulkConcurrency, func(ctx context.Context, id primitive.ObjectID) error {
		return s.SoftDelete(ctx, p, id)
	})
}
