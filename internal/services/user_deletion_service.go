package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// IUserDeletionService runs the two-person approval for removing a user.
type IUserDeletionService interface {
	Request(ctx context.Context, p authz.Principal, targetID primitive.ObjectID, reason string) (*models.UserDeletionRequest, error)
	Approve(ctx context.Context, p authz.Principal, requestID primitive.ObjectID) (*models.UserDeletionRequest, error)
	Reject(ctx context.Context, p authz.Principal, requestID primitive.ObjectID) (*models.UserDeletionRequest, error)
	FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.UserDeletionRequest, error)
	List(ctx context.Context, p authz.Principal, status models.DeletionStatus) ([]models.UserDeletionRequest, error)
	Census(ctx context.Context, userID primitive.ObjectID) (models.ReferenceCensus, error)
}

type userDeletionService struct {
	db            *mongo.Database
	userSvc       IUserService
	notifications INotificationService
	log           zerolog.Logger
}

func NewUserDeletionService(db *mongo.Database, userSvc IUserService, notifications INotificationService, log zerolog.Logger) IUserDeletionService {
	return &userDeletionService{
		db:            db,
		userSvc:       userSvc,
		notifications: notifications,
		log:           log.With().Str("component", "user_deletion").Logger(),
	}
}

func (s *userDeletionService) Request(ctx context.Context, p authz.Principal, targetID primitive.ObjectID, reason string) (*models.UserDeletionRequest, error) {
	if err := workflow.CheckDeletionRequest(p, targetID); err != nil {
		return nil, err
	}
	target, err := s.userSvc.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	coll := s.db.Collection(db.UserDeletionsCollection)
	pending, err := coll.CountDocuments(ctx, bson.M{"target_user_id": targetID, "status": models.DeletionPending})
	if err != nil {
		return nil, fmt.Errorf("error checking pending deletion for %s: %w", targetID.Hex(), err)
	}
	if pending > 0 {
		return nil, ErrDeletionPending
	}

	// Counted again at quorum; references may be cleared in between.
	census, err := s.Census(ctx, targetID)
	if err != nil {
		return nil, err
	}

	ts := now()
	req := &models.UserDeletionRequest{
		Base:         models.NewBase(),
		TargetUserID: targetID,
		RequestedBy:  p.UserID,
		Reason:       reason,
		ApprovedBy:   []primitive.ObjectID{},
		Status:       models.DeletionPending,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if census.Blocking() {
		req.Blocking = &census
	}
	if _, err := coll.InsertOne(ctx, req); err != nil {
		return nil, fmt.Errorf("error creating deletion request: %w", err)
	}

	s.notifyAdmins(ctx, p, target, req)
	return req, nil
}

// notifyAdmins tells every admin other than the requester and the target.
func (s *userDeletionService) notifyAdmins(ctx context.Context, p authz.Principal, target *models.User, req *models.UserDeletionRequest) {
	admins, err := s.userSvc.FindByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load admins for deletion notice")
		return
	}
	blocking := ""
	if req.Blocking != nil {
		blocking = formatCensus(req.Blocking.Details())
	}
	requesterName := ""
	recipients := make([]models.User, 0, len(admins))
	for _, a := range admins {
		if a.ID == p.UserID {
			requesterName = a.Name
			continue
		}
		if a.ID != target.ID {
			recipients = append(recipients, a)
		}
	}
	err = s.notifications.Notify(ctx, Notice{
		Recipients: recipients,
		Subject:    models.Subject{Kind: models.SubjectDeletionRequest, ID: req.ID},
		Event:      models.EventDeletionRequested,
		Title:      "User deletion requested",
		Message:    fmt.Sprintf("Deletion of %s needs %d approvals", target.Name, workflow.DeletionQuorum),
		Template:   email.TemplateDeletionRequested,
		Data: map[string]interface{}{
			"RequesterName": requesterName,
			"TargetName":    target.Name,
			"Reason":        req.Reason,
			"Blocking":      blocking,
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("request_id", req.ID.Hex()).Msg("failed to notify admins of deletion request")
	}
}

func (s *userDeletionService) FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.UserDeletionRequest, error) {
	var req models.UserDeletionRequest
	err := s.db.Collection(db.UserDeletionsCollection).FindOne(ctx, bson.M{"_id": requestID}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding deletion request %s: %w", requestID.Hex(), err)
	}
	return &req, nil
}

func (s *userDeletionService) Approve(ctx context.Context, p authz.Principal, requestID primitive.ObjectID) (*models.UserDeletionRequest, error) {
	req, err := s.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	approvers, quorum, err := workflow.AddDeletionApproval(req, p)
	if err != nil {
		return nil, err
	}

	coll := s.db.Collection(db.UserDeletionsCollection)
	// The guard pins the approver count that was evaluated so two
	// concurrent approvals cannot both count as the second one.
	guard := bson.M{
		"_id":         req.ID,
		"status":      models.DeletionPending,
		"approved_by": bson.M{"$size": len(req.ApprovedBy), "$nin": bson.A{p.UserID}},
	}

	if !quorum {
		res, err := coll.UpdateOne(ctx, guard, bson.M{"$set": bson.M{"approved_by": approvers, "updated_at": now()}})
		if err != nil {
			return nil, fmt.Errorf("error recording approval: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, fmt.Errorf("%w: request changed concurrently", workflow.ErrAlreadyDecided)
		}
		req.ApprovedBy = approvers
		return req, nil
	}

	census, err := s.Census(ctx, req.TargetUserID)
	if err != nil {
		return nil, err
	}
	status := workflow.ResolveDeletion(census)
	ts := now()

	if status == models.DeletionRejected {
		set := bson.M{"status": status, "approved_by": approvers, "blocking": census, "updated_at": ts}
		res, err := coll.UpdateOne(ctx, guard, bson.M{"$set": set})
		if err != nil {
			return nil, fmt.Errorf("error rejecting deletion request: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, fmt.Errorf("%w: request changed concurrently", workflow.ErrAlreadyDecided)
		}
		s.log.Info().Str("request_id", req.ID.Hex()).Interface("blocking", census.Details()).Msg("user deletion blocked by references")
		req.Status, req.ApprovedBy, req.Blocking, req.UpdatedAt = status, approvers, &census, ts
		return req, nil
	}

	err = db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		res, err := coll.UpdateOne(sc, guard, bson.M{"$set": bson.M{
			"status":       models.DeletionCompleted,
			"approved_by":  approvers,
			"blocking":     census,
			"updated_at":   ts,
			"completed_at": ts,
		}})
		if err != nil {
			return fmt.Errorf("error completing deletion request: %w", err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: request changed concurrently", workflow.ErrAlreadyDecided)
		}
		if _, err := s.db.Collection(db.UsersCollection).DeleteOne(sc, bson.M{"_id": req.TargetUserID}); err != nil {
			return fmt.Errorf("error deleting user %s: %w", req.TargetUserID.Hex(), err)
		}
		if _, err := s.db.Collection(db.NotificationsCollection).DeleteMany(sc, bson.M{"user_id": req.TargetUserID}); err != nil {
			return fmt.Errorf("error deleting notifications of %s: %w", req.TargetUserID.Hex(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("request_id", req.ID.Hex()).Str("user_id", req.TargetUserID.Hex()).Msg("user deleted")
	req.Status, req.ApprovedBy, req.Blocking, req.UpdatedAt, req.CompletedAt = models.DeletionCompleted, approvers, &census, ts, &ts
	return req, nil
}

func (s *userDeletionService) Reject(ctx context.Context, p authz.Principal, requestID primitive.ObjectID) (*models.UserDeletionRequest, error) {
	if !p.IsAdmin() {
		return nil, workflow.ErrForbidden
	}
	var req models.UserDeletionRequest
	err := s.db.Collection(db.UserDeletionsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": requestID, "status": models.DeletionPending},
		bson.M{"$set": bson.M{"status": models.DeletionRejected, "rejected_by": p.UserID, "updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, findErr := s.FindByID(ctx, requestID); findErr == nil {
				return nil, fmt.Errorf("%w: request is no longer pending", workflow.ErrAlreadyDecided)
			}
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error rejecting deletion request: %w", err)
	}
	return &req, nil
}

func (s *userDeletionService) List(ctx context.Context, p authz.Principal, status models.DeletionStatus) ([]models.UserDeletionRequest, error) {
	if !p.IsAdmin() {
		return nil, workflow.ErrForbidden
	}
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	cursor, err := s.db.Collection(db.UserDeletionsCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing deletion requests: %w", err)
	}
	out := []models.UserDeletionRequest{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding deletion requests: %w", err)
	}
	return out, nil
}

// formatCensus renders non-zero counts as "bills: 2, todos: 1".
func formatCensus(details map[string]int64) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, details[k])
	}
	return strings.Join(parts, ", ")
}

// Census counts every record that still references the user, soft-deleted
// ones included.
func (s *userDeletionService) Census(ctx context.Context, userID primitive.ObjectID) (models.ReferenceCensus, error) {
	var c models.ReferenceCensus
	counts := []struct {
		dst    *int64
		coll   string
		filter bson.M
	}{
		{&c.Proposals, db.ProposalsCollection, bson.M{"created_by": userID}},
		{&c.Bills, db.BillsCollection, bson.M{"created_by": userID}},
		{&c.Clients, db.ClientsCollection, bson.M{"$or": bson.A{
			bson.M{"created_by": userID}, bson.M{"manager_id": userID}, bson.M{"finder_id": userID},
		}}},
		{&c.Timesheets, db.TimesheetsCollection, bson.M{"user_id": userID}},
		{&c.Todos, db.TodosCollection, bson.M{"$or": bson.A{
			bson.M{"assignee_id": userID}, bson.M{"created_by": userID},
		}}},
		{&c.Projects, db.ProjectsCollection, bson.M{"$or": bson.A{
			bson.M{"created_by": userID}, bson.M{"manager_id": userID},
		}}},
	}
	for _, q := range counts {
		n, err := s.db.Collection(q.coll).CountDocuments(ctx, q.filter)
		if err != nil {
			return c, fmt.Errorf("error counting %s for user %s: %w", q.coll, userID.Hex(), err)
		}
		*q.dst = n
	}
	return c, nil
}
