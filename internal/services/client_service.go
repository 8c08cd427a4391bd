package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/workflow"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ClientInput struct {
	Name             string
	Email            string
	Phone            string
	ManagerID        *primitive.ObjectID
	FinderID         *primitive.ObjectID
	FinderFeePercent float64
}

type LeadInput struct {
	Name    string
	Email   string
	Company string
}

// IClientService manages clients and the leads that turn into them.
type IClientService interface {
	Create(ctx context.Context, p authz.Principal, in ClientInput) (*models.Client, error)
	FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Client, error)
	List(ctx context.Context, p authz.Principal) ([]models.Client, error)
	Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ClientInput) (*models.Client, error)
	SoftDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error

	CreateLead(ctx context.Context, p authz.Principal, in LeadInput) (*models.Lead, error)
	ListLeads(ctx context.Context, p authz.Principal, status models.LeadStatus) ([]models.Lead, error)
	UpdateLeadStatus(ctx context.Context, p authz.Principal, id primitive.ObjectID, status models.LeadStatus) (*models.Lead, error)
	ConvertLead(ctx context.Context, p authz.Principal, id primitive.ObjectID, managerID *primitive.ObjectID) (*models.Client, error)
}

type clientService struct {
	db *mongo.Database
}

func NewClientService(db *mongo.Database) IClientService {
	return &clientService{db: db}
}

func validateClient(in ClientInput) error {
	details := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		details["name"] = "required"
	}
	if in.FinderFeePercent < 0 || in.FinderFeePercent > 100 {
		details["finder_fee_percent"] = "must be between 0 and 100"
	}
	if in.FinderFeePercent > 0 && in.FinderID == nil {
		details["finder_id"] = "required when a finder fee is set"
	}
	if len(details) > 0 {
		return invalid("invalid client", details)
	}
	return nil
}

func (s *clientService) Create(ctx context.Context, p authz.Principal, in ClientInput) (*models.Client, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	if err := validateClient(in); err != nil {
		return nil, err
	}
	ts := now()
	c := &models.Client{
		Base:             models.NewBase(),
		Name:             strings.TrimSpace(in.Name),
		Email:            normalizeEmail(in.Email),
		Phone:            in.Phone,
		ManagerID:        in.ManagerID,
		FinderID:         in.FinderID,
		FinderFeePercent: in.FinderFeePercent,
		CreatedBy:        p.UserID,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	if _, err := s.db.Collection(db.ClientsCollection).InsertOne(ctx, c); err != nil {
		return nil, fmt.Errorf("error creating client: %w", err)
	}
	return c, nil
}

func (s *clientService) FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Client, error) {
	if p.Role == models.RoleClient {
		if p.ClientID == nil || *p.ClientID != id {
			return nil, workflow.ErrForbidden
		}
	} else if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	var c models.Client
	err := s.db.Collection(db.ClientsCollection).FindOne(ctx, notDeleted(bson.M{"_id": id})).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding client %s: %w", id.Hex(), err)
	}
	return &c, nil
}

func (s *clientService) List(ctx context.Context, p authz.Principal) ([]models.Client, error) {
	filter := notDeleted(bson.M{})
	switch {
	case p.Role == models.RoleClient && p.ClientID != nil:
		filter["_id"] = *p.ClientID
	case !p.IsStaff():
		return nil, workflow.ErrForbidden
	}
	cursor, err := s.db.Collection(db.ClientsCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing clients: %w", err)
	}
	out := []models.Client{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding clients: %w", err)
	}
	return out, nil
}

func (s *clientService) Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ClientInput) (*models.Client, error) {
	if !p.IsAdmin() && !p.IsManager() {
		return nil, workflow.ErrForbidden
	}
	if err := validateClient(in); err != nil {
		return nil, err
	}
	var c models.Client
	err := s.db.Collection(db.ClientsCollection).FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id}),
		bson.M{"$set": bson.M{
			"name":               strings.TrimSpace(in.Name),
			"email":              normalizeEmail(in.Email),
			"phone":              in.Phone,
			"manager_id":         in.ManagerID,
			"finder_id":          in.FinderID,
			"finder_fee_percent": in.FinderFeePercent,
			"updated_at":         now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error updating client %s: %w", id.Hex(), err)
	}
	return &c, nil
}

func (s *clientService) SoftDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	if !p.IsAdmin() {
		return workflow.ErrForbidden
	}
	res, err := s.db.Collection(db.ClientsCollection).UpdateOne(ctx,
		notDeleted(bson.M{"_id": id}),
		bson.M{"$set": bson.M{"deleted_at": now()}})
	if err != nil {
		return fmt.Errorf("error deleting client %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *clientService) CreateLead(ctx context.Context, p authz.Principal, in LeadInput) (*models.Lead, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("invalid lead", map[string]string{"name": "required"})
	}
	ts := now()
	l := &models.Lead{
		Base:      models.NewBase(),
		Name:      strings.TrimSpace(in.Name),
		Email:     normalizeEmail(in.Email),
		Company:   in.Company,
		Status:    models.LeadStatusNew,
		CreatedBy: p.UserID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if _, err := s.db.Collection(db.LeadsCollection).InsertOne(ctx, l); err != nil {
		return nil, fmt.Errorf("error creating lead: %w", err)
	}
	return l, nil
}

func (s *clientService) ListLeads(ctx context.Context, p authz.Principal, status models.LeadStatus) ([]models.Lead, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	filter := notDeleted(bson.M{})
	if status != "" {
		filter["status"] = status
	}
	cursor, err := s.db.Collection(db.LeadsCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing leads: %w", err)
	}
	out := []models.Lead{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding leads: %w", err)
	}
	return out, nil
}

func (s *clientService) UpdateLeadStatus(ctx context.Context, p authz.Principal, id primitive.ObjectID, status models.LeadStatus) (*models.Lead, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	switch status {
	case models.LeadStatusNew, models.LeadStatusContacted, models.LeadStatusQualified, models.LeadStatusLost:
	case models.LeadStatusConverted:
		return nil, invalid("invalid lead status", map[string]string{"status": "use the convert operation"})
	default:
		return nil, invalid("invalid lead status", map[string]string{"status": "unknown status"})
	}
	var l models.Lead
	err := s.db.Collection(db.LeadsCollection).FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "status": bson.M{"$ne": models.LeadStatusConverted}}),
		bson.M{"$set": bson.M{"status": status, "updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&l)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error updating lead %s: %w", id.Hex(), err)
	}
	return &l, nil
}

// ConvertLead creates a client from a lead and links them. Leads already
// converted or lost cannot be converted.
func (s *clientService) ConvertLead(ctx context.Context, p authz.Principal, id primitive.ObjectID, managerID *primitive.ObjectID) (*models.Client, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	var client *models.Client
	err := db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error {
		var lead models.Lead
		if err := s.db.Collection(db.LeadsCollection).FindOne(sc, notDeleted(bson.M{"_id": id})).Decode(&lead); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return mongo.ErrNoDocuments
			}
			return fmt.Errorf("error finding lead %s: %w", id.Hex(), err)
		}
		if lead.Status == models.LeadStatusConverted || lead.Status == models.LeadStatusLost {
			return fmt.Errorf("%w: lead is %s", workflow.ErrInvalidState, lead.Status)
		}
		name := lead.Name
		if lead.Company != "" {
			name = lead.Company
		}
		ts := now()
		client = &models.Client{
			Base:      models.NewBase(),
			Name:      name,
			Email:     lead.Email,
			ManagerID: managerID,
			CreatedBy: p.UserID,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		if _, err := s.db.Collection(db.ClientsCollection).InsertOne(sc, client); err != nil {
			return fmt.Errorf("error creating client from lead: %w", err)
		}
		_, err := s.db.Collection(db.LeadsCollection).UpdateOne(sc, bson.M{"_id": id}, bson.M{"$set": bson.M{
			"status":              models.LeadStatusConverted,
			"converted_client_id": client.ID,
			"updated_at":          ts,
		}})
		if err != nil {
			return fmt.Errorf("error marking lead converted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
