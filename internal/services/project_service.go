package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/finance"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/workflow"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProjectInput struct {
	Name       string
	ClientID   primitive.ObjectID
	ManagerID  *primitive.ObjectID
	Milestones []models.Milestone
}

type ProjectUpdate struct {
	Name       *string
	ManagerID  *primitive.ObjectID
	Status     *models.ProjectStatus
	Milestones *[]models.Milestone
}

type TimesheetInput struct {
	UserID      *primitive.ObjectID
	Date        time.Time
	Hours       float64
	Rate        *float64
	Description string
	Billable    bool
}

type ChargeInput struct {
	Description string
	Amount      float64
}

// UnbilledSummary is the work on a project not yet included in any bill.
type UnbilledSummary struct {
	ProjectID primitive.ObjectID `json:"project_id"`
	Hours     float64            `json:"hours"`
	Entries   int                `json:"entries"`
	Charges   int                `json:"charges"`
	Amount    float64            `json:"amount"`
}

type IProjectService interface {
	Create(ctx context.Context, p authz.Principal, in ProjectInput) (*models.Project, error)
	FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Project, error)
	List(ctx context.Context, p authz.Principal, clientID *primitive.ObjectID) ([]models.Project, error)
	Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ProjectUpdate) (*models.Project, error)

	LogTime(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in TimesheetInput) (*models.TimesheetEntry, error)
	ListTimesheets(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) ([]models.TimesheetEntry, error)
	AddCharge(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in ChargeInput) (*models.ProjectCharge, error)
	ListCharges(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) ([]models.ProjectCharge, error)
	Unbilled(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) (*UnbilledSummary, error)
}

type projectService struct {
	db *mongo.Database
}

func NewProjectService(db *mongo.Database) IProjectService {
	return &projectService{db: db}
}

func (s *projectService) coll() *mongo.Collection {
	return s.db.Collection(db.ProjectsCollection)
}

func validateMilestones(ms []models.Milestone, details map[string]string) {
	for i, m := range ms {
		if strings.TrimSpace(m.Name) == "" {
			details[fmt.Sprintf("milestones[%d].name", i)] = "required"
		}
		if m.DueDate.IsZero() {
			details[fmt.Sprintf("milestones[%d].due_date", i)] = "required"
		}
	}
}

func (s *projectService) Create(ctx context.Context, p authz.Principal, in ProjectInput) (*models.Project, error) {
	if !p.HasRole(models.RoleAdmin, models.RoleManager) {
		return nil, workflow.ErrForbidden
	}
	details := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		details["name"] = "required"
	}
	if in.ClientID.IsZero() {
		details["client_id"] = "required"
	}
	validateMilestones(in.Milestones, details)
	if len(details) > 0 {
		return nil, invalid("invalid project", details)
	}
	ts := now()
	project := &models.Project{
		Base:       models.NewBase(),
		Name:       strings.TrimSpace(in.Name),
		ClientID:   in.ClientID,
		ManagerID:  in.ManagerID,
		Status:     models.ProjectActive,
		Milestones: in.Milestones,
		CreatedBy:  p.UserID,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if _, err := s.coll().InsertOne(ctx, project); err != nil {
		return nil, fmt.Errorf("error creating project: %w", err)
	}
	return project, nil
}

func (s *projectService) FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Project, error) {
	var project models.Project
	if err := s.coll().FindOne(ctx, notDeleted(bson.M{"_id": id})).Decode(&project); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding project %s: %w", id.Hex(), err)
	}
	if p.Role == models.RoleClient {
		if p.ClientID == nil || *p.ClientID != project.ClientID {
			return nil, workflow.ErrForbidden
		}
	} else if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	return &project, nil
}

func (s *projectService) List(ctx context.Context, p authz.Principal, clientID *primitive.ObjectID) ([]models.Project, error) {
	filter := notDeleted(bson.M{})
	switch {
	case p.Role == models.RoleClient && p.ClientID != nil:
		filter["client_id"] = *p.ClientID
	case p.IsStaff():
		if clientID != nil {
			filter["client_id"] = *clientID
		}
	default:
		return nil, workflow.ErrForbidden
	}
	cursor, err := s.coll().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing projects: %w", err)
	}
	out := []models.Project{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding projects: %w", err)
	}
	return out, nil
}

func (s *projectService) Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ProjectUpdate) (*models.Project, error) {
	project, err := s.FindByID(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !(project.ManagerID != nil && *project.ManagerID == p.UserID) && project.CreatedBy != p.UserID {
		return nil, workflow.ErrForbidden
	}
	set := bson.M{"updated_at": now()}
	details := map[string]string{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			details["name"] = "required"
		}
		set["name"] = strings.TrimSpace(*in.Name)
	}
	if in.ManagerID != nil {
		set["manager_id"] = *in.ManagerID
	}
	if in.Status != nil {
		switch *in.Status {
		case models.ProjectActive, models.ProjectOnHold, models.ProjectCompleted:
			set["status"] = *in.Status
		default:
			details["status"] = "unknown status"
		}
	}
	if in.Milestones != nil {
		validateMilestones(*in.Milestones, details)
		set["milestones"] = *in.Milestones
	}
	if len(details) > 0 {
		return nil, invalid("invalid project", details)
	}
	var updated models.Project
	err = s.coll().FindOneAndUpdate(ctx, notDeleted(bson.M{"_id": id}), bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("error updating project %s: %w", id.Hex(), err)
	}
	return &updated, nil
}

func (s *projectService) staffProject(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Project, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	return s.FindByID(ctx, p, id)
}

func (s *projectService) LogTime(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in TimesheetInput) (*models.TimesheetEntry, error) {
	project, err := s.staffProject(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == models.ProjectCompleted {
		return nil, fmt.Errorf("%w: project is completed", workflow.ErrInvalidState)
	}
	userID := p.UserID
	if in.UserID != nil && *in.UserID != p.UserID {
		if !p.HasRole(models.RoleAdmin, models.RoleManager) {
			return nil, workflow.ErrForbidden
		}
		userID = *in.UserID
	}
	details := map[string]string{}
	if in.Hours <= 0 || in.Hours > 24 {
		details["hours"] = "must be between 0 and 24"
	}
	if in.Rate != nil && *in.Rate < 0 {
		details["rate"] = "must not be negative"
	}
	if in.Date.IsZero() {
		details["date"] = "required"
	}
	if len(details) > 0 {
		return nil, invalid("invalid timesheet entry", details)
	}
	entry := &models.TimesheetEntry{
		Base:        models.NewBase(),
		ProjectID:   project.ID,
		UserID:      userID,
		Date:        in.Date.UTC(),
		Hours:       in.Hours,
		Rate:        in.Rate,
		Description: in.Description,
		Billable:    in.Billable,
		CreatedAt:   now(),
	}
	if _, err := s.db.Collection(db.TimesheetsCollection).InsertOne(ctx, entry); err != nil {
		return nil, fmt.Errorf("error logging time: %w", err)
	}
	return entry, nil
}

func (s *projectService) ListTimesheets(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) ([]models.TimesheetEntry, error) {
	if _, err := s.staffProject(ctx, p, projectID); err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(db.TimesheetsCollection).Find(ctx, bson.M{"project_id": projectID},
		options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing timesheets: %w", err)
	}
	out := []models.TimesheetEntry{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding timesheets: %w", err)
	}
	return out, nil
}

func (s *projectService) AddCharge(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in ChargeInput) (*models.ProjectCharge, error) {
	project, err := s.staffProject(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	details := map[string]string{}
	if strings.TrimSpace(in.Description) == "" {
		details["description"] = "required"
	}
	if in.Amount <= 0 {
		details["amount"] = "must be positive"
	}
	if len(details) > 0 {
		return nil, invalid("invalid charge", details)
	}
	charge := &models.ProjectCharge{
		Base:        models.NewBase(),
		ProjectID:   project.ID,
		Description: strings.TrimSpace(in.Description),
		Amount:      finance.Round(in.Amount),
		CreatedBy:   p.UserID,
		CreatedAt:   now(),
	}
	if _, err := s.db.Collection(db.ChargesCollection).InsertOne(ctx, charge); err != nil {
		return nil, fmt.Errorf("error adding charge: %w", err)
	}
	return charge, nil
}

func (s *projectService) ListCharges(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) ([]models.ProjectCharge, error) {
	if _, err := s.staffProject(ctx, p, projectID); err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(db.ChargesCollection).Find(ctx, bson.M{"project_id": projectID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing charges: %w", err)
	}
	out := []models.ProjectCharge{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding charges: %w", err)
	}
	return out, nil
}

func (s *projectService) Unbilled(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) (*UnbilledSummary, error) {
	if _, err := s.staffProject(ctx, p, projectID); err != nil {
		return nil, err
	}
	entries, charges, err := loadUnbilled(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	var hours float64
	for _, e := range entries {
		hours += e.Hours
	}
	return &UnbilledSummary{
		ProjectID: projectID,
		Hours:     finance.Round(hours),
		Entries:   len(entries),
		Charges:   len(charges),
		Amount:    finance.Unbilled(entries, charges),
	}, nil
}
