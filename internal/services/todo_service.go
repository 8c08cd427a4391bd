package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

type TodoInput struct {
	Title       string
	Description string
	AssigneeID  primitive.ObjectID
	ProjectID   *primitive.ObjectID
	DueDate     *time.Time
}

type ITodoService interface {
	Create(ctx context.Context, p authz.Principal, in TodoInput) (*models.Todo, error)
	List(ctx context.Context, p authz.Principal, includeCompleted bool) ([]models.Todo, error)
	Complete(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Todo, error)
	Delete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
}

type todoService struct {
	db            *mongo.Database
	userSvc       IUserService
	notifications INotificationService
	log           zerolog.Logger
}

func NewTodoService(db *mongo.Database, userSvc IUserService, notifications INotificationService, log zerolog.Logger) ITodoService {
	return &todoService{db: db, userSvc: userSvc, notifications: notifications, log: log}
}

func (s *todoService) coll() *mongo.Collection {
	return s.db.Collection(db.TodosCollection)
}

func (s *todoService) Create(ctx context.Context, p authz.Principal, in TodoInput) (*models.Todo, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("invalid todo", map[string]string{"title": "required"})
	}
	assigneeID := in.AssigneeID
	if assigneeID.IsZero() {
		assigneeID = p.UserID
	}
	assignee, err := s.userSvc.FindByID(ctx, assigneeID)
	if err != nil {
		if errIsNotFound(err) {
			return nil, invalid("invalid todo", map[string]string{"assignee_id": "unknown user"})
		}
		return nil, err
	}
	if !assignee.Role.IsInternal() {
		return nil, invalid("invalid todo", map[string]string{"assignee_id": "must be a staff member"})
	}

	todo := &models.Todo{
		Base:        models.NewBase(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		AssigneeID:  assignee.ID,
		CreatedBy:   p.UserID,
		ProjectID:   in.ProjectID,
		DueDate:     in.DueDate,
		CreatedAt:   now(),
	}
	if _, err := s.coll().InsertOne(ctx, todo); err != nil {
		return nil, fmt.Errorf("error creating todo: %w", err)
	}

	if assignee.ID != p.UserID {
		data := map[string]interface{}{"Title": todo.Title}
		if creator, err := s.userSvc.FindByID(ctx, p.UserID); err == nil {
			data["CreatorName"] = creator.Name
		}
		if todo.DueDate != nil {
			data["DueDate"] = formatDate(*todo.DueDate)
		}
		if err := s.notifications.Notify(ctx, Notice{
			Recipients: []models.User{*assignee},
			Subject:    models.Subject{Kind: models.SubjectTodo, ID: todo.ID},
			Event:      models.EventTodoAssigned,
			Title:      "New task assigned",
			Message:    todo.Title,
			DueDate:    todo.DueDate,
			Template:   email.TemplateTodoAssigned,
			Data:       data,
		}); err != nil {
			s.log.Error().Err(err).Str("todo_id", todo.ID.Hex()).Msg("failed to notify assignee")
		}
	}
	return todo, nil
}

func (s *todoService) List(ctx context.Context, p authz.Principal, includeCompleted bool) ([]models.Todo, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	filter := notDeleted(bson.M{"$or": bson.A{bson.M{"assignee_id": p.UserID}, bson.M{"created_by": p.UserID}}})
	if !includeCompleted {
		filter["completed"] = false
	}
	cursor, err := s.coll().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing todos: %w", err)
	}
	out := []models.Todo{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding todos: %w", err)
	}
	return out, nil
}

func (s *todoService) Complete(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Todo, error) {
	ts := now()
	var updated models.Todo
	err := s.coll().FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "$or": bson.A{bson.M{"assignee_id": p.UserID}, bson.M{"created_by": p.UserID}}}),
		bson.M{"$set": bson.M{"completed": true, "completed_at": ts}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error completing todo %s: %w", id.Hex(), err)
	}
	return &updated, nil
}

func (s *todoService) Delete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	filter := notDeleted(bson.M{"_id": id})
	if !p.IsAdmin() {
		filter["created_by"] = p.UserID
	}
	res, err := s.coll().UpdateOne(ctx, filter, bson.M{"$set": bson.M{"deleted_at": now()}})
	if err != nil {
		return fmt.Errorf("error deleting todo %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
