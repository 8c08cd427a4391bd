package services

import (
	"context"
	"fmt"
	"time"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Notice is a notification fanned out to several users, optionally with an
// email per recipient.
type Notice struct {
	Recipients []models.User
	Subject    models.Subject
	Event      models.NotificationEvent
	Title      string
	Message    string
	DueDate    *time.Time
	Template   email.Template
	Data       map[string]interface{}
}

type INotificationService interface {
	// Notify stores one notification per recipient and queues their emails.
	// Storage errors are returned; email failures are only logged.
	Notify(ctx context.Context, n Notice) error
	// Email queues a message to someone without an account, such as a
	// client contact. No notification row is stored.
	Email(ctx context.Context, tmpl email.Template, name, address string, data map[string]interface{})
	// Exists reports whether a user already has a notification for the
	// subject, event and due date.
	Exists(ctx context.Context, userID primitive.ObjectID, subject models.Subject, event models.NotificationEvent, dueDate *time.Time) (bool, error)
	ListForUser(ctx context.Context, p authz.Principal, unreadOnly bool, limit int64) ([]models.Notification, error)
	MarkRead(ctx context.Context, p authz.Principal, id primitive.ObjectID) error
	MarkAllRead(ctx context.Context, p authz.Principal) (int64, error)
}

type notificationService struct {
	db     *mongo.Database
	mailer IMailer
	log    zerolog.Logger
}

func NewNotificationService(db *mongo.Database, mailer IMailer, log zerolog.Logger) INotificationService {
	return &notificationService{db: db, mailer: mailer, log: log.With().Str("component", "notifications").Logger()}
}

func (s *notificationService) Notify(ctx context.Context, n Notice) error {
	if len(n.Recipients) == 0 {
		return nil
	}
	created := now()
	docs := make([]interface{}, 0, len(n.Recipients))
	for _, u := range n.Recipients {
		docs = append(docs, models.Notification{
			Base:      models.NewBase(),
			UserID:    u.ID,
			Subject:   n.Subject,
			Event:     n.Event,
			Title:     n.Title,
			Message:   n.Message,
			DueDate:   n.DueDate,
			CreatedAt: created,
		})
	}
	if _, err := s.db.Collection(db.NotificationsCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to store notifications for %s %s: %w", n.Subject.Kind, n.Subject.ID.Hex(), err)
	}

	if n.Template == "" || s.mailer == nil {
		return nil
	}
	for _, u := range n.Recipients {
		s.enqueue(ctx, n.Template, u.Name, u.Email, n.Data)
	}
	return nil
}

func (s *notificationService) Email(ctx context.Context, tmpl email.Template, name, address string, data map[string]interface{}) {
	if s.mailer == nil {
		return
	}
	s.enqueue(ctx, tmpl, name, address, data)
}

func (s *notificationService) enqueue(ctx context.Context, tmpl email.Template, name, address string, extra map[string]interface{}) {
	if address == "" {
		return
	}
	data := map[string]interface{}{"RecipientName": name}
	for k, v := range extra {
		data[k] = v
	}
	if err := s.mailer.Enqueue(ctx, tmpl, []string{address}, data); err != nil {
		s.log.Error().Err(err).
			Str("to", address).
			Str("template", string(tmpl)).
			Msg("failed to enqueue notification email")
	}
}

func (s *notificationService) Exists(ctx context.Context, userID primitive.ObjectID, subject models.Subject, event models.NotificationEvent, dueDate *time.Time) (bool, error) {
	filter := bson.M{
		"user_id":      userID,
		"subject.kind": subject.Kind,
		"subject.id":   subject.ID,
		"event":        event,
	}
	if dueDate != nil {
		filter["due_date"] = *dueDate
	}
	count, err := s.db.Collection(db.NotificationsCollection).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("error checking notification: %w", err)
	}
	return count > 0, nil
}

func (s *notificationService) ListForUser(ctx context.Context, p authz.Principal, unreadOnly bool, limit int64) ([]models.Notification, error) {
	filter := bson.M{"user_id": p.UserID}
	if unreadOnly {
		filter["read"] = false
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := s.db.Collection(db.NotificationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	out := []models.Notification{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding notifications: %w", err)
	}
	return out, nil
}

func (s *notificationService) MarkRead(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	res, err := s.db.Collection(db.NotificationsCollection).UpdateOne(ctx,
		bson.M{"_id": id, "user_id": p.UserID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("error marking notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, p authz.Principal) (int64, error) {
	res, err := s.db.Collection(db.NotificationsCollection).UpdateMany(ctx,
		bson.M{"user_id": p.UserID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("error marking notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}
