package services

import (
	"context"
	"errors"
	"time"

	"greendrake/chambers/internal/email"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// IMailer queues an email for background delivery.
type IMailer interface {
	Enqueue(ctx context.Context, tmpl email.Template, to []string, data map[string]interface{}) error
}

// ISignatureQueue queues a client signature image for normalization.
type ISignatureQueue interface {
	EnqueueSignature(ctx context.Context, proposalID primitive.ObjectID, key string) error
}

func now() time.Time {
	return time.Now().UTC()
}

// notDeleted matches documents whose deleted_at is missing or null.
func notDeleted(filter bson.M) bson.M {
	filter["deleted_at"] = nil
	return filter
}

func ptr[T any](v T) *T {
	return &v
}

func uniqueIDs(ids ...*primitive.ObjectID) []primitive.ObjectID {
	seen := map[primitive.ObjectID]bool{}
	var out []primitive.ObjectID
	for _, id := range ids {
		if id == nil || id.IsZero() || seen[*id] {
			continue
		}
		seen[*id] = true
		out = append(out, *id)
	}
	return out
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func errIsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
