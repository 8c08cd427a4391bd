package services

import (
	"context"

	"greendrake/chambers/internal/db"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// BulkResult is the outcome of one item of a bulk operation.
type BulkResult struct {
	ID    primitive.ObjectID `json:"id"`
	OK    bool               `json:"ok"`
	Error string             `json:"error,omitempty"`
}

// runBulk applies fn to every id with bounded concurrency. Item failures are
// recorded in the results; a connection failure stops the whole batch and
// is returned as the error.
func runBulk(ctx context.Context, ids []primitive.ObjectID, limit int, fn func(ctx context.Context, id primitive.ObjectID) error) ([]BulkResult, error) {
	results := make([]BulkResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			err := fn(gctx, id)
			if db.IsConnectionError(err) {
				return err
			}
			results[i] = BulkResult{ID: id, OK: err == nil}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
