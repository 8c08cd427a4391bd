package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// WithTransaction runs fn inside a MongoDB session transaction. The context
// passed to fn must be used for every operation that belongs to it.
func WithTransaction(ctx context.Context, db *mongo.Database, fn func(sc mongo.SessionContext) error) error {
	session, err := db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if isTransactionUnsupported(err) {
		// Standalone servers (local development, tests) cannot run
		// transactions; the same steps run sequentially instead.
		return mongo.WithSession(ctx, session, fn)
	}
	return err
}

func isTransactionUnsupported(err error) bool {
	var ce mongo.CommandError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == 20 || strings.Contains(ce.Message, "Transaction numbers are only allowed")
}

// IsConnectionError reports whether err is an infrastructure failure
// (server unreachable, timeouts, network errors) rather than a rejected write.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var sse topology.ServerSelectionError
	return errors.As(err, &sse)
}
