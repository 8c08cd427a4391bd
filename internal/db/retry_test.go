package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func duplicateKeyError(key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: test.bills index: number_1 dup key: { : \"%s\" }", key),
	}}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetries(func() error { calls++; return nil }, 3, IsMongoDuplicateKeyError)
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetries_FailureNonDuplicateKey(t *testing.T) {
	calls := 0
	want := errors.New("some other error")
	err := WithRetries(func() error { calls++; return want }, 3, IsMongoDuplicateKeyError)
	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1, calls)
}

func TestWithRetries_SucceedsAfterCollision(t *testing.T) {
	calls := 0
	err := WithRetries(func() error {
		calls++
		if calls < 3 {
			return duplicateKeyError(fmt.Sprintf("B-%d", calls))
		}
		return nil
	}, 3, IsMongoDuplicateKeyError)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	calls := 0
	err := WithRetries(func() error { calls++; return duplicateKeyError("B-1") }, 2, IsMongoDuplicateKeyError)
	assert.True(t, IsMongoDuplicateKeyError(err))
	assert.Equal(t, 3, calls)
}

func TestIsMongoDuplicateKeyError(t *testing.T) {
	assert.True(t, IsMongoDuplicateKeyError(duplicateKeyError("x")))
	assert.True(t, IsMongoDuplicateKeyError(fmt.Errorf("insert: %w", duplicateKeyError("x"))))
	assert.True(t, IsMongoDuplicateKeyError(mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Code: 11000}}},
	}))
	assert.False(t, IsMongoDuplicateKeyError(mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 121}}}))
	assert.False(t, IsMongoDuplicateKeyError(errors.New("boom")))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.True(t, IsConnectionError(context.DeadlineExceeded))
	assert.True(t, IsConnectionError(fmt.Errorf("find: %w", mongo.ErrClientDisconnected)))
	assert.False(t, IsConnectionError(mongo.ErrNoDocuments))
	assert.False(t, IsConnectionError(duplicateKeyError("x")))
}
