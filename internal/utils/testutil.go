package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var testMongoURI string

func init() {
	loadTestEnv()
}

// loadTestEnv loads the .env file from the project root and reads MONGO_URI_TEST.
func loadTestEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		_ = godotenv.Load()
	}
	testMongoURI = os.Getenv("MONGO_URI_TEST")
}

// SetupTestDB connects to the test MongoDB and drops the given collections.
// The test is skipped when MONGO_URI_TEST is unset or the server is unreachable.
// The database is dropped when the test finishes.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	if testMongoURI == "" {
		t.Skip("MONGO_URI_TEST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(testMongoURI).SetServerSelectionTimeout(3*time.Second))
	require.NoError(t, err, "Failed to connect to MongoDB")
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("MongoDB at MONGO_URI_TEST unreachable: %v", err)
	}
	db := client.Database(dbName)
	for _, collection := range collections {
		_ = db.Collection(collection).Drop(context.Background())
	}

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

// GetTestMongoURI returns the test MongoDB URI for direct use if needed
func GetTestMongoURI() string {
	return testMongoURI
}
