// Package testutil provides helpers for tests: a disposable MongoDB database
// and request builders for signed-in handlers.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratasocial/internal/app/system/indexes"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	// DefaultTestDBURI is used when STRATASOCIAL_TEST_MONGO_URI is unset.
	DefaultTestDBURI = "mongodb://localhost:27017"
	// TestDBName prefixes every per-test database.
	TestDBName = "stratasocial_test"
)

var (
	clientOnce sync.Once
	client     *mongo.Client
	clientErr  error
)

func testDBURI() string {
	if uri := os.Getenv("STRATASOCIAL_TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return DefaultTestDBURI
}

// getClient returns a shared client, connected and pinged once per process.
func getClient() (*mongo.Client, error) {
	clientOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		clientOpts := options.Client().
			ApplyURI(testDBURI()).
			SetMaxPoolSize(100).
			SetMinPoolSize(2).
			SetMaxConnIdleTime(30 * time.Second).
			SetConnectTimeout(5 * time.Second).
			SetServerSelectionTimeout(3 * time.Second)

		client, clientErr = mongo.Connect(ctx, clientOpts)
		if clientErr != nil {
			return
		}
		clientErr = client.Ping(ctx, nil)
	})
	return client, clientErr
}

// SetupTestDB returns a fresh database named after the test, with production
// indexes applied, and drops it on cleanup. The test is skipped when no
// MongoDB is reachable.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	client, err := getClient()
	if err != nil {
		t.Skipf("MongoDB not available at %s: %v", testDBURI(), err)
	}

	db := client.Database(fmt.Sprintf("%s_%s", TestDBName, sanitizeTestName(t.Name())))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Drop(ctx); err != nil {
		t.Fatalf("failed to drop test database: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("failed to create indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("warning: failed to drop test database on cleanup: %v", err)
		}
	})

	return db
}

// sanitizeTestName maps a test name onto a database name suffix. MongoDB
// caps database names at 63 bytes; the prefix plus separator takes 18.
func sanitizeTestName(name string) string {
	const maxLen = 45
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name) && len(out) < maxLen; i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// TestContext returns a context with a reasonable timeout for test operations.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
