package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"fuelshift/backend/internal/store"
)

func TestDocumentReplaceRoundTrip(t *testing.T) {
	uri := os.Getenv("FUELSHIFT_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("set FUELSHIFT_TEST_MONGODB_URI to run mongodb integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	s, err := New(ctx, uri, "fuelshift_test")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := fmt.Sprintf("it_doc_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.collection.DeleteOne(context.Background(), bson.M{"_id": key})
		_ = s.Close(context.Background())
	})

	if _, err := s.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, key, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, key, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"a":2}` {
		t.Fatalf("unexpected document %s", got)
	}
}
