package objectstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Runs only against a live server: REDIS_ADDR=localhost:6379 go test ./...
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	s := NewRedisStore(rdb)
	bucket := "test-" + uuid.New().String()
	t.Cleanup(func() {
		rdb.SRem(ctx, bucketsKey, bucket)
		rdb.Del(ctx, objectKey(bucket, "data/new_data.csv"))
	})

	if ok, err := s.BucketExists(ctx, bucket); err != nil || ok {
		t.Fatalf("BucketExists = %v, %v", ok, err)
	}
	if err := s.CreateBucket(ctx, bucket); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if ok, err := s.BucketExists(ctx, bucket); err != nil || !ok {
		t.Fatalf("BucketExists after create = %v, %v", ok, err)
	}

	if _, err := s.Get(ctx, bucket, "data/new_data.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if err := s.Put(ctx, bucket, "data/new_data.csv", []byte("a,b\n"), "text/csv"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, bucket, "data/new_data.csv")
	if err != nil || string(got) != "a,b\n" {
		t.Errorf("Get = %q, %v", got, err)
	}
}
