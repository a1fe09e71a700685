package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const bucketsKey = "buckets"

// RedisStore keeps buckets in a set and each object in a hash
// (data, content_type, updated_at).
type RedisStore struct {
	rdb   *redis.Client
	owned bool
}

var _ ObjectStore = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func objectKey(bucket, key string) string {
	return fmt.Sprintf("object:%s/%s", bucket, key)
}

func (s *RedisStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, bucketsKey, bucket).Result()
	if err != nil {
		return false, storageErr("stat bucket", bucket, "", err)
	}
	return ok, nil
}

func (s *RedisStore) CreateBucket(ctx context.Context, bucket string) error {
	if err := s.rdb.SAdd(ctx, bucketsKey, bucket).Err(); err != nil {
		return storageErr("create bucket", bucket, "", err)
	}
	return nil
}

func (s *RedisStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, objectKey(bucket, key)).Result()
	if err != nil {
		return false, storageErr("stat", bucket, key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := s.rdb.HGet(ctx, objectKey(bucket, key), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storageErr("read", bucket, key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, storageErr("read", bucket, key, err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	err := s.rdb.HSet(ctx, objectKey(bucket, key),
		"data", data,
		"content_type", contentType,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return storageErr("write", bucket, key, err)
	}
	return nil
}

// Close closes the client only when the store opened it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}
