// Package objectstore holds the bucket/object backends the snapshot stage writes to.
package objectstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrStorageAccess  = errors.New("storage access failed")
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectStore is a flat bucket/key store. Put always overwrites.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Close() error
}

func storageErr(op, bucket, key string, err error) error {
	if key == "" {
		return fmt.Errorf("%w: %s %s: %w", ErrStorageAccess, op, bucket, err)
	}
	return fmt.Errorf("%w: %s %s/%s: %w", ErrStorageAccess, op, bucket, key, err)
}
