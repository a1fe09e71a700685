package objectstore

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore talks to Google Cloud Storage. New buckets are created in project.
type GCSStore struct {
	client  *storage.Client
	project string
}

var _ ObjectStore = (*GCSStore)(nil)

func NewGCSStore(ctx context.Context, project, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, storageErr("connect", "gcs", "", err)
	}
	return &GCSStore{client: client, project: project}, nil
}

func (s *GCSStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.Bucket(bucket).Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat bucket", bucket, "", err)
	}
	return true, nil
}

func (s *GCSStore) CreateBucket(ctx context.Context, bucket string) error {
	if err := s.client.Bucket(bucket).Create(ctx, s.project, nil); err != nil {
		return storageErr("create bucket", bucket, "", err)
	}
	return nil
}

func (s *GCSStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat", bucket, key, err)
	}
	return true, nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, storageErr("read", bucket, key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, storageErr("read", bucket, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, storageErr("read", bucket, key, err)
	}
	return data, nil
}

func (s *GCSStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return storageErr("write", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return storageErr("write", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
