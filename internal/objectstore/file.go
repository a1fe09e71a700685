package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps each bucket as a directory under root.
type FileStore struct {
	root string
}

var _ ObjectStore = (*FileStore)(nil)

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, storageErr("create root", root, "", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) bucketDir(bucket string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	return filepath.Join(s.root, bucket), nil
}

func (s *FileStore) objectPath(bucket, key string) (string, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func (s *FileStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return false, storageErr("stat bucket", bucket, "", err)
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat bucket", bucket, "", err)
	}
	return info.IsDir(), nil
}

func (s *FileStore) CreateBucket(ctx context.Context, bucket string) error {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return storageErr("create bucket", bucket, "", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storageErr("create bucket", bucket, "", err)
	}
	return nil
}

func (s *FileStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return false, storageErr("stat", bucket, key, err)
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat", bucket, key, err)
	}
	return true, nil
}

func (s *FileStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, storageErr("read", bucket, key, err)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, storageErr("read", bucket, key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, storageErr("read", bucket, key, err)
	}
	return data, nil
}

// Put writes through a temp file and rename so readers never see a partial object.
func (s *FileStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return storageErr("write", bucket, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return storageErr("write", bucket, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return storageErr("write", bucket, key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return storageErr("write", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr("write", bucket, key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return storageErr("write", bucket, key, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
