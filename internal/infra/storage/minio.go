package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const defaultURLExpiry = time.Hour

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	URLExpiry time.Duration
}

// Store keeps uploaded photos in a private bucket and hands out presigned links.
type Store struct {
	client     *minio.Client
	bucketName string
	urlExpiry  time.Duration
}

// Open buat client MinIO tanpa menyentuh jaringan
func Open(cfg Config) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detection.ErrStorage, err)
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &Store{client: cli, bucketName: cfg.Bucket, urlExpiry: expiry}, nil
}

// New buat koneksi MinIO dan pastikan bucket ada
func New(ctx context.Context, cfg Config) (*Store, error) {
	s, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	exists, err := s.client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: check bucket: %v", detection.ErrStorage, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("%w: create bucket: %v", detection.ErrStorage, err)
		}
	}
	return s, nil
}

// Put implementasi ImageStore
func (s *Store) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", detection.ErrStorage, key, err)
	}
	return nil
}

// Get reads a stored photo. A missing key maps to ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", detection.ErrStorage, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: image %s", detection.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: read %s: %v", detection.ErrStorage, key, err)
	}
	return data, nil
}

// URL returns a presigned GET link; the bucket stays private.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", detection.ErrStorage, key, err)
	}
	return u.String(), nil
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucketName); err != nil {
		return fmt.Errorf("%w: %v", detection.ErrStorage, err)
	}
	return nil
}
