package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// Storage keeps uploaded blobs in an S3-compatible bucket.
type Storage struct {
	client *minio.Client
	bucket string
}

func New(cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "save blob", fmt.Errorf("read upload: %w", err))
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectName(key), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "save blob", err)
	}
	return nil
}

// Open stats the object first so a missing key fails here rather than on the
// first Read.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name := objectName(key)
	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "open blob", describe(err))
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "open blob", describe(err))
	}
	return obj, nil
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "remove blob", describe(err))
	}
	return nil
}

func objectName(key string) string {
	return strings.TrimLeft(key, "/")
}

func contentType(key string) string {
	switch domain.DocumentFormat(key) {
	case domain.FormatPDF:
		return "application/pdf"
	case domain.FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

func describe(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("object not found: %w", err)
	}
	return err
}
