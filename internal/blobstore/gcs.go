package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "image-collector/internal/common/errors"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GCSStore struct {
	client    *storage.Client
	bucket    string
	publicURL string
}

// NewGCSStore uses application default credentials unless opts override them.
func NewGCSStore(ctx context.Context, bucket, publicURL string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, publicURL: publicURL}, nil
}

func (s *GCSStore) Name() string { return "gcs" }

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) (PutResult, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl
	w.Metadata = opts.Metadata
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return PutResult{}, apperrors.NewStorageFailedError(key, err)
	}
	if err := w.Close(); err != nil {
		return PutResult{}, apperrors.NewStorageFailedError(key, err)
	}
	etag := ""
	if attrs := w.Attrs(); attrs != nil {
		etag = attrs.Etag
	}
	return PutResult{Key: key, URL: s.URL(key), ETag: etag}, nil
}

func (s *GCSStore) Head(ctx context.Context, key string) (Info, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if isGCSNotFound(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, apperrors.NewStorageFailedError(key, err)
	}
	return Info{
		Key:          key,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		ETag:         attrs.Etag,
		LastModified: attrs.Updated,
	}, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !isGCSNotFound(err) {
		return apperrors.NewStorageFailedError(key, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) URL(key string) string {
	if s.publicURL != "" {
		return joinURL(s.publicURL, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

func isGCSNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
