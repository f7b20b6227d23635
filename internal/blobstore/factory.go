package blobstore

import (
	"context"
	"fmt"

	"image-collector/internal/common/config"
	"image-collector/internal/common/logger"
)

// NewFromConfig builds the configured store, wrapped with the local fallback
// when one is configured.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (BlobStore, error) {
	var primary BlobStore
	var err error
	switch cfg.Provider {
	case "s3":
		primary, err = NewS3Store(ctx, S3Options{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
		})
	case "gcs":
		primary, err = NewGCSStore(ctx, cfg.GCS.Bucket, cfg.GCS.PublicURL)
	case "local", "":
		return NewLocalStore(cfg.Local.Root, cfg.Local.PublicURL)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Fallback != "local" {
		return primary, nil
	}
	local, err := NewLocalStore(cfg.Local.Root, cfg.Local.PublicURL)
	if err != nil {
		return nil, err
	}
	log.Info("Blob store configured with local fallback", map[string]interface{}{"primary": primary.Name()})
	return NewFallbackStore(primary, local, log), nil
}
