package blobstore

import (
	"context"
	"errors"

	"image-collector/internal/common/logger"
)

// FallbackStore writes to primary and, when that fails, to secondary.
type FallbackStore struct {
	primary   BlobStore
	secondary BlobStore
	log       logger.Logger
}

func NewFallbackStore(primary, secondary BlobStore, log logger.Logger) *FallbackStore {
	return &FallbackStore{
		primary:   primary,
		secondary: secondary,
		log:       log.WithFields(map[string]interface{}{"component": "blobstore"}),
	}
}

func (s *FallbackStore) Name() string {
	return s.primary.Name() + "+" + s.secondary.Name()
}

func (s *FallbackStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) (PutResult, error) {
	res, err := s.primary.Put(ctx, key, data, opts)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return PutResult{}, err
	}
	s.log.Warn("Primary blob store failed, writing to fallback", map[string]interface{}{
		"key":      key,
		"primary":  s.primary.Name(),
		"fallback": s.secondary.Name(),
		"error":    err.Error(),
	})
	res, ferr := s.secondary.Put(ctx, key, data, opts)
	if ferr != nil {
		return PutResult{}, errors.Join(err, ferr)
	}
	return res, nil
}

func (s *FallbackStore) Head(ctx context.Context, key string) (Info, error) {
	info, err := s.primary.Head(ctx, key)
	if err == nil {
		return info, nil
	}
	if sinfo, serr := s.secondary.Head(ctx, key); serr == nil {
		return sinfo, nil
	}
	return Info{}, err
}

func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	return errors.Join(s.primary.Delete(ctx, key), s.secondary.Delete(ctx, key))
}
