package blobstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	apperrors "image-collector/internal/common/errors"
)

// LocalStore writes blobs under a directory on disk.
type LocalStore struct {
	root      string
	publicURL string
}

func NewLocalStore(root, publicURL string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.NewStorageFailedError(root, err)
	}
	return &LocalStore{root: root, publicURL: publicURL}, nil
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", errors.New("invalid blob key " + key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ PutOptions) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	p, err := s.path(key)
	if err != nil {
		return PutResult{}, apperrors.NewStorageFailedError(key, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return PutResult{}, apperrors.NewStorageFailedError(key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return PutResult{}, apperrors.NewStorageFailedError(key, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return PutResult{}, apperrors.NewStorageFailedError(key, errors.Join(werr, cerr))
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return PutResult{}, apperrors.NewStorageFailedError(key, err)
	}
	return PutResult{Key: key, URL: s.url(key, p), ETag: etag(data)}, nil
}

func (s *LocalStore) Head(ctx context.Context, key string) (Info, error) {
	p, err := s.path(key)
	if err != nil {
		return Info{}, apperrors.NewStorageFailedError(key, err)
	}
	st, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, apperrors.NewStorageFailedError(key, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Info{}, apperrors.NewStorageFailedError(key, err)
	}
	return Info{
		Key:          key,
		Size:         st.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(p)),
		ETag:         etag(data),
		LastModified: st.ModTime(),
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return apperrors.NewStorageFailedError(key, err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewStorageFailedError(key, err)
	}
	return nil
}

func (s *LocalStore) url(key, p string) string {
	if s.publicURL != "" {
		return joinURL(s.publicURL, key)
	}
	return "file://" + filepath.ToSlash(p)
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
