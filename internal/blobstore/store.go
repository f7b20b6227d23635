package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"image-collector/internal/models"
)

// ErrNotFound is returned by Head for missing keys.
var ErrNotFound = errors.New("blob not found")

type PutOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

type PutResult struct {
	Key  string
	URL  string
	ETag string
}

type Info struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// BlobStore persists named byte blobs and returns addressable URLs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, opts PutOptions) (PutResult, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

// Key lays out a derivative as
// categories/{category}/{LETTER}/{item}/{size}/{filename}.
func Key(item models.ItemKey, size models.DerivativeSize, filename string) string {
	return fmt.Sprintf("categories/%s/%s/%s/%s/%s",
		slug(item.Category), strings.ToUpper(item.Letter), slug(item.Name), size, filename)
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "-")
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
