package sources

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "image-collector/internal/common/errors"
	apphttp "image-collector/internal/common/http"
)

const defaultMaxDownloadBytes = 15 << 20

// Download is a fetched image body.
type Download struct {
	Data        []byte
	ContentType string
}

// Downloader fetches image bodies with a size cap and per-request timeout.
type Downloader struct {
	client   *apphttp.Client
	maxBytes int64
	timeout  time.Duration
}

func NewDownloader(client *apphttp.Client, maxBytes int64, timeout time.Duration) *Downloader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxDownloadBytes
	}
	return &Downloader{client: client, maxBytes: maxBytes, timeout: timeout}
}

// Fetch downloads rawURL. Any failure is a DownloadFailed error; timeouts
// additionally match ErrTimeout.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Download, error) {
	if rawURL == "" {
		return nil, apperrors.NewDownloadFailedError(rawURL, fmt.Errorf("empty url"))
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.client.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, d.fail(rawURL, err)
	}
	if err := apphttp.CheckStatus(resp); err != nil {
		return nil, apperrors.NewDownloadFailedError(rawURL, err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, apperrors.NewDownloadFailedError(rawURL, fmt.Errorf("content type %q is not an image", ct))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, d.fail(rawURL, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, apperrors.NewDownloadFailedError(rawURL, fmt.Errorf("body exceeds %d bytes", d.maxBytes))
	}
	if len(data) == 0 {
		return nil, apperrors.NewDownloadFailedError(rawURL, fmt.Errorf("empty body"))
	}
	return &Download{Data: data, ContentType: ct}, nil
}

func (d *Downloader) fail(rawURL string, err error) error {
	se := apperrors.NewDownloadFailedError(rawURL, err)
	if IsTimeout(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, se)
	}
	return se
}
