package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"

	apperrors "image-collector/internal/common/errors"
	apphttp "image-collector/internal/common/http"
	"image-collector/internal/models"
)

// ErrTimeout marks a search or download that ran out of time.
var ErrTimeout = errors.New("source request timed out")

// Candidate is one search hit, not yet downloaded.
type Candidate struct {
	ID          string
	Source      string
	DownloadURL string
	PageURL     string
	TrackURL    string
	Width       int
	Height      int
	Tags        []string
	Description string
	License     models.License
	Class       LicenseClass
}

// Filename is the last path element of the download URL.
func (c Candidate) Filename() string {
	u, err := url.Parse(c.DownloadURL)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

type SearchOptions struct {
	PerPage    int
	SafeSearch bool
}

// ImageSourceClient is one external image provider.
type ImageSourceClient interface {
	Name() string
	Search(ctx context.Context, term string, opts SearchOptions) ([]Candidate, error)
	Download(ctx context.Context, c Candidate) (*Download, error)
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// getJSON performs an API call and decodes the JSON body into out. Timeouts
// are wrapped with ErrTimeout; everything else means the source is unusable.
func getJSON(ctx context.Context, client *apphttp.Client, source, rawURL string, headers map[string]string, out interface{}) error {
	resp, err := client.Get(ctx, rawURL, headers)
	if err != nil {
		if IsTimeout(err) {
			return fmt.Errorf("%s: %w: %w", source, ErrTimeout, err)
		}
		return apperrors.NewSourceUnavailableError(source, err)
	}
	if err := apphttp.CheckStatus(resp); err != nil {
		se := apperrors.NewSourceUnavailableError(source, err)
		var status *apphttp.StatusError
		if errors.As(err, &status) && status.StatusCode == http.StatusTooManyRequests {
			se.WithMetadata("rateLimited", true)
		}
		return se
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if IsTimeout(err) {
			return fmt.Errorf("%s: %w: %w", source, ErrTimeout, err)
		}
		return apperrors.NewSourceUnavailableError(source, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func clampPerPage(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
