package sources

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	apperrors "image-collector/internal/common/errors"
	apphttp "image-collector/internal/common/http"
)

const SourceSearXNG = "searxng"

// SearXNGClient queries a SearXNG metasearch instance's image category.
type SearXNGClient struct {
	baseURL    string
	client     *apphttp.Client
	downloader *Downloader
}

func NewSearXNGClient(baseURL string, client *apphttp.Client, downloader *Downloader) *SearXNGClient {
	return &SearXNGClient{baseURL: strings.TrimRight(baseURL, "/"), client: client, downloader: downloader}
}

func (c *SearXNGClient) Name() string { return SourceSearXNG }

type searxngResponse struct {
	Results []struct {
		ImgSrc       string `json:"img_src"`
		URL          string `json:"url"`
		Title        string `json:"title"`
		Content      string `json:"content"`
		ThumbnailSrc string `json:"thumbnail_src"`
		Resolution   string `json:"resolution"`
	} `json:"results"`
}

func (c *SearXNGClient) Search(ctx context.Context, term string, opts SearchOptions) ([]Candidate, error) {
	if c.baseURL == "" {
		return nil, apperrors.NewSourceUnavailableError(SourceSearXNG, errors.New("base url not configured"))
	}
	q := url.Values{}
	q.Set("q", term)
	q.Set("categories", "images")
	q.Set("format", "json")
	if opts.SafeSearch {
		q.Set("safesearch", "1")
	}

	var resp searxngResponse
	if err := getJSON(ctx, c.client, SourceSearXNG, c.baseURL+"/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	limit := opts.PerPage
	out := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.ImgSrc == "" {
			continue
		}
		src := r.ImgSrc
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		w, h := parseResolution(r.Resolution)
		out = append(out, Candidate{
			ID:          src,
			Source:      SourceSearXNG,
			DownloadURL: src,
			PageURL:     r.URL,
			Width:       w,
			Height:      h,
			Description: strings.TrimSpace(r.Title + " " + r.Content),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *SearXNGClient) Download(ctx context.Context, cand Candidate) (*Download, error) {
	return c.downloader.Fetch(ctx, cand.DownloadURL, nil)
}

// parseResolution reads "1920x1080" or "1920 x 1080".
func parseResolution(s string) (int, int) {
	parts := strings.Split(strings.ReplaceAll(strings.ToLower(s), " ", ""), "x")
	if len(parts) != 2 {
		return 0, 0
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return w, h
}
