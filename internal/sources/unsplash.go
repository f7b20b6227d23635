package sources

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	apperrors "image-collector/internal/common/errors"
	apphttp "image-collector/internal/common/http"
	"image-collector/internal/models"
)

const SourceUnsplash = "unsplash"

var unsplashLicense = models.License{Name: "Unsplash License", URL: "https://unsplash.com/license"}

type UnsplashClient struct {
	baseURL    string
	accessKey  string
	client     *apphttp.Client
	downloader *Downloader
}

func NewUnsplashClient(baseURL, accessKey string, client *apphttp.Client, downloader *Downloader) *UnsplashClient {
	return &UnsplashClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accessKey:  accessKey,
		client:     client,
		downloader: downloader,
	}
}

func (c *UnsplashClient) Name() string { return SourceUnsplash }

type unsplashSearchResponse struct {
	Results []struct {
		ID             string `json:"id"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		URLs           struct {
			Full    string `json:"full"`
			Regular string `json:"regular"`
		} `json:"urls"`
		Links struct {
			HTML             string `json:"html"`
			DownloadLocation string `json:"download_location"`
		} `json:"links"`
		User struct {
			Name  string `json:"name"`
			Links struct {
				HTML string `json:"html"`
			} `json:"links"`
		} `json:"user"`
		Tags []struct {
			Title string `json:"title"`
		} `json:"tags"`
	} `json:"results"`
}

func (c *UnsplashClient) headers() map[string]string {
	return map[string]string{
		"Authorization":  "Client-ID " + c.accessKey,
		"Accept-Version": "v1",
	}
}

func (c *UnsplashClient) Search(ctx context.Context, term string, opts SearchOptions) ([]Candidate, error) {
	if c.accessKey == "" {
		return nil, apperrors.NewSourceUnavailableError(SourceUnsplash, errors.New("access key not configured"))
	}
	q := url.Values{}
	q.Set("query", term)
	q.Set("per_page", strconv.Itoa(clampPerPage(opts.PerPage, 1, 30)))
	if opts.SafeSearch {
		q.Set("content_filter", "high")
	}

	var resp unsplashSearchResponse
	if err := getJSON(ctx, c.client, SourceUnsplash, c.baseURL+"/search/photos?"+q.Encode(), c.headers(), &resp); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		download := r.URLs.Full
		if download == "" {
			download = r.URLs.Regular
		}
		if download == "" {
			continue
		}
		desc := r.Description
		if desc == "" {
			desc = r.AltDescription
		}
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			tags = append(tags, t.Title)
		}
		lic := unsplashLicense
		lic.Author = r.User.Name
		lic.AuthorURL = r.User.Links.HTML
		if r.User.Name != "" {
			lic.Attribution = "Photo by " + r.User.Name + " on Unsplash"
		}
		out = append(out, Candidate{
			ID:          r.ID,
			Source:      SourceUnsplash,
			DownloadURL: download,
			PageURL:     r.Links.HTML,
			TrackURL:    r.Links.DownloadLocation,
			Width:       r.Width,
			Height:      r.Height,
			Tags:        tags,
			Description: desc,
			License:     lic,
		})
	}
	return out, nil
}

// Download registers the download with the Unsplash tracking endpoint, as
// required by the API terms, then fetches the image.
func (c *UnsplashClient) Download(ctx context.Context, cand Candidate) (*Download, error) {
	if cand.TrackURL != "" && c.accessKey != "" {
		if resp, err := c.client.Get(ctx, cand.TrackURL, c.headers()); err == nil {
			resp.Body.Close()
		}
	}
	return c.downloader.Fetch(ctx, cand.DownloadURL, nil)
}
