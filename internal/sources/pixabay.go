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

const SourcePixabay = "pixabay"

var pixabayLicense = models.License{Name: "Pixabay Content License", URL: "https://pixabay.com/service/license-summary/"}

type PixabayClient struct {
	baseURL    string
	apiKey     string
	client     *apphttp.Client
	downloader *Downloader
}

func NewPixabayClient(baseURL, apiKey string, client *apphttp.Client, downloader *Downloader) *PixabayClient {
	return &PixabayClient{baseURL: baseURL, apiKey: apiKey, client: client, downloader: downloader}
}

func (c *PixabayClient) Name() string { return SourcePixabay }

type pixabayResponse struct {
	Hits []struct {
		ID            int    `json:"id"`
		PageURL       string `json:"pageURL"`
		Tags          string `json:"tags"`
		LargeImageURL string `json:"largeImageURL"`
		WebformatURL  string `json:"webformatURL"`
		ImageWidth    int    `json:"imageWidth"`
		ImageHeight   int    `json:"imageHeight"`
		User          string `json:"user"`
		UserID        int    `json:"user_id"`
	} `json:"hits"`
}

func (c *PixabayClient) Search(ctx context.Context, term string, opts SearchOptions) ([]Candidate, error) {
	if c.apiKey == "" {
		return nil, apperrors.NewSourceUnavailableError(SourcePixabay, errors.New("api key not configured"))
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", term)
	q.Set("image_type", "photo")
	q.Set("per_page", strconv.Itoa(clampPerPage(opts.PerPage, 3, 200)))
	q.Set("safesearch", strconv.FormatBool(opts.SafeSearch))

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	var resp pixabayResponse
	if err := getJSON(ctx, c.client, SourcePixabay, c.baseURL+sep+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		download := h.LargeImageURL
		if download == "" {
			download = h.WebformatURL
		}
		if download == "" {
			continue
		}
		var tags []string
		for _, t := range strings.Split(h.Tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		lic := pixabayLicense
		lic.Author = h.User
		if h.User != "" {
			lic.AuthorURL = "https://pixabay.com/users/" + h.User + "-" + strconv.Itoa(h.UserID) + "/"
			lic.Attribution = "Image by " + h.User + " from Pixabay"
		}
		out = append(out, Candidate{
			ID:          strconv.Itoa(h.ID),
			Source:      SourcePixabay,
			DownloadURL: download,
			PageURL:     h.PageURL,
			Width:       h.ImageWidth,
			Height:      h.ImageHeight,
			Tags:        tags,
			Description: h.Tags,
			License:     lic,
		})
	}
	return out, nil
}

func (c *PixabayClient) Download(ctx context.Context, cand Candidate) (*Download, error) {
	return c.downloader.Fetch(ctx, cand.DownloadURL, nil)
}
