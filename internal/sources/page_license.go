package sources

import (
	"context"
	"io"
	"strings"

	apphttp "image-collector/internal/common/http"
	"image-collector/internal/imaging"
	"image-collector/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const maxPageBytes = 1 << 20

// PageLicenseResolver reads license links from a candidate's source page.
type PageLicenseResolver struct {
	client *apphttp.Client
}

func NewPageLicenseResolver(client *apphttp.Client) *PageLicenseResolver {
	return &PageLicenseResolver{client: client}
}

// Resolve fetches pageURL and returns the license it declares. A page
// without one yields a zero License and no error.
func (r *PageLicenseResolver) Resolve(ctx context.Context, pageURL string) (models.License, error) {
	if pageURL == "" {
		return models.License{}, nil
	}
	resp, err := r.client.Get(ctx, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return models.License{}, err
	}
	if err := apphttp.CheckStatus(resp); err != nil {
		return models.License{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return models.License{}, err
	}
	return LicenseFromDocument(doc), nil
}

// LicenseFromDocument prefers rel="license" links, then any Creative Commons
// link or license meta tag.
func LicenseFromDocument(doc *goquery.Document) models.License {
	var href string
	doc.Find(`a[rel~="license"], link[rel~="license"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href = strings.TrimSpace(s.AttrOr("href", ""))
		return href == ""
	})
	if href == "" {
		doc.Find(`a[href*="creativecommons.org/licenses/"], a[href*="creativecommons.org/publicdomain/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href = strings.TrimSpace(s.AttrOr("href", ""))
			return href == ""
		})
	}
	if href == "" {
		href = strings.TrimSpace(doc.Find(`meta[name="license"], meta[property="license"]`).First().AttrOr("content", ""))
	}
	if href == "" {
		return models.License{}
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	lic := models.License{URL: href, Name: imaging.LicenseName(href)}
	if lic.Name == "" {
		lic.Name = "See source page"
	}
	author := strings.TrimSpace(doc.Find(`meta[name="author"]`).First().AttrOr("content", ""))
	if author == "" {
		author = strings.TrimSpace(doc.Find(`[rel~="author"], .author`).First().Text())
	}
	lic.Author = author
	if author != "" {
		lic.Attribution = author + ", " + lic.Name
	}
	return lic
}
