package imaging

import (
	"bytes"
	"strings"

	"image-collector/internal/models"

	"github.com/bep/imagemeta"
)

// Rights are the copyright and licensing fields embedded in an image.
type Rights struct {
	Copyright    string
	Artist       string
	Credit       string
	Source       string
	Byline       string
	LicenseURL   string
	WebStatement string
	UsageTerms   string
	Creator      string
	Marked       bool
}

var stockAgencies = []string{
	"shutterstock", "gettyimages", "getty images", "istockphoto", "istock",
	"alamy", "depositphotos", "dreamstime", "123rf", "adobestock", "adobe stock",
	"bigstockphoto", "stocksy", "pond5", "masterfile", "superstock",
	"agefotostock", "colourbox", "vectorstock", "freepik", "canstockphoto",
}

var rightsTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {"Copyright": true, "Artist": true},
	imagemeta.IPTC: {"CopyrightNotice": true, "Credit": true, "Byline": true, "Source": true},
	imagemeta.XMP:  {"WebStatement": true, "UsageTerms": true, "License": true, "Marked": true, "Rights": true, "Creator": true},
}

// ReadRights extracts EXIF, IPTC and XMP rights fields. It returns nil when
// the image carries none or cannot be parsed.
func ReadRights(data []byte) *Rights {
	if len(data) == 0 {
		return nil
	}
	r := &Rights{}
	found := false
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return rightsTags[ti.Source][ti.Tag]
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if r.set(ti) {
				found = true
			}
			return nil
		},
	})
	if err != nil || !found {
		return nil
	}
	return r
}

func (r *Rights) set(ti imagemeta.TagInfo) bool {
	if ti.Tag == "Marked" {
		b, ok := ti.Value.(bool)
		r.Marked = ok && b
		return ok
	}
	s := tagString(ti.Value)
	if s == "" {
		return false
	}
	switch ti.Source {
	case imagemeta.EXIF:
		switch ti.Tag {
		case "Copyright":
			r.Copyright = s
		case "Artist":
			r.Artist = s
		}
	case imagemeta.IPTC:
		switch ti.Tag {
		case "CopyrightNotice":
			if r.Copyright == "" {
				r.Copyright = s
			}
		case "Credit":
			r.Credit = s
		case "Byline":
			r.Byline = s
		case "Source":
			r.Source = s
		}
	case imagemeta.XMP:
		switch ti.Tag {
		case "License":
			r.LicenseURL = s
		case "WebStatement":
			r.WebStatement = s
		case "UsageTerms":
			r.UsageTerms = s
		case "Rights":
			if r.Copyright == "" {
				r.Copyright = s
			}
		case "Creator":
			r.Creator = s
		}
	}
	return true
}

func tagString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// StockAgency returns the stock agency named in the rights fields, if any.
func (r *Rights) StockAgency() string {
	if r == nil {
		return ""
	}
	for _, f := range []string{r.Copyright, r.Artist, r.Credit, r.Source, r.Byline, r.Creator} {
		lower := strings.ToLower(f)
		for _, agency := range stockAgencies {
			if lower != "" && strings.Contains(lower, agency) {
				return agency
			}
		}
	}
	return ""
}

// License builds attribution from the embedded fields.
func (r *Rights) License() models.License {
	if r == nil {
		return models.License{}
	}
	author := firstNonEmpty(r.Artist, r.Byline, r.Creator)
	url := firstNonEmpty(r.LicenseURL, r.WebStatement)
	lic := models.License{
		Name:        firstNonEmpty(LicenseName(url), r.UsageTerms),
		URL:         url,
		Author:      author,
		Attribution: firstNonEmpty(r.Copyright, r.Credit),
	}
	if lic.Attribution == "" && author != "" {
		lic.Attribution = "Photo by " + author
	}
	return lic
}

// LicenseName names well-known Creative Commons URLs.
func LicenseName(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "creativecommons.org/publicdomain/zero"):
		return "CC0"
	case strings.Contains(lower, "creativecommons.org/publicdomain/"):
		return "Public Domain"
	case strings.Contains(lower, "creativecommons.org/licenses/"):
		parts := strings.Split(strings.TrimSuffix(lower[strings.Index(lower, "/licenses/")+len("/licenses/"):], "/"), "/")
		if len(parts) > 0 && parts[0] != "" {
			name := "CC " + strings.ToUpper(parts[0])
			if len(parts) > 1 {
				name += " " + parts[1]
			}
			return name
		}
		return "Creative Commons"
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
