package sources

import (
	"net/url"
	"sort"
	"strings"
)

// LicenseClass ranks a candidate by copyright safety. Lower sorts first.
type LicenseClass int

const (
	LicenseSafe LicenseClass = iota
	LicenseUnknown
	LicenseBlocked
)

func (l LicenseClass) String() string {
	switch l {
	case LicenseSafe:
		return "safe"
	case LicenseBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// blockedDomains are stock agencies that enforce copyright.
var blockedDomains = []string{
	"shutterstock", "gettyimages", "istockphoto", "adobestock", "depositphotos",
	"dreamstime", "123rf", "alamy", "bigstockphoto", "stocksy", "eyeem", "pond5",
	"thinkstockphotos", "canstockphoto", "masterfile", "superstock", "agefotostock",
	"colourbox", "photodune", "yayimages", "vectorstock", "freepik", "canva.",
	"clipartof", "featurepics", "rfclipart",
}

var blockedPathPatterns = []string{"/stock-photo", "/stock-image", "/editorial-image", "/premium-photo"}

// safeDomains host free or Creative Commons imagery.
var safeDomains = []string{
	"unsplash", "pexels", "pixabay", "wikimedia", "flickr", "rawpixel",
	"stocksnap", "burst.shopify", "kaboompics", "picjumbo", "openverse",
}

// Classify checks the image URL and its page URL against the domain lists.
// A stock match on either URL blocks the candidate.
func Classify(imageURL, pageURL string) LicenseClass {
	for _, u := range []string{imageURL, pageURL} {
		if isBlocked(u) {
			return LicenseBlocked
		}
	}
	for _, u := range []string{imageURL, pageURL} {
		host := hostOf(u)
		for _, d := range safeDomains {
			if host != "" && strings.Contains(host, d) {
				return LicenseSafe
			}
		}
	}
	return LicenseUnknown
}

// FilterCandidates drops stock-agency hits and orders safe sources first,
// keeping the provider's order otherwise.
func FilterCandidates(in []Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		c.Class = Classify(c.DownloadURL, c.PageURL)
		if c.Class == LicenseBlocked {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

func isBlocked(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if rawURL == "" || err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, d := range blockedDomains {
		if host != "" && strings.Contains(host, d) {
			return true
		}
	}
	p := strings.ToLower(u.Path)
	for _, pat := range blockedPathPatterns {
		if strings.Contains(p, pat) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
