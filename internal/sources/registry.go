package sources

import (
	"time"

	"image-collector/internal/common/config"
	apphttp "image-collector/internal/common/http"
)

// NewFromConfig builds every enabled source client, keyed by name. Clients
// with missing credentials are still registered; their searches report
// SourceUnavailable so the gap is visible in item error logs.
func NewFromConfig(cfg config.SourcesConfig, client *apphttp.Client, downloader *Downloader) map[string]ImageSourceClient {
	out := map[string]ImageSourceClient{}
	if cfg.Unsplash.Enabled {
		out[SourceUnsplash] = NewUnsplashClient(cfg.Unsplash.BaseURL, cfg.Unsplash.AccessKey, client, downloader)
	}
	if cfg.Pixabay.Enabled {
		out[SourcePixabay] = NewPixabayClient(cfg.Pixabay.BaseURL, cfg.Pixabay.APIKey, client, downloader)
	}
	if cfg.SearXNG.Enabled {
		out[SourceSearXNG] = NewSearXNGClient(cfg.SearXNG.BaseURL, client, downloader)
	}
	return out
}

// EnabledNames drops the configured source names whose client is disabled,
// keeping order. Unknown names are kept so the misconfiguration still shows up
// in item error logs.
func EnabledNames(cfg config.SourcesConfig, names []string) []string {
	disabled := map[string]bool{
		SourceUnsplash: !cfg.Unsplash.Enabled,
		SourcePixabay:  !cfg.Pixabay.Enabled,
		SourceSearXNG:  !cfg.SearXNG.Enabled,
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if disabled[name] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// NewDownloaderFromConfig applies the collection download limits.
func NewDownloaderFromConfig(cfg config.CollectionConfig, client *apphttp.Client) *Downloader {
	return NewDownloader(client, cfg.MaxDownloadBytes, config.GetDuration(cfg.DownloadTimeout))
}

// SearchTimeout is the per-request budget for source searches.
func SearchTimeout(cfg config.CollectionConfig) time.Duration {
	return config.GetDuration(cfg.SearchTimeout)
}
