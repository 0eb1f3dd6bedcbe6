package fetcher

import (
	"fmt"
	"net/url"
	"strings"

	"newsdesk/internal/settings"
)

const (
	DefaultBaseURL = "https://newsapi.org"
	ProductName    = "newsdesk/1.0"

	pathSearch    = "/v2/everything"
	pathHeadlines = "/v2/top-headlines"
)

// buildURL returns the upstream URL for one run. Exactly one endpoint is
// queried, chosen by the settings' endpoint mode.
func buildURL(baseURL string, s settings.Settings) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("bad upstream base url: %w", err)
	}

	q := url.Values{}
	switch s.EndpointMode {
	case settings.ModeSearch:
		u.Path += pathSearch
		q.Set("q", s.SearchQuery)
	case settings.ModeHeadlines:
		u.Path += pathHeadlines
		q.Set("category", s.Category())
		if s.SearchQuery != "" {
			q.Set("q", s.SearchQuery)
		}
	default:
		return "", fmt.Errorf("%w: unknown endpoint mode %q", settings.ErrInvalid, s.EndpointMode)
	}
	q.Set("apiKey", s.APIKey)

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// userAgent identifies this deployment to the upstream for attribution.
func userAgent(siteURL string) string {
	if siteURL == "" {
		return ProductName
	}
	return fmt.Sprintf("%s (%s)", ProductName, siteURL)
}
