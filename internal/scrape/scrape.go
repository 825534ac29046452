// Package scrape extracts video titles from a creator page.
//
// Two drivers implement [TitleSource]: a YouTube driver that walks the
// channel's Videos listing through the innertube browse API (with
// continuation-token pagination), and a static driver that collects titles
// from arbitrary pages by CSS selector. [ForURL] picks the driver by host.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/songsift/songsift/internal/shared"
)

// browserUserAgent mimics a standard browser; both drivers send it.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// PageTitles is the outcome of scraping one creator page: the channel name
// derived from the URL and the raw titles in listing order.
type PageTitles struct {
	Channel string
	Titles  []string
}

// Options controls how much of a listing is fetched.
type Options struct {
	// Full walks the entire listing instead of just the first page.
	Full bool
}

// TitleSource fetches the video titles of a creator page.
type TitleSource interface {
	// FetchTitles returns the page's titles in listing order. An empty
	// page yields an empty slice, not an error; an unreachable source
	// yields [shared.ErrSourceUnavailable].
	FetchTitles(ctx context.Context, pageURL string, opts Options) (*PageTitles, error)

	// Name returns the driver name (e.g., "YouTube")
	Name() string
}

// ForURL validates the page URL and picks the driver for its host: the
// YouTube browse driver for YouTube hosts, the static collector for
// everything else.
func ForURL(pageURL string, cfg shared.ScrapeConfig) (TitleSource, error) {
	parsed, err := ValidatePageURL(pageURL)
	if err != nil {
		return nil, err
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host == "youtube.com" || host == "m.youtube.com" || host == "youtu.be" {
		return NewYouTubeSource(cfg), nil
	}

	return NewStaticSource(cfg), nil
}

// ValidatePageURL rejects addresses that do not start with an http scheme.
func ValidatePageURL(pageURL string) (*url.URL, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return nil, fmt.Errorf("%w: address %q must start with http:// or https://", shared.ErrInvalidArgument, pageURL)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: address %q has no host", shared.ErrInvalidArgument, pageURL)
	}

	return parsed, nil
}

// ChannelFromURL derives a channel name from the page URL: the
// second-to-last path segment with a leading "@" stripped, so
// "https://www.youtube.com/@somecreator/videos" names "somecreator".
func ChannelFromURL(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	var segments []string
	for _, seg := range strings.Split(parsed.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	var name string
	switch {
	case len(segments) >= 2:
		name = segments[len(segments)-2]
	case len(segments) == 1:
		name = segments[0]
	default:
		name = parsed.Hostname()
	}

	return strings.TrimPrefix(name, "@")
}
