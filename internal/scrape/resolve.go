package scrape

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/songsift/songsift/internal/shared"
)

// channelIDPattern matches YouTube channel IDs (UC followed by 22 chars).
var channelIDPattern = regexp.MustCompile(`UC[\w-]{22}`)

// resolveBrowseID turns a channel page URL into the UC… browse ID the
// innertube API wants. Channel-ID URLs resolve directly; handle and custom
// URLs need one page fetch to read the ID out of the page head.
func (y *YouTubeSource) resolveBrowseID(ctx context.Context, pageURL string) (string, error) {
	if id := channelIDPattern.FindString(pageURL); id != "" {
		return id, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: channel page status %d", shared.ErrSourceUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}

	if id := channelIDFromDocument(doc); id != "" {
		return id, nil
	}

	return "", fmt.Errorf("%w: no channel id on %s", shared.ErrSourceUnavailable, pageURL)
}

// channelIDFromDocument reads the UC… id from the head tags YouTube puts on
// every channel page.
func channelIDFromDocument(doc *goquery.Document) string {
	candidates := []struct {
		selector string
		attr     string
	}{
		{`link[rel="canonical"]`, "href"},
		{`meta[itemprop="identifier"]`, "content"},
		{`meta[itemprop="channelId"]`, "content"},
		{`meta[property="og:url"]`, "content"},
	}

	for _, c := range candidates {
		value, ok := doc.Find(c.selector).First().Attr(c.attr)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if id := channelIDPattern.FindString(value); id != "" {
			return id
		}
	}

	return ""
}
