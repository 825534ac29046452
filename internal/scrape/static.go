// Static-page implementation of [TitleSource]
package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"
	"github.com/songsift/songsift/internal/shared"
)

// defaultTitleSelector collects the elements YouTube marks video titles
// with, which doubles as a sane default for mirror pages.
const defaultTitleSelector = "#video-title"

// StaticSource collects titles from a rendered page by CSS selector. It
// sees only what one plain GET returns, so script-populated listings come
// back empty; the YouTube driver exists for those.
type StaticSource struct {
	selector string
}

// NewStaticSource creates the static driver.
func NewStaticSource(cfg shared.ScrapeConfig) *StaticSource {
	selector := cfg.TitleSelector
	if selector == "" {
		selector = defaultTitleSelector
	}

	return &StaticSource{selector: selector}
}

func (s *StaticSource) Name() string {
	return "Static"
}

// FetchTitles visits the page once and returns the text of every element
// matching the configured selector, in document order.
func (s *StaticSource) FetchTitles(ctx context.Context, pageURL string, _ Options) (*PageTitles, error) {
	if _, err := ValidatePageURL(pageURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := colly.NewCollector(colly.UserAgent(browserUserAgent))

	var titles []string
	collector.OnHTML(s.selector, func(e *colly.HTMLElement) {
		if title := strings.TrimSpace(e.Text); title != "" {
			titles = append(titles, title)
		}
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}

	return &PageTitles{Channel: ChannelFromURL(pageURL), Titles: titles}, nil
}
