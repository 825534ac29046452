// YouTube channel implementation of [TitleSource]
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/songsift/songsift/internal/shared"
)

// YouTubeSource lists a channel's Videos tab through the innertube browse
// API instead of rendering the page.
type YouTubeSource struct {
	client         *innertubeClient
	httpClient     *http.Client
	noGrowthRounds int
}

// NewYouTubeSource creates the YouTube driver.
func NewYouTubeSource(cfg shared.ScrapeConfig) *YouTubeSource {
	rounds := cfg.NoGrowthRounds
	if rounds <= 0 {
		rounds = 2
	}

	return &YouTubeSource{
		client:         newInnertubeClient(),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		noGrowthRounds: rounds,
	}
}

func (y *YouTubeSource) Name() string {
	return "YouTube"
}

// FetchTitles walks the channel listing. Without Full only the first page
// is fetched; with Full, continuation tokens are followed until the listing
// stops growing. A failure after the first page returns what was collected,
// the same way an interrupted scroll still yields the loaded part of the
// page.
func (y *YouTubeSource) FetchTitles(ctx context.Context, pageURL string, opts Options) (*PageTitles, error) {
	if _, err := ValidatePageURL(pageURL); err != nil {
		return nil, err
	}

	browseID, err := y.resolveBrowseID(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	result := &PageTitles{Channel: ChannelFromURL(pageURL), Titles: []string{}}
	token := ""
	emptyRounds := 0

	for {
		resp, err := y.client.browse(ctx, browseID, token)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if len(result.Titles) == 0 {
				return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
			}
			return result, nil
		}

		if result.Channel == "" {
			result.Channel = extractChannelTitle(resp)
		}

		page := extractTitles(resp)
		result.Titles = append(result.Titles, page...)

		if !opts.Full {
			break
		}

		if len(page) == 0 {
			emptyRounds++
		} else {
			emptyRounds = 0
		}
		if emptyRounds >= y.noGrowthRounds {
			break
		}

		token = extractContinuation(resp)
		if token == "" {
			break
		}
	}

	return result, nil
}
