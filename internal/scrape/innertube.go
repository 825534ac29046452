// Reduced client for YouTube's internal innertube browse API.
//
// The response types cover only the paths this tool reads: the Videos tab
// rich grid, continuation appends, and channel metadata.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/shared"
)

const (
	browseEndpoint = "https://www.youtube.com/youtubei/v1/browse"

	browseClientName    = "WEB"
	browseClientVersion = "2.20240101.00.00"

	// videosTabParams selects the Videos tab of a channel browse.
	videosTabParams = "EgZ2aWRlb3PyBgQKAjoA"
)

type browseRequest struct {
	Context      browseContext `json:"context"`
	BrowseID     string        `json:"browseId,omitempty"`
	Continuation string        `json:"continuation,omitempty"`
	Params       string        `json:"params,omitempty"`
}

type browseContext struct {
	Client browseClient `json:"client"`
}

type browseClient struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	HL            string `json:"hl"`
	GL            string `json:"gl"`
}

type browseResponse struct {
	Contents           *browseContents    `json:"contents,omitempty"`
	OnResponseReceived []onResponseAction `json:"onResponseReceivedActions,omitempty"`
	Metadata           *channelMetadata   `json:"metadata,omitempty"`
}

type browseContents struct {
	TwoColumnBrowseResultsRenderer *twoColumnRenderer `json:"twoColumnBrowseResultsRenderer,omitempty"`
}

type twoColumnRenderer struct {
	Tabs []browseTab `json:"tabs,omitempty"`
}

type browseTab struct {
	TabRenderer *tabRenderer `json:"tabRenderer,omitempty"`
}

type tabRenderer struct {
	Title    string      `json:"title,omitempty"`
	Selected bool        `json:"selected,omitempty"`
	Content  *tabContent `json:"content,omitempty"`
}

type tabContent struct {
	RichGridRenderer *richGridRenderer `json:"richGridRenderer,omitempty"`
}

type richGridRenderer struct {
	Contents []browseItem `json:"contents,omitempty"`
}

// browseItem is one grid or continuation entry: either a video or the
// continuation marker carrying the next page token.
type browseItem struct {
	RichItemRenderer         *richItemRenderer         `json:"richItemRenderer,omitempty"`
	ContinuationItemRenderer *continuationItemRenderer `json:"continuationItemRenderer,omitempty"`
}

type richItemRenderer struct {
	Content *richItemContent `json:"content,omitempty"`
}

type richItemContent struct {
	VideoRenderer *videoRenderer `json:"videoRenderer,omitempty"`
}

type videoRenderer struct {
	VideoID string    `json:"videoId,omitempty"`
	Title   *textRuns `json:"title,omitempty"`
}

type continuationItemRenderer struct {
	ContinuationEndpoint *continuationEndpoint `json:"continuationEndpoint,omitempty"`
}

type continuationEndpoint struct {
	ContinuationCommand *continuationCommand `json:"continuationCommand,omitempty"`
}

type continuationCommand struct {
	Token string `json:"token,omitempty"`
}

type onResponseAction struct {
	AppendContinuationItemsAction *appendContinuationItemsAction `json:"appendContinuationItemsAction,omitempty"`
}

type appendContinuationItemsAction struct {
	ContinuationItems []browseItem `json:"continuationItems,omitempty"`
}

type channelMetadata struct {
	ChannelMetadataRenderer *channelMetadataRenderer `json:"channelMetadataRenderer,omitempty"`
}

type channelMetadataRenderer struct {
	Title      string `json:"title,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

type textRuns struct {
	Runs       []textRun `json:"runs,omitempty"`
	SimpleText string    `json:"simpleText,omitempty"`
}

type textRun struct {
	Text string `json:"text,omitempty"`
}

// getText extracts plain text from a title node.
func (t *textRuns) getText() string {
	if t == nil {
		return ""
	}
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var parts []string
	for _, run := range t.Runs {
		parts = append(parts, run.Text)
	}
	return strings.Join(parts, "")
}

// innertubeClient posts browse requests with retry on transient failures.
type innertubeClient struct {
	endpoint    string
	httpClient  *http.Client
	retryConfig retry.Config
}

func newInnertubeClient() *innertubeClient {
	return &innertubeClient{
		endpoint:    browseEndpoint,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.DefaultConfig(),
	}
}

// browse fetches one listing page: the initial page when continuation is
// empty, otherwise the page behind the token.
func (c *innertubeClient) browse(ctx context.Context, browseID, continuation string) (*browseResponse, error) {
	req := &browseRequest{
		Context: browseContext{
			Client: browseClient{
				ClientName:    browseClientName,
				ClientVersion: browseClientVersion,
				HL:            "en",
				GL:            "US",
			},
		},
	}

	if continuation != "" {
		req.Continuation = continuation
	} else {
		req.BrowseID = browseID
		req.Params = videosTabParams
	}

	var resp *browseResponse
	err := retry.Do(ctx, c.retryConfig, browseErrorClassifier, func(ctx context.Context) error {
		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to encode browse request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", browserUserAgent)
		httpReq.Header.Set("Origin", "https://www.youtube.com")
		httpReq.Header.Set("Referer", "https://www.youtube.com/")

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("browse request failed: %w", err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode == http.StatusTooManyRequests {
			rle := &retry.RateLimitError{StatusCode: httpResp.StatusCode}
			if after := httpResp.Header.Get("Retry-After"); after != "" {
				if seconds, convErr := strconv.Atoi(after); convErr == nil {
					rle.RetryAfter = time.Duration(seconds) * time.Second
				}
			}
			return rle
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return fmt.Errorf("%w: browse status %d", shared.ErrAPIRequest, httpResp.StatusCode)
		}

		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return fmt.Errorf("failed to decode browse response: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return resp, nil
}

// browseErrorClassifier retries rate limits and transient failures but not
// context cancellation.
func browseErrorClassifier(err error) bool {
	if err == nil {
		return false
	}

	var rle *retry.RateLimitError
	if errors.As(err, &rle) {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return true
}

// extractTitles pulls the video titles out of one browse response, covering
// both the initial grid and continuation appends.
func extractTitles(resp *browseResponse) []string {
	if resp == nil {
		return nil
	}

	var titles []string

	appendItem := func(item browseItem) {
		if item.RichItemRenderer == nil || item.RichItemRenderer.Content == nil {
			return
		}
		video := item.RichItemRenderer.Content.VideoRenderer
		if video == nil {
			return
		}
		if title := strings.TrimSpace(video.Title.getText()); title != "" {
			titles = append(titles, title)
		}
	}

	for _, action := range resp.OnResponseReceived {
		if action.AppendContinuationItemsAction == nil {
			continue
		}
		for _, item := range action.AppendContinuationItemsAction.ContinuationItems {
			appendItem(item)
		}
	}

	for _, item := range gridItems(resp) {
		appendItem(item)
	}

	return titles
}

// extractContinuation returns the next page token, or "" when the listing
// is exhausted.
func extractContinuation(resp *browseResponse) string {
	if resp == nil {
		return ""
	}

	tokenOf := func(item browseItem) string {
		if item.ContinuationItemRenderer == nil ||
			item.ContinuationItemRenderer.ContinuationEndpoint == nil ||
			item.ContinuationItemRenderer.ContinuationEndpoint.ContinuationCommand == nil {
			return ""
		}
		return item.ContinuationItemRenderer.ContinuationEndpoint.ContinuationCommand.Token
	}

	for _, action := range resp.OnResponseReceived {
		if action.AppendContinuationItemsAction == nil {
			continue
		}
		for _, item := range action.AppendContinuationItemsAction.ContinuationItems {
			if token := tokenOf(item); token != "" {
				return token
			}
		}
	}

	for _, item := range gridItems(resp) {
		if token := tokenOf(item); token != "" {
			return token
		}
	}

	return ""
}

// gridItems returns the rich grid entries of the initial page response.
func gridItems(resp *browseResponse) []browseItem {
	if resp.Contents == nil || resp.Contents.TwoColumnBrowseResultsRenderer == nil {
		return nil
	}

	for _, tab := range resp.Contents.TwoColumnBrowseResultsRenderer.Tabs {
		if tab.TabRenderer == nil || tab.TabRenderer.Content == nil {
			continue
		}
		if grid := tab.TabRenderer.Content.RichGridRenderer; grid != nil {
			return grid.Contents
		}
	}

	return nil
}

// extractChannelTitle returns the channel's display name from response
// metadata, when present.
func extractChannelTitle(resp *browseResponse) string {
	if resp == nil || resp.Metadata == nil || resp.Metadata.ChannelMetadataRenderer == nil {
		return ""
	}
	return resp.Metadata.ChannelMetadataRenderer.Title
}
