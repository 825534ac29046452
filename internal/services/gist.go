// GitHub gist implementation of [RecordKeeper]
//
// Gist API reference: https://docs.github.com/en/rest/gists/gists
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/shared"
)

const githubBaseURL = "https://api.github.com"

type gistFile struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
	Size      int    `json:"size"`
}

type gistDetail struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Files       map[string]gistFile `json:"files"`
	UpdatedAt   string              `json:"updated_at"`
}

type gistFileUpdate struct {
	Content string `json:"content"`
}

type gistPatch struct {
	Description string                    `json:"description,omitempty"`
	Files       map[string]gistFileUpdate `json:"files"`
}

type githubErrorResponse struct {
	Message string `json:"message"`
}

// GistService implements the [RecordKeeper] interface over a single gist
// whose files hold the record store, the playlist backup, and the optional
// credentials bootstrap document.
type GistService struct {
	baseURL    string
	token      string
	gistID     string
	httpClient *http.Client
}

// NewGistService creates a new gist store client.
func NewGistService(creds shared.GitHubConfig) (*GistService, error) {
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: github token", shared.ErrMissingCredentials)
	}
	if creds.GistID == "" {
		return nil, fmt.Errorf("%w: gist_id", shared.ErrMissingCredentials)
	}

	return &GistService{
		baseURL:    githubBaseURL,
		token:      creds.Token,
		gistID:     creds.GistID,
		httpClient: http.DefaultClient,
	}, nil
}

func (g *GistService) Name() string {
	return "GitHub Gist"
}

func (g *GistService) do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if err := githubStatusError(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// githubStatusError maps non-2xx responses to typed errors. GitHub signals
// rate limiting with 429 or with 403 plus a Retry-After header.
func githubStatusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	retryAfter := time.Duration(0)
	if after := resp.Header.Get("Retry-After"); after != "" {
		if seconds, err := strconv.Atoi(after); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && retryAfter > 0) {
		return &retry.RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Message:    githubErrorMessage(resp.Body),
		}
	}

	if msg := githubErrorMessage(resp.Body); msg != "" {
		return fmt.Errorf("%w: github status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: github status %d", shared.ErrAPIRequest, resp.StatusCode)
}

func githubErrorMessage(body io.Reader) string {
	var errResp githubErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err != nil {
		return ""
	}
	return errResp.Message
}

// FetchFile returns the raw content of one file in the gist. Large files
// come back truncated from the detail endpoint, so those are re-fetched
// from their raw URL.
func (g *GistService) FetchFile(ctx context.Context, filename string) ([]byte, error) {
	resp, err := g.do(ctx, http.MethodGet, fmt.Sprintf("%s/gists/%s", g.baseURL, g.gistID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var detail gistDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("failed to decode gist: %w", err)
	}

	file, ok := detail.Files[filename]
	if !ok {
		return nil, fmt.Errorf("gist file %q: %w", filename, shared.ErrFileNotFound)
	}

	if !file.Truncated {
		return []byte(file.Content), nil
	}

	raw, err := g.do(ctx, http.MethodGet, file.RawURL, nil)
	if err != nil {
		return nil, err
	}
	defer raw.Body.Close()

	content, err := io.ReadAll(raw.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw gist content: %w", err)
	}

	return content, nil
}

// UpdateFile replaces one file's content and restamps the gist description.
func (g *GistService) UpdateFile(ctx context.Context, filename, description string, content []byte) error {
	patch := gistPatch{
		Description: description,
		Files: map[string]gistFileUpdate{
			filename: {Content: string(content)},
		},
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode gist patch: %w", err)
	}

	resp, err := g.do(ctx, http.MethodPatch, fmt.Sprintf("%s/gists/%s", g.baseURL, g.gistID), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}
