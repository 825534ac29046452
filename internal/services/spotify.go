// Spotify API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// spotifyScopes covers profile reads plus playlist writes for reconciliation.
var spotifyScopes = []string{
	"user-read-private",
	"user-read-email",
	"playlist-modify-public",
	"playlist-modify-private",
}

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"` // premium, free, etc.
	Followers   followers `json:"followers"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistTrackCount struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Owner       Owner              `json:"owner"`
	Public      bool               `json:"public"`
	Tracks      playlistTrackCount `json:"tracks"`
	URI         string             `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
type SpotifyPlaylistTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifyPlaylist `json:"items"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
}

// SpotifyPaginatedPlaylistTracks represents one page of playlist contents.
type SpotifyPaginatedPlaylistTracks struct {
	Items    []SpotifyPlaylistTrack `json:"items"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
	Next     *string                `json:"next"`
	Previous *string                `json:"previous"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyErrorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements the [Catalog] interface for Spotify API
// interactions. Uses [oauth2] for authentication and paces all requests
// through a shared [rate.Limiter] so concurrent callers (the backup worker
// pool) stay under the API quota together.
type SpotifyService struct {
	config     *oauth2.Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokenPath  string

	mu             sync.RWMutex
	token          *oauth2.Token
	userID         string
	onTokenRefresh func(token *oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(creds shared.SpotifyConfig) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		baseURL:    spotifyBaseURL,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		tokenPath:  creds.TokenPath,
		userID:     creds.UserID,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// RedirectURI returns the configured OAuth callback address.
func (s *SpotifyService) RedirectURI() string {
	return s.config.RedirectURL
}

// OAuthConfig exposes the OAuth2 configuration for callback handling.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// Authenticate exchanges an authorization code for a token and installs it.
func (s *SpotifyService) Authenticate(ctx context.Context, authCode string) error {
	if authCode == "" {
		return fmt.Errorf("%w: authorization code", shared.ErrMissingCredentials)
	}

	token, err := s.config.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}

	s.UseToken(ctx, token)
	return s.SaveToken(token)
}

// UseToken installs an existing token. Subsequent requests go through an
// [oauth2] client that refreshes the token as needed; refreshed tokens are
// persisted back to the token file.
func (s *SpotifyService) UseToken(ctx context.Context, token *oauth2.Token) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		callback: s.handleTokenRefresh,
	}
	s.httpClient = oauth2.NewClient(ctx, source)
}

// LoadToken reads a previously saved token from the token file and installs
// it. Returns [shared.ErrNotAuthenticated] when no token has been saved yet.
func (s *SpotifyService) LoadToken(ctx context.Context) error {
	if s.tokenPath == "" {
		return fmt.Errorf("no token path configured: %w", shared.ErrNotAuthenticated)
	}

	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no saved token at %s: %w", s.tokenPath, shared.ErrNotAuthenticated)
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("failed to parse token file: %w", err)
	}

	s.UseToken(ctx, &token)
	return nil
}

// SaveToken writes the token to the token file so later runs skip the
// browser flow. A service without a token path keeps tokens in memory only.
func (s *SpotifyService) SaveToken(token *oauth2.Token) error {
	if s.tokenPath == "" {
		return nil
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := os.WriteFile(s.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// Token returns the currently installed token, or nil before authentication.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetTokenRefreshCallback registers a function invoked whenever the OAuth
// client obtains a fresh access token.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(token *oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenRefresh = fn
}

func (s *SpotifyService) handleTokenRefresh(token *oauth2.Token) {
	s.mu.Lock()
	s.token = token
	callback := s.onTokenRefresh
	s.mu.Unlock()

	// best effort: a failed write means the next run falls back to the
	// browser flow
	_ = s.SaveToken(token)
	if callback != nil {
		callback(token)
	}
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports token
// changes so they can be persisted.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(token *oauth2.Token)

	mu         sync.Mutex
	lastAccess string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.lastAccess
	if changed {
		r.lastAccess = token.AccessToken
	}
	r.mu.Unlock()

	if changed && r.callback != nil {
		func() {
			defer func() { _ = recover() }()
			r.callback(token)
		}()
	}

	return token, nil
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	_, err := s.doRequestStatus(ctx, method, endpoint, body, result)
	return err
}

// doRequestStatus is doRequest for callers that need the response status,
// e.g. the append endpoint which must answer 201.
func (s *SpotifyService) doRequestStatus(ctx context.Context, method, endpoint string, body, result any) (int, error) {
	token := s.Token()
	if token == nil {
		return 0, fmt.Errorf("call Authenticate or LoadToken first: %w", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	apiURL := s.baseURL + endpoint

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, shared.ErrTokenExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, spotifyRateLimitError(resp)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if msg := spotifyErrorMessage(resp.Body); msg != "" {
			return resp.StatusCode, fmt.Errorf("%w: spotify status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
		}
		return resp.StatusCode, fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func spotifyRateLimitError(resp *http.Response) error {
	rle := &retry.RateLimitError{
		StatusCode: resp.StatusCode,
		Message:    spotifyErrorMessage(resp.Body),
	}
	if after := resp.Header.Get("Retry-After"); after != "" {
		if seconds, err := strconv.Atoi(after); err == nil {
			rle.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return rle
}

func spotifyErrorMessage(body io.Reader) string {
	var errResp spotifyErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUserID returns the configured user ID, resolving it from the
// profile endpoint on first use when the config leaves it empty.
func (s *SpotifyService) CurrentUserID(ctx context.Context) (string, error) {
	s.mu.RLock()
	userID := s.userID
	s.mu.RUnlock()
	if userID != "" {
		return userID, nil
	}

	user, err := s.UserProfile(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.userID = user.ID
	s.mu.Unlock()
	return user.ID, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Catalog interface implementation

// SearchTrack searches the catalog for "artist:{artist} track:{track}" and
// returns the first hit.
func (s *SpotifyService) SearchTrack(ctx context.Context, artist, track string) (*Track, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("artist:%s track:%s", artist, track))
	query.Set("type", "track")

	var response spotifySearchResponse
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+query.Encode(), nil, &response); err != nil {
		return nil, err
	}

	if len(response.Tracks.Items) == 0 {
		return nil, fmt.Errorf("%q by %q: %w", track, artist, shared.ErrTrackNotFound)
	}

	hit := response.Tracks.Items[0]
	result := &Track{ID: hit.ID, URI: hit.URI, Name: hit.Name}
	if len(hit.Artists) > 0 {
		result.Artist = hit.Artists[0].Name
	}

	return result, nil
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var allPlaylists []Playlist
	limit := 50
	offset := 0

	for {
		response, err := s.UserPlaylists(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			allPlaylists = append(allPlaylists, Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
			})
		}

		if response.Next == nil {
			break
		}
		offset += limit
	}

	return allPlaylists, nil
}

// CreatePlaylist creates a new playlist for the authenticated user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string, public bool) (*Playlist, error) {
	userID, err := s.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var created SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", userID)
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	return &Playlist{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
		TrackCount:  created.Tracks.Total,
		Public:      created.Public,
	}, nil
}

// FindPlaylist scans every page of the user's playlists for an exact name
// match, returning [shared.ErrPlaylistNotFound] when the full listing has
// none.
func (s *SpotifyService) FindPlaylist(ctx context.Context, name string) (*Playlist, error) {
	playlists, err := s.GetPlaylists(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range playlists {
		if p.Name == name {
			return &p, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", shared.ErrPlaylistNotFound, name)
}

// EnsurePlaylist resolves a playlist by name, creating it only when the
// full listing has no match.
func (s *SpotifyService) EnsurePlaylist(ctx context.Context, name, description string, public bool) (*Playlist, error) {
	playlist, err := s.FindPlaylist(ctx, name)
	if errors.Is(err, shared.ErrPlaylistNotFound) {
		return s.CreatePlaylist(ctx, name, description, public)
	}
	if err != nil {
		return nil, err
	}
	return playlist, nil
}

// PlaylistTracks retrieves the full current contents of a playlist, paging
// through until the listing is exhausted.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	var tracks []Track
	limit := 100
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", playlistID, limit, offset)

		var page SpotifyPaginatedPlaylistTracks
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			track := Track{ID: item.Track.ID, URI: item.Track.URI, Name: item.Track.Name}
			if len(item.Track.Artists) > 0 {
				track.Artist = item.Track.Artists[0].Name
			}
			tracks = append(tracks, track)
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// AddTrack appends a single track to a playlist. The append endpoint
// answers 201 on success; anything else is a failure.
func (s *SpotifyService) AddTrack(ctx context.Context, playlistID, trackURI string) error {
	body := map[string][]string{"uris": {trackURI}}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)

	status, err := s.doRequestStatus(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("%w: expected 201 appending track, got %d", shared.ErrAPIRequest, status)
	}

	return nil
}
