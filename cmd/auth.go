package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/songsift/songsift/internal/server"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage service authentication",
		Commands: []*cli.Command{
			{
				Name:  "spotify",
				Usage: "Authorize with Spotify and save the token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.BoolFlag{
						Name:  "manual",
						Usage: "Skip the local callback server and paste the code by hand",
					},
				},
				Action: r.AuthSpotify,
			},
			{
				Name:   "status",
				Usage:  "Show which services are ready",
				Action: r.AuthStatus,
			},
		},
	}
}

// AuthSpotify runs the OAuth2 authorization-code flow. The default path
// listens on the configured callback address; when the listener cannot
// start or no callback arrives, the flow falls back to pasting the
// redirect URL manually.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	if !r.config.SpotifyReady() {
		return fmt.Errorf("%w: set spotify client_id, client_secret and redirect_uri in config.toml or the environment", shared.ErrMissingCredentials)
	}

	spotify, err := services.NewSpotifyService(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	state := shared.GenerateState()
	authURL := spotify.GetAuthURL(state)

	var token *oauth2.Token
	if cmd.Bool("manual") {
		token, err = r.manualOAuth(ctx, spotify, authURL, state)
	} else {
		token, err = r.doOAuth(ctx, spotify, authURL, state)
		if errors.Is(err, shared.ErrTimeout) || errors.Is(err, shared.ErrServiceUnavailable) {
			r.writePlainln("⚠ No callback received. Falling back to manual entry.")
			token, err = r.manualOAuth(ctx, spotify, authURL, state)
		}
	}
	if err != nil {
		return err
	}

	spotify.UseToken(ctx, token)
	if err := spotify.SaveToken(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authenticated with Spotify")
	if path := r.config.Credentials.Spotify.TokenPath; path != "" {
		r.writePlain("Token saved to %s\n", path)
	}
	r.writePlainln("You can now use: songsift run --url <page>")
	return nil
}

// doOAuth serves the OAuth callback locally and waits for the redirect.
func (r *Runner) doOAuth(ctx context.Context, spotify *services.SpotifyService, authURL, state string) (*oauth2.Token, error) {
	handler := server.NewOAuthHandler(spotify.OAuthConfig(), state)
	router := server.NewRouter()
	router.Handler(handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port),
		Handler: router,
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("%w: callback listener failed: %v", shared.ErrServiceUnavailable, err)
		}
	}()

	// Give the listener a moment before sending the user to the browser.
	time.Sleep(100 * time.Millisecond)

	r.writePlainln("Opening browser for Spotify authorization...")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.writePlain("Could not open browser. Visit this URL:\n\n%s\n\n", authURL)
	}
	r.writePlainln("→ Waiting for authorization (2 minute timeout)...")

	select {
	case result := <-handler.Result():
		if result.Error() != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
		}
		if result.Token == nil {
			return nil, fmt.Errorf("%w: callback produced no token", shared.ErrAuthFailed)
		}
		return result.Token, nil
	case err := <-serverErrors:
		return nil, err
	case <-time.After(2 * time.Minute):
		return nil, fmt.Errorf("%w: no callback within 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// manualOAuth prints the authorization URL and exchanges whatever the user
// pastes back, either the full redirect URL or the bare code.
func (r *Runner) manualOAuth(ctx context.Context, spotify *services.SpotifyService, authURL, state string) (*oauth2.Token, error) {
	r.writePlain("Open this URL in your browser:\n\n%s\n\n", authURL)
	r.writePlain("Paste the full redirect URL (or just the code) here:\n> ")

	line, err := r.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	code, err := extractAuthCode(line, state)
	if err != nil {
		return nil, err
	}

	token, err := spotify.OAuthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// extractAuthCode accepts either a bare authorization code or the full
// redirect URL Spotify sent the user to. URLs are checked for an error
// parameter and a state mismatch before the code is pulled out.
func extractAuthCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	if !strings.Contains(input, "://") {
		return input, nil
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("%w: cannot parse redirect URL: %v", shared.ErrInvalidArgument, err)
	}

	query := parsed.Query()
	if errParam := query.Get("error"); errParam != "" {
		return "", fmt.Errorf("%w: %s", shared.ErrAuthFailed, errParam)
	}
	if got := query.Get("state"); got != "" && got != state {
		return "", fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)
	}

	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: no code parameter in URL", shared.ErrInvalidArgument)
	}
	return code, nil
}

func (r *Runner) readLine() (string, error) {
	scanner := bufio.NewScanner(r.input)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: no input", shared.ErrMissingArgument)
	}
	return scanner.Text(), nil
}

// AuthStatus reports which services have usable credentials.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.writePlainHeader("Authentication Status")
	if r.configPath != "" {
		r.writePlain("Config: %s\n\n", r.configPath)
	}

	if !r.config.SpotifyReady() {
		r.writePlainln("✗ Spotify: credentials missing")
	} else if spotify, err := services.NewSpotifyService(r.config.Credentials.Spotify); err != nil {
		r.writePlain("✗ Spotify: %v\n", err)
	} else if err := spotify.LoadToken(ctx); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			r.writePlainln("✗ Spotify: not authenticated (run 'songsift auth spotify')")
		} else {
			r.writePlain("✗ Spotify: %v\n", err)
		}
	} else if token := spotify.Token(); token.Valid() {
		r.writePlain("✓ Spotify: token valid until %s\n", token.Expiry.Format(time.RFC3339))
	} else {
		r.writePlainln("⚠ Spotify: token expired, will refresh on next use")
	}

	if r.config.GroqReady() {
		r.writePlain("✓ Groq: key configured (model %s)\n", r.config.Credentials.Groq.Model)
	} else {
		r.writePlainln("✗ Groq: api key missing")
	}

	if r.config.GistReady() {
		r.writePlain("✓ Gist: record store %s\n", r.config.Credentials.GitHub.RecordsFile)
	} else {
		r.writePlainln("✗ Gist: token or gist id missing, runs will reprocess all titles")
	}

	return nil
}
