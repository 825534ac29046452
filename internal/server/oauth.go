package server

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// OAuthResult is the outcome of one authorization round trip: a token,
// or the reason there is none.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o OAuthResult) Error() error {
	return o.err
}

// OAuthHandler completes Spotify's authorization-code flow. It serves
// the redirect endpoint exactly once: the state parameter is checked,
// the code is exchanged for a token, and the result is handed to
// whoever waits on [OAuthHandler.Result]. Later callbacks are refused,
// so a replayed redirect cannot overwrite the token.
type OAuthHandler struct {
	config  *oauth2.Config
	state   string
	results chan OAuthResult

	mu      sync.Mutex
	claimed bool
}

// NewOAuthHandler creates a callback handler for one authorization
// attempt. The state token must be the same random value embedded in
// the authorization URL.
func NewOAuthHandler(config *oauth2.Config, state string) *OAuthHandler {
	return &OAuthHandler{
		config:  config,
		state:   state,
		results: make(chan OAuthResult, 1),
	}
}

// Routes returns the redirect path this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// Result returns the channel carrying the flow's single outcome. The
// channel is closed after that outcome is delivered.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.claimed {
		h.mu.Unlock()
		http.Error(w, "Authorization already completed", http.StatusGone)
		return
	}
	h.claimed = true
	h.mu.Unlock()

	defer close(h.results)

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.results <- OAuthResult{err: fmt.Errorf("state mismatch on callback")}
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.results <- OAuthResult{err: fmt.Errorf("authorization denied: %s (%s)",
			query.Get("error"), query.Get("error_description"))}
		http.Error(w, "Authorization denied", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.results <- OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)}
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.results <- OAuthResult{Token: token}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, callbackPage)
}

// callbackPage is what the browser shows once the redirect lands; the
// run itself continues in the terminal.
const callbackPage = `<!DOCTYPE html>
<html>
<head>
    <title>songsift</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .card { text-align: center; background: white; padding: 2rem;
                border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="card">
        <h1>✓ Spotify connected</h1>
        <p>songsift has its token. You can close this tab and return to the terminal.</p>
    </div>
</body>
</html>
`
