// Package services implements the HTTP clients behind the pipeline: the
// [Catalog] interface for Spotify, the [Classifier] interface for Groq, and
// the [RecordKeeper] interface for the GitHub gist that persists
// processed-track records between runs.
//
// # Spotify
//
// [SpotifyService] uses OAuth2 (authorization-code flow) with automatic
// token refresh; refreshed tokens are written back to the configured token
// file so subsequent runs skip the browser. All requests share one
// [rate.Limiter], which also paces the backup worker pool.
//
// # Groq
//
// [GroqService] talks to Groq's OpenAI-compatible chat-completions endpoint.
// One title in, one JSON object out; the response parser enforces the
// {artist, track, title} contract and reports anything else as
// [shared.ErrMalformedClassification]. The retry ladder lives in the
// pipeline, not here, so a rate-limited call can suspend the whole run
// rather than one request.
//
// # GitHub Gist
//
// [GistService] reads and patches files of a single gist. Truncated files
// are re-fetched from their raw URL. Updates restamp the gist description
// with the run timestamp, which doubles as an audit trail.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrNotAuthenticated] : no token installed yet
//   - [shared.ErrTokenExpired] : Spotify answered 401, reauthorization needed
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrTrackNotFound] : catalog search came back empty
//   - [shared.ErrFileNotFound] : gist file does not exist yet
//   - [shared.ErrMalformedClassification] : model answer was not the expected JSON
//
// Rate-limited responses become [retry.RateLimitError] values carrying the
// Retry-After hint, which [retry.WaitHint] inspects.
package services
