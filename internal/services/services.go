// package services implements clients for the HTTP APIs the pipeline
// depends on: Spotify, Groq, and GitHub gists.
package services

import (
	"context"

	"github.com/songsift/songsift/internal/models"
)

// Classifier extracts structured song fields from one raw video title.
type Classifier interface {
	// ClassifyTitle asks the model to pull {artist, track, title} out of a
	// title. Returns [shared.ErrMalformedClassification] when the response
	// is not the expected JSON object and a [retry.RateLimitError] when the
	// upstream throttled the call.
	ClassifyTitle(ctx context.Context, title string) (models.SongFields, error)

	// Name returns the name of the classification provider (e.g., "Groq")
	Name() string
}

// Catalog defines the interface for the music service playlists are
// reconciled into.
type Catalog interface {
	// SearchTrack searches the catalog by artist and track name.
	// Returns the first match or [shared.ErrTrackNotFound].
	SearchTrack(ctx context.Context, artist, track string) (*Track, error)

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]Playlist, error)

	// EnsurePlaylist returns the playlist with the given name, creating it
	// when no playlist of that name exists yet.
	EnsurePlaylist(ctx context.Context, name, description string, public bool) (*Playlist, error)

	// PlaylistTracks retrieves the full current contents of a playlist.
	PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error)

	// AddTrack appends a single track to a playlist by URI.
	AddTrack(ctx context.Context, playlistID, trackURI string) error

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// RecordKeeper defines the interface for the remote document store holding
// processed-track records and playlist backups.
type RecordKeeper interface {
	// FetchFile returns the raw content of a named file in the store.
	// Returns [shared.ErrFileNotFound] when the file does not exist yet.
	FetchFile(ctx context.Context, filename string) ([]byte, error)

	// UpdateFile replaces the content of a named file and stamps the
	// store with a description of the update.
	UpdateFile(ctx context.Context, filename, description string, content []byte) error

	// Name returns the name of the store (e.g., "GitHub Gist")
	Name() string
}

// Playlist represents a playlist on the catalog service
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
}

// Track represents a catalog hit: the URI to append plus the catalog's own
// spelling of the track name and primary artist, which is what membership
// checks compare against.
type Track struct {
	ID     string
	URI    string
	Name   string
	Artist string
}
