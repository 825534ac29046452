package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/songsift/songsift/internal/shared"
	"github.com/urfave/cli/v3"
)

func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Inspect the Spotify side of things",
		Commands: []*cli.Command{
			{
				Name:  "playlists",
				Usage: "List the authenticated user's playlists",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to show",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Indent JSON output",
					},
				},
				Action: r.SpotifyPlaylists,
			},
			{
				Name:  "search",
				Usage: "Search the catalog for one track",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "artist",
						Usage:    "Artist name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "track",
						Usage:    "Track name",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Indent JSON output",
						Value: true,
					},
				},
				Action: r.SpotifySearch,
			},
		},
	}
}

// SpotifyPlaylists lists the authenticated user's playlists.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	if r.catalog == nil {
		return fmt.Errorf("%w: spotify is not configured", shared.ErrServiceUnavailable)
	}

	playlists, err := r.catalog.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	limit := cmd.Int("limit")
	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Playlists (%d)", len(playlists)))
	for _, playlist := range playlists {
		visibility := "private"
		if playlist.Public {
			visibility = "public"
		}
		r.writePlain("%s\n", playlist.Name)
		if playlist.Description != "" {
			r.writePlain("  %s\n", playlist.Description)
		}
		r.writePlain("  ID: %s | Tracks: %d | %s\n\n", playlist.ID, playlist.TrackCount, visibility)
	}
	return nil
}

// SpotifySearch looks up a single track the same way the reconcile phase
// does, which makes it the tool for checking why a title went unresolved.
func (r *Runner) SpotifySearch(ctx context.Context, cmd *cli.Command) error {
	if r.catalog == nil {
		return fmt.Errorf("%w: spotify is not configured", shared.ErrServiceUnavailable)
	}

	artist := cmd.String("artist")
	name := cmd.String("track")

	track, err := r.catalog.SearchTrack(ctx, artist, name)
	if err != nil {
		if errors.Is(err, shared.ErrTrackNotFound) {
			r.writePlain("No match for %s - %s\n", artist, name)
			return nil
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(track, cmd.Bool("pretty"))
	}

	r.writePlain("Track:  %s\n", track.Name)
	r.writePlain("Artist: %s\n", track.Artist)
	r.writePlain("URI:    %s\n", track.URI)
	r.writePlain("ID:     %s\n", track.ID)
	return nil
}
