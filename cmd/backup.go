package main

import (
	"context"

	"github.com/songsift/songsift/internal/tasks"
	"github.com/urfave/cli/v3"
)

func backupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Export every playlist to the backing gist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Gist file receiving the backup document",
			},
			&cli.StringFlag{
				Name:  "local",
				Usage: "Also write the document to this local path",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent playlist fetches",
				Value: 5,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Catalog requests per second",
				Value: 5,
			},
		},
		Action: r.Backup,
	}
}

// Backup exports the full playlist collection through the engine's worker
// pool and prints a per-playlist progress line as each one lands.
func (r *Runner) Backup(ctx context.Context, cmd *cli.Command) error {
	opts := tasks.BackupOpts{
		Filename:   cmd.String("file"),
		LocalPath:  cmd.String("local"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	}
	if opts.Filename == "" {
		opts.Filename = r.config.Credentials.GitHub.BackupFile
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.writePlain("%s\n", update.Message)
		}
	}()

	result, err := r.engine.Backup(ctx, opts, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Backup Complete!")
	r.writePlain("Playlists: %d of %d backed up\n", result.BackedUp, result.TotalPlaylists)
	r.writePlain("Tracks: %d\n", result.TotalTracks)
	if len(result.Failed) > 0 {
		r.writePlain("\nFailed: %d playlists\n", len(result.Failed))
		for _, failure := range result.Failed {
			r.writePlain("  ✗ %s: %v\n", failure.PlaylistName, failure.Err)
		}
	}
	r.writePlain("Document: %s\n", result.Filename)
	if result.LocalPath != "" {
		r.writePlain("Local copy: %s\n", result.LocalPath)
	}
	return nil
}
