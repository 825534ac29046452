package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
)

// backupStampLayout stamps the backup document's gist description.
const backupStampLayout = "02/01/2006 15:04:05"

// BackupOpts contains configuration for the playlist backup.
type BackupOpts struct {
	Filename   string  // gist file receiving the backup document
	LocalPath  string  // optional local copy of the document
	NumWorkers int     // concurrent playlist fetches (default 5, max 10)
	RateLimit  float64 // catalog requests per second (default 5)
}

// BackupResult summarizes a playlist backup run.
type BackupResult struct {
	TotalPlaylists int                     // playlists listed on the catalog
	BackedUp       int                     // playlists whose contents were fetched
	TotalTracks    int                     // tracks across all backed-up playlists
	Failed         []BackupFailure         // playlists whose contents could not be fetched
	Document       []models.PlaylistBackup // uploaded document, in listing order
	Filename       string                  // gist file the document went to
	LocalPath      string                  // local copy, "" when none was written
}

// BackupFailure names a playlist that was left out of the document.
type BackupFailure struct {
	PlaylistID   string
	PlaylistName string
	Err          error
}

type backupJob struct {
	index    int
	playlist services.Playlist
}

type backupOutcome struct {
	index  int
	backup models.PlaylistBackup
	err    error
}

// Backup exports every playlist of the authenticated user to the record
// keeper's backup file.
//
// Playlist contents are fetched by a bounded worker pool under a shared
// rate limiter; the uploaded document preserves the catalog's listing
// order, skipping playlists whose contents could not be fetched.
func (e *PipelineEngine) Backup(ctx context.Context, opts BackupOpts, progress chan<- ProgressUpdate) (*BackupResult, error) {
	if e.catalog == nil || e.keeper == nil {
		return nil, fmt.Errorf("%w: backup dependencies not initialized", shared.ErrServiceUnavailable)
	}
	if opts.Filename == "" {
		return nil, fmt.Errorf("%w: backup filename", shared.ErrMissingArgument)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	playlists, err := e.catalog.GetPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list playlists: %v", shared.ErrAPIRequest, err)
	}

	result := &BackupResult{
		TotalPlaylists: len(playlists),
		Filename:       opts.Filename,
	}
	e.sendProgress(progress, backupStartUpdate(len(playlists)))

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan backupJob, len(playlists))
	outcomes := make(chan backupOutcome, len(playlists))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.backupWorker(ctx, &wg, limiter, jobs, outcomes)
	}

	for i, playlist := range playlists {
		jobs <- backupJob{index: i, playlist: playlist}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	backups := make([]models.PlaylistBackup, len(playlists))
	failed := make([]bool, len(playlists))
	completed := 0

	for outcome := range outcomes {
		completed++
		if outcome.err != nil {
			failed[outcome.index] = true
			result.Failed = append(result.Failed, BackupFailure{
				PlaylistID:   outcome.backup.ID,
				PlaylistName: outcome.backup.Name,
				Err:          outcome.err,
			})
			e.sendProgress(progress, backupFailedUpdate(completed, len(playlists), outcome.backup.Name, outcome.err))
			continue
		}

		backups[outcome.index] = outcome.backup
		result.BackedUp++
		result.TotalTracks += len(outcome.backup.Tracks)
		e.sendProgress(progress, backupCompletedUpdate(completed, len(playlists), outcome.backup.Name, len(outcome.backup.Tracks)))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	document := make([]models.PlaylistBackup, 0, len(playlists))
	for i, backup := range backups {
		if failed[i] {
			continue
		}
		document = append(document, backup)
	}
	result.Document = document

	content, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return result, fmt.Errorf("failed to encode backup document: %w", err)
	}

	e.sendProgress(progress, backupUploadUpdate(opts.Filename))
	description := fmt.Sprintf("Backup taken at %s", e.now().Format(backupStampLayout))
	if err := e.keeper.UpdateFile(ctx, opts.Filename, description, content); err != nil {
		return result, fmt.Errorf("failed to upload backup: %w", err)
	}

	if opts.LocalPath != "" {
		if err := os.WriteFile(opts.LocalPath, content, 0644); err != nil {
			return result, fmt.Errorf("backup uploaded but local copy failed: %w", err)
		}
		result.LocalPath = opts.LocalPath
	}

	return result, nil
}

// backupWorker drains the jobs channel, fetching one playlist's contents
// per job under the shared limiter.
func (e *PipelineEngine) backupWorker(ctx context.Context, wg *sync.WaitGroup, limiter *rate.Limiter, jobs <-chan backupJob, outcomes chan<- backupOutcome) {
	defer wg.Done()

	for job := range jobs {
		backup := models.PlaylistBackup{
			ID:     job.playlist.ID,
			Name:   job.playlist.Name,
			Tracks: []models.TrackBackup{},
		}

		if err := limiter.Wait(ctx); err != nil {
			outcomes <- backupOutcome{index: job.index, backup: backup, err: err}
			return
		}

		tracks, err := e.catalog.PlaylistTracks(ctx, job.playlist.ID)
		if err != nil {
			outcomes <- backupOutcome{index: job.index, backup: backup, err: err}
			continue
		}

		for _, track := range tracks {
			backup.Tracks = append(backup.Tracks, models.TrackBackup{
				TrackID: track.ID,
				Artist:  track.Artist,
				Name:    track.Name,
			})
		}

		outcomes <- backupOutcome{index: job.index, backup: backup}
	}
}
