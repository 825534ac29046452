package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/songsift/songsift/internal/formatter"
	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/scrape"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
	"github.com/songsift/songsift/internal/store"
)

// RunOpts contains the per-run inputs of the pipeline.
type RunOpts struct {
	URL        string // creator page to scrape (required)
	Full       bool   // walk the whole listing instead of the first page
	ReportPath string // local CSV destination for unresolved tracks
}

// TrackOutcome is the reconciliation result for one processed record.
type TrackOutcome struct {
	Record models.TrackRecord
	Status models.TrackStatus
	Match  *services.Track // catalog hit, nil when the lookup found nothing
	Err    error           // per-track failure, contained at the track boundary
}

// RunResult contains all data from one full pipeline run.
type RunResult struct {
	URL            string                // source page
	Channel        string                // channel/page name the titles came from
	Scraped        int                   // raw titles fetched
	Fresh          int                   // titles surviving the duplicate filter
	Processed      []models.TrackRecord  // one record per fresh title
	Outcomes       []TrackOutcome        // per-record reconciliation outcomes
	Appended       int                   // tracks added to the playlist
	AlreadyPresent int                   // tracks already in the playlist
	Unresolved     []models.TrackRecord  // records that could not be placed
	Playlist       *services.Playlist    // reconciliation target, nil when nothing was processed
	ReportPath     string                // written report, "" when no report was written
	RecordSynced   bool                  // whether the record store accepted this run
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Summary condenses the run for persistence and display.
func (r *RunResult) Summary() models.RunSummary {
	return models.RunSummary{
		URL:            r.URL,
		Channel:        r.Channel,
		Scraped:        r.Scraped,
		Fresh:          r.Fresh,
		Appended:       r.Appended,
		AlreadyPresent: r.AlreadyPresent,
		Unresolved:     len(r.Unresolved),
		RecordSynced:   r.RecordSynced,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}

// Engine defines the operations the CLI and TUI layers drive.
type Engine interface {
	// Run executes the full pipeline: fetch titles, filter against the
	// record store, classify, reconcile into the playlist, report and
	// persist.
	Run(ctx context.Context, opts RunOpts, progress chan<- ProgressUpdate) (*RunResult, error)

	// Backup exports every playlist of the authenticated user to the
	// remote record keeper.
	Backup(ctx context.Context, opts BackupOpts, progress chan<- ProgressUpdate) (*BackupResult, error)
}

// Records is the processed-track history the pipeline deduplicates against
// and appends to.
type Records interface {
	Load(ctx context.Context) ([]models.TrackRecord, error)
	Save(ctx context.Context, records []models.TrackRecord) error
}

// SourcePicker returns the title-source driver for a page URL.
type SourcePicker func(pageURL string) (scrape.TitleSource, error)

// PipelineEngine implements Engine over the classifier, catalog and record
// keeper services.
type PipelineEngine struct {
	source      SourcePicker
	classifier  services.Classifier
	catalog     services.Catalog
	records     Records
	keeper      services.RecordKeeper
	playlist    shared.PlaylistConfig
	retryConfig retry.Config
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// NewPipelineEngine creates a new PipelineEngine with the provided services.
func NewPipelineEngine(classifier services.Classifier, catalog services.Catalog, records Records, keeper services.RecordKeeper, cfg *shared.Config) *PipelineEngine {
	return &PipelineEngine{
		source: func(pageURL string) (scrape.TitleSource, error) {
			return scrape.ForURL(pageURL, cfg.Scrape)
		},
		classifier:  classifier,
		catalog:     catalog,
		records:     records,
		keeper:      keeper,
		playlist:    cfg.Playlist,
		retryConfig: retry.DefaultConfig(),
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PipelineEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// Run executes the pipeline in phase order. A failing title source yields
// an empty run, not an error; per-track failures mark the track unresolved
// and the batch proceeds. Only an unreadable record store, an unresolvable
// playlist, or a cancelled context abort the run.
func (e *PipelineEngine) Run(ctx context.Context, opts RunOpts, progress chan<- ProgressUpdate) (*RunResult, error) {
	if e.classifier == nil || e.catalog == nil || e.records == nil {
		return nil, fmt.Errorf("%w: pipeline dependencies not initialized", shared.ErrServiceUnavailable)
	}

	result := &RunResult{URL: opts.URL, StartedAt: e.now()}

	// The history is both the dedup oracle and the persistence target; a
	// store that cannot be read must never be overwritten.
	existing, err := e.records.Load(ctx)
	if err != nil {
		return nil, err
	}

	source, err := e.source(opts.URL)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, fetchTitlesUpdate(opts.URL))
	page, err := source.FetchTitles(ctx, opts.URL, scrape.Options{Full: opts.Full})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, shared.ErrInvalidArgument) {
			return nil, err
		}
		// An unreachable page behaves like a page with nothing on it.
		e.sendProgress(progress, sourceFailedUpdate(err))
		page = &scrape.PageTitles{Channel: scrape.ChannelFromURL(opts.URL)}
	}

	result.Channel = page.Channel
	result.Scraped = len(page.Titles)
	e.sendProgress(progress, titlesFetchedUpdate(page.Channel, len(page.Titles)))

	fresh := store.FilterTitles(page.Titles, store.KnownTitles(existing))
	result.Fresh = len(fresh)
	e.sendProgress(progress, filterUpdate(len(page.Titles), len(fresh)))

	if len(fresh) > 0 {
		// Resolve the playlist before spending classifier calls so a bad
		// catalog session fails the run while it is still free.
		playlist, err := e.catalog.EnsurePlaylist(ctx, e.playlist.Name, e.playlist.Description, e.playlist.Public)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to resolve playlist %q: %v", shared.ErrAPIRequest, e.playlist.Name, err)
		}
		result.Playlist = playlist

		for i, title := range fresh {
			e.sendProgress(progress, classifyUpdate(i+1, len(fresh), title))

			fields, err := e.classifyTitle(ctx, progress, i+1, len(fresh), title)
			if err != nil {
				return nil, err
			}

			result.Processed = append(result.Processed, models.NewTrackRecord(fields, title, page.Channel, result.StartedAt))
		}

		e.sendProgress(progress, reconcileStartUpdate(playlist.Name, len(result.Processed)))
		for i, record := range result.Processed {
			e.sendProgress(progress, reconcileTrackUpdate(i+1, len(result.Processed), record))

			outcome := e.reconcileTrack(ctx, playlist.ID, record)
			if outcome.Err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				e.sendProgress(progress, trackUnresolvedUpdate(i+1, len(result.Processed), record, outcome.Err))
			}

			result.Outcomes = append(result.Outcomes, outcome)
			switch outcome.Status {
			case models.StatusAppended:
				result.Appended++
			case models.StatusAlreadyPresent:
				result.AlreadyPresent++
			case models.StatusUnresolved:
				result.Unresolved = append(result.Unresolved, record)
			}
		}
	}

	if len(result.Unresolved) > 0 && opts.ReportPath != "" {
		e.sendProgress(progress, writeReportUpdate(len(result.Unresolved), opts.ReportPath))
		if err := formatter.WriteUnresolvedReport(opts.ReportPath, result.Unresolved); err != nil {
			e.sendProgress(progress, reportFailedUpdate(err))
		} else {
			result.ReportPath = opts.ReportPath
		}
	}

	// Every processed record joins the history, resolved or not; a failed
	// store write is reported but never unwinds the playlist mutations.
	e.sendProgress(progress, persistUpdate(len(result.Processed), len(existing)+len(result.Processed)))
	if err := e.records.Save(ctx, append(existing, result.Processed...)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.sendProgress(progress, persistFailedUpdate(err))
	} else {
		result.RecordSynced = true
	}

	result.FinishedAt = e.now()
	return result, nil
}

// classifyTitle runs the classification ladder for one title: bounded
// retries with backoff, then a rate-limit suspension with exactly one final
// attempt, then the Unknown default. The returned error is non-nil only
// when the context ended.
func (e *PipelineEngine) classifyTitle(ctx context.Context, progress chan<- ProgressUpdate, step, total int, title string) (models.SongFields, error) {
	var fields models.SongFields
	err := retry.Do(ctx, e.retryConfig, classificationRetryable, func(ctx context.Context) error {
		got, err := e.classifier.ClassifyTitle(ctx, title)
		if err != nil {
			return err
		}
		fields = got
		return nil
	})
	if err == nil {
		return titleCased(fields), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.SongFields{}, ctxErr
	}

	// A shape-invalid response never gets retried: the model answered, it
	// just did not answer the contract.
	if errors.Is(err, shared.ErrMalformedClassification) {
		e.sendProgress(progress, classifyMalformedUpdate(step, total, title))
		return unknownFields(), nil
	}

	wait, ok := retry.WaitHint(err)
	if !ok {
		e.sendProgress(progress, classifyFailedUpdate(step, total, title, err))
		return unknownFields(), nil
	}

	e.sendProgress(progress, classifySuspendedUpdate(step, total, wait))
	if err := e.sleep(ctx, wait); err != nil {
		return models.SongFields{}, err
	}

	got, err := e.classifier.ClassifyTitle(ctx, title)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.SongFields{}, ctxErr
		}
		e.sendProgress(progress, classifyFailedUpdate(step, total, title, err))
		return unknownFields(), nil
	}

	return titleCased(got), nil
}

// reconcileTrack resolves one record against the catalog and ensures
// playlist membership. Failures are contained here so one bad track never
// stops the batch.
func (e *PipelineEngine) reconcileTrack(ctx context.Context, playlistID string, record models.TrackRecord) TrackOutcome {
	outcome := TrackOutcome{Record: record, Status: models.StatusUnresolved}

	// A record naming neither artist nor track cannot identify a song;
	// searching the literal word Unknown only drags in false matches.
	if record.IsUnknown() {
		return outcome
	}

	match, err := e.catalog.SearchTrack(ctx, record.Artist, record.Track)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Match = match

	// Membership is checked against a fresh snapshot on every track so
	// appends earlier in this same run are visible.
	current, err := e.catalog.PlaylistTracks(ctx, playlistID)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	key := shared.NormalizeTrackKey(match.Name, match.Artist)
	for _, member := range current {
		if shared.NormalizeTrackKey(member.Name, member.Artist) == key {
			outcome.Status = models.StatusAlreadyPresent
			return outcome
		}
	}

	if err := e.catalog.AddTrack(ctx, playlistID, match.URI); err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Status = models.StatusAppended
	return outcome
}

// classificationRetryable retries transient and rate-limit failures;
// malformed responses and context errors are permanent.
func classificationRetryable(err error) bool {
	if errors.Is(err, shared.ErrMalformedClassification) {
		return false
	}
	return retry.IsRetryable(err)
}

// titleCased capitalizes every classified field the way records are stored.
func titleCased(fields models.SongFields) models.SongFields {
	return models.SongFields{
		Artist: shared.TitleCase(fields.Artist),
		Track:  shared.TitleCase(fields.Track),
		Title:  shared.TitleCase(fields.Title),
	}
}

func unknownFields() models.SongFields {
	return models.SongFields{
		Artist: models.UnknownField,
		Track:  models.UnknownField,
		Title:  models.UnknownField,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
