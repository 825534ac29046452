package main

import (
	"context"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/repositories"
	"github.com/songsift/songsift/internal/shared"
	"github.com/songsift/songsift/internal/tasks"
	"github.com/urfave/cli/v3"
)

// runCommand is the primary pipeline entrypoint.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Scrape a creator page and sift new titles into the playlist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Usage:    "Creator page to scrape",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Walk the whole listing instead of the first page",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "CSV destination for unresolved tracks",
			},
			&cli.FloatFlag{
				Name:  "temperature",
				Usage: "Classifier sampling temperature",
				Value: defaultTemperature,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Run,
	}
}

// Run executes the full pipeline against one creator page and records the
// outcome in the history database.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	opts := tasks.RunOpts{
		URL:        cmd.String("url"),
		Full:       cmd.Bool("full"),
		ReportPath: cmd.String("output"),
	}
	if opts.ReportPath == "" {
		opts.ReportPath = r.config.Report.Path
	}

	engine, err := r.engineFor(cmd.Float("temperature"))
	if err != nil {
		return err
	}

	r.logger.Info("starting run", "url", opts.URL, "full", opts.Full)
	r.writePlain("Sifting %s\n", opts.URL)
	r.writePlain("Playlist: %s\n\n", r.config.Playlist.Name)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		classifying := false
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchTitles:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.FilterTitles:
				r.writePlain("🔎 %s\n", update.Message)
			case tasks.ClassifyTitles:
				if !classifying {
					classifying = true
					r.writePlain("\n🧠 Classifying %d titles\n", update.Total)
				}
				r.writePlain("   %s\n", update.Message)
			case tasks.ReconcileTracks:
				if update.Step == 0 {
					r.writePlain("\n🎵 %s\n", update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			case tasks.WriteReport, tasks.PersistRecords:
				r.writePlain("💾 %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, opts, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Run Complete!")
	r.writePlain("Channel: %s\n", result.Channel)
	r.writePlain("Scraped: %d titles, %d new\n", result.Scraped, result.Fresh)
	r.writePlain("Appended: %d, already present: %d\n", result.Appended, result.AlreadyPresent)

	if len(result.Unresolved) > 0 {
		r.writePlain("\nUnresolved: %d tracks\n", len(result.Unresolved))
		for i, record := range result.Unresolved {
			r.writePlain("  %d. %s - %s (%s)\n", i+1, record.Artist, record.Track, record.OriginalTitle)
		}
	}
	if result.ReportPath != "" {
		r.writePlain("Report: %s\n", result.ReportPath)
	}
	if !result.RecordSynced {
		r.writePlain("⚠ Record store update failed; the next run will reprocess these titles\n")
	}

	r.recordRun(result)
	return nil
}

// recordRun persists the finished run and its per-track outcomes. History
// is best effort: a missing or unmigrated database logs a warning and the
// run output stands on its own.
func (r *Runner) recordRun(result *tasks.RunResult) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		r.logger.Warnf("run history not recorded: %v", err)
		return
	}
	defer db.Close()

	run := models.NewPersistedRun(0, result.Summary())
	if err := repositories.NewRunRepository(db).Create(run); err != nil {
		r.logger.Warnf("run history not recorded: %v", err)
		return
	}

	tracks := repositories.NewRunTrackRepository(db)
	for _, outcome := range result.Outcomes {
		track := models.NewPersistedRunTrack(0, run.ID(), outcome.Record, outcome.Status)
		if err := tracks.Create(track); err != nil {
			r.logger.Warnf("failed to record track outcome: %v", err)
		}
	}

	r.logger.Info("run recorded", "sequence", run.Sequence(), "tracks", len(result.Outcomes))
}
