package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/songsift/songsift/internal/formatter"
	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/repositories"
	"github.com/songsift/songsift/internal/shared"
	"github.com/urfave/cli/v3"
)

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse past runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Only runs for this page",
					},
					&cli.StringFlag{
						Name:  "channel",
						Usage: "Only runs for this channel",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show one run with its per-track outcomes",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "sequence",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "markdown",
						Usage: "Render as Markdown",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.HistoryShow,
			},
		},
	}
}

func (r *Runner) openHistory() (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, nil
}

// HistoryList prints recorded runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	criteria := map[string]any{
		"limit":   cmd.Int("limit"),
		"url":     cmd.String("url"),
		"channel": cmd.String("channel"),
	}

	runs, err := repositories.NewRunRepository(db).List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		r.writePlainln("No runs recorded yet")
		return nil
	}
	return r.writePlain("%s", formatter.RunsToText(runs))
}

// HistoryShow prints one run and every track outcome it produced.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	sequence, err := strconv.Atoi(cmd.StringArg("sequence"))
	if err != nil {
		return fmt.Errorf("%w: sequence must be a number", shared.ErrInvalidArgument)
	}

	db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := repositories.NewRunRepository(db).GetBySequence(sequence)
	if err != nil {
		return err
	}

	tracks, err := repositories.NewRunTrackRepository(db).ListByRun(run.ID())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			Run    *models.PersistedRun        `json:"run"`
			Tracks []*models.PersistedRunTrack `json:"tracks"`
		}{run, tracks}, true)
	}
	if cmd.Bool("markdown") {
		return r.writePlain("%s", formatter.RunToMarkdown(run, tracks))
	}
	return r.writePlain("%s", formatter.RunToText(run, tracks))
}
