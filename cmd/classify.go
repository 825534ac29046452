package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/shared"
	"github.com/urfave/cli/v3"
)

func classifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "Classify a single title without touching the playlist",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "title",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: r.Classify,
	}
}

// Classify sends one title through the classifier and prints the raw
// extraction, which is the tool for checking why a run filed a title
// under Unknown. No retry ladder: a throttled or malformed response is
// shown as is.
func (r *Runner) Classify(ctx context.Context, cmd *cli.Command) error {
	if r.classifier == nil {
		return fmt.Errorf("%w: classifier is not configured", shared.ErrServiceUnavailable)
	}

	title := cmd.StringArg("title")
	if title == "" {
		return fmt.Errorf("%w: title", shared.ErrMissingArgument)
	}

	fields, err := r.classifier.ClassifyTitle(ctx, title)
	if err != nil {
		if wait, ok := retry.WaitHint(err); ok {
			r.writePlain("Rate limited by %s, retry in %s\n", r.classifier.Name(), wait)
			return nil
		}
		if errors.Is(err, shared.ErrMalformedClassification) {
			r.writePlain("Malformed response: %v\n", err)
			return nil
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(fields, true)
	}

	r.writePlain("Artist: %s\n", fields.Artist)
	r.writePlain("Track:  %s\n", fields.Track)
	r.writePlain("Title:  %s\n", fields.Title)
	return nil
}
