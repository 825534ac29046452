package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/songsift/songsift/internal/shared"
	"github.com/songsift/songsift/internal/tasks"
	"github.com/songsift/songsift/internal/ui"
	"github.com/urfave/cli/v3"
)

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Run the pipeline from an interactive terminal UI",
		Action:  r.TUI,
	}
}

// TUI launches the interactive terminal UI for a pipeline run.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.engine == nil {
		return fmt.Errorf("%w: pipeline engine not initialized", shared.ErrServiceUnavailable)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/songsift-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	opts := tasks.RunOpts{ReportPath: r.config.Report.Path}
	model := ui.NewModel(ctx, r.engine, opts, r.config.Playlist)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
