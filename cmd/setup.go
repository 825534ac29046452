package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/songsift/songsift/internal/shared"
	"github.com/urfave/cli/v3"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and the run history database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// Setup writes a starter config file when none exists and migrates the
// run history database to the current schema.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	config := r.config

	if _, err := os.Stat(path); err == nil {
		loaded, err := shared.LoadConfig(path)
		if err != nil {
			r.logger.Warnf("failed to load config, using defaults: %v", err)
		} else {
			config = loaded
		}
		r.writePlain("Config file exists at %s\n", path)
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := shared.CreateConfigFile(path); err != nil {
			return err
		}
		r.writePlain("Created config file at %s, fill in your credentials\n", path)

		loaded, err := shared.LoadConfig(path)
		if err != nil {
			return err
		}
		config = loaded
	} else {
		return err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("Database ready at %s\n", config.Database.Path)
	return nil
}
