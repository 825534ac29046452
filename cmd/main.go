package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	// .env keeps secrets out of config.toml during development
	_ = godotenv.Load()

	logger := shared.NewLogger(nil)

	path := configPath(os.Args)
	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if loadedConfig, err := shared.LoadConfig(path); err == nil {
			config = loadedConfig
		} else {
			logger.Warnf("failed to load %s, using defaults: %v", path, err)
		}
	}

	var keeper services.RecordKeeper
	if config.GistReady() {
		if svc, err := services.NewGistService(config.Credentials.GitHub); err == nil {
			keeper = svc
			bootstrapCredentials(context.Background(), logger, config, svc)
		}
	}

	var classifier services.Classifier
	if config.GroqReady() {
		if svc, err := services.NewGroqService(config.Credentials.Groq, defaultTemperature); err == nil {
			classifier = svc
		}
	}

	var catalog services.Catalog
	if config.SpotifyReady() {
		if svc, err := services.NewSpotifyService(config.Credentials.Spotify); err == nil {
			if err := svc.LoadToken(context.Background()); err != nil {
				logger.Debugf("no spotify session yet: %v", err)
			}
			catalog = svc
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: path,
		Classifier: classifier,
		Catalog:    catalog,
		Keeper:     keeper,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "songsift",
		Usage:    "Sift songs out of scraped video titles into a Spotify playlist",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

// configPath scans the raw arguments for a --config flag so the
// configuration file is known before services are constructed. Flags are
// parsed properly per command later; this pass only needs the path.
func configPath(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return "config.toml"
}

// bootstrapCredentials fills missing Spotify and Groq credentials from the
// credentials file stored alongside the record store. Local values win.
func bootstrapCredentials(ctx context.Context, logger *log.Logger, config *shared.Config, keeper services.RecordKeeper) {
	if config.SpotifyReady() && config.GroqReady() {
		return
	}

	data, err := keeper.FetchFile(ctx, config.Credentials.GitHub.CredentialsFile)
	if err != nil {
		logger.Debugf("credentials bootstrap skipped: %v", err)
		return
	}

	var creds models.GistCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		logger.Warnf("credentials file is not valid JSON: %v", err)
		return
	}

	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	fill(&config.Credentials.Spotify.ClientID, creds.ClientID)
	fill(&config.Credentials.Spotify.ClientSecret, creds.ClientSecret)
	fill(&config.Credentials.Spotify.RedirectURI, creds.RedirectURI)
	fill(&config.Credentials.Spotify.UserID, creds.UserID)
	fill(&config.Credentials.Groq.APIKey, creds.GroqAPIKey)

	logger.Info("credentials loaded from gist bootstrap file")
}
