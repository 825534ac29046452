package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Scrape      ScrapeConfig      `toml:"scrape"`
	Playlist    PlaylistConfig    `toml:"playlist"`
	Report      ReportConfig      `toml:"report"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Groq    GroqConfig    `toml:"groq"`
	GitHub  GitHubConfig  `toml:"github"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	UserID       string `toml:"user_id"`
	TokenPath    string `toml:"token_path"`
}

// GroqConfig contains credentials for the Groq classification endpoint.
type GroqConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// GitHubConfig contains the gist token and the file layout of the backing gist.
//
// One gist holds three documents: the processed-track record store, the
// playlist backup, and an optional credentials bootstrap file.
type GitHubConfig struct {
	Token           string `toml:"token"`
	GistID          string `toml:"gist_id"`
	RecordsFile     string `toml:"records_file"`
	BackupFile      string `toml:"backup_file"`
	CredentialsFile string `toml:"credentials_file"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains OAuth callback listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ScrapeConfig contains title-source settings.
type ScrapeConfig struct {
	// TitleSelector is the CSS selector the static driver collects titles from.
	TitleSelector string `toml:"title_selector"`
	// NoGrowthRounds is how many consecutive empty continuation pages the
	// YouTube driver tolerates before concluding the listing is exhausted.
	NoGrowthRounds int `toml:"no_growth_rounds"`
}

// PlaylistConfig names the target playlist for reconciliation.
type PlaylistConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Public      bool   `toml:"public"`
}

// ReportConfig contains local report output settings.
type ReportConfig struct {
	Path string `toml:"path"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	config.ApplyEnv()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.ApplyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, ErrInvalidArgument)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the config. Environment
// values win over file values so secrets can stay out of config.toml
// (a .env file is loaded at startup when present).
func (c *Config) ApplyEnv() {
	overlay(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	overlay(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	overlay(&c.Credentials.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")
	overlay(&c.Credentials.Spotify.UserID, "SPOTIFY_USER_ID")
	overlay(&c.Credentials.Groq.APIKey, "GROQ_API_KEY")
	overlay(&c.Credentials.GitHub.Token, "GITHUB_TOKEN")
	overlay(&c.Credentials.GitHub.GistID, "GIST_ID")
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// SpotifyReady reports whether enough Spotify credentials exist to run the
// authorization-code flow.
func (c *Config) SpotifyReady() bool {
	s := c.Credentials.Spotify
	return s.ClientID != "" && s.ClientSecret != "" && s.RedirectURI != ""
}

// GroqReady reports whether the classifier can be constructed.
func (c *Config) GroqReady() bool {
	return c.Credentials.Groq.APIKey != ""
}

// GistReady reports whether the record store and backup targets are reachable.
func (c *Config) GistReady() bool {
	g := c.Credentials.GitHub
	return g.Token != "" && g.GistID != ""
}
