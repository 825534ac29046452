package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
	"github.com/songsift/songsift/internal/store"
	"github.com/songsift/songsift/internal/tasks"
	"github.com/urfave/cli/v3"
)

// defaultTemperature is the classifier sampling temperature unless the run
// command overrides it.
const defaultTemperature = 0.7

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	classifier services.Classifier
	catalog    services.Catalog
	keeper     services.RecordKeeper
	records    tasks.Records
	engine     tasks.Engine
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Classifier services.Classifier
	Catalog    services.Catalog
	Keeper     services.RecordKeeper
	Records    tasks.Records
	Engine     tasks.Engine
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Records == nil && opts.Keeper != nil {
		opts.Records = store.NewRecordStore(opts.Keeper, opts.Config.Credentials.GitHub.RecordsFile)
	}
	if opts.Engine == nil {
		opts.Engine = tasks.NewPipelineEngine(opts.Classifier, opts.Catalog, opts.Records, opts.Keeper, opts.Config)
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		classifier: opts.Classifier,
		catalog:    opts.Catalog,
		keeper:     opts.Keeper,
		records:    opts.Records,
		engine:     opts.Engine,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, backupCommand, authCommand, spotifyCommand, classifyCommand, historyCommand, setupCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger swaps the runner's logger, used when the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// engineFor returns the runner's engine, rebuilding the classifier when a
// non-default sampling temperature is requested.
func (r *Runner) engineFor(temperature float64) (tasks.Engine, error) {
	if temperature == defaultTemperature {
		return r.engine, nil
	}
	if !r.config.GroqReady() {
		return nil, fmt.Errorf("%w: classifier credentials missing, cannot set temperature", shared.ErrServiceUnavailable)
	}

	classifier, err := services.NewGroqService(r.config.Credentials.Groq, temperature)
	if err != nil {
		return nil, err
	}
	return tasks.NewPipelineEngine(classifier, r.catalog, r.records, r.keeper, r.config), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
