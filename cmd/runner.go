package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/server"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/desertthunder/acura/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Store, curator and publisher are built from the config on demand unless injected.
type Runner struct {
	config      *shared.Config
	fixedConfig bool
	configPath  string
	logger      *log.Logger
	output      io.Writer
	store       models.Store
	curator     tasks.Curator
	publisher   server.Publisher
	now         func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config // Skips loading --config when set
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Store      models.Store
	Curator    tasks.Curator
	Publisher  server.Publisher
	Clock      func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	fixed := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Runner{
		config:      opts.Config,
		fixedConfig: fixed,
		configPath:  opts.ConfigPath,
		logger:      opts.Logger,
		output:      opts.Output,
		store:       opts.Store,
		curator:     opts.Curator,
		publisher:   opts.Publisher,
		now:         opts.Clock,
	}
}

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "acura",
		Usage:   "Curate daily playlists that match a business's ambiance",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("ACURA_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log level (debug, info, warn, error)",
			},
		},
		Before:   r.loadConfig,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, subscriberCommand, curateCommand, enqueueCommand, consumeCommand, serveCommand, tracklistCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads --config when it exists and applies the log level.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if !r.fixedConfig {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.config.ApplyEnv(os.LookupEnv)
		}
	}

	level := r.config.Log.Level
	if l := cmd.String("log-level"); l != "" {
		level = l
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// today returns the playlist day for the current time in the curation timezone.
func (r *Runner) today() time.Time {
	return models.Day(r.now(), r.config.Curation.Location())
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

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
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

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
