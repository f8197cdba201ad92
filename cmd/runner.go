package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/mirror"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/statestore"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/desertthunder/tunesync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, registry and state store are opened on first use so that commands such as
// setup work before any of them exist.
type Runner struct {
	configPath  string
	config      *shared.Config
	db          *sql.DB
	registry    *services.Registry
	states      server.StateStore
	users       *repositories.UserRepository
	connections *repositories.ConnectionRepository
	mirror      *mirror.Mirror
	engine      *tasks.SyncEngine
	exporter    *tasks.Exporter
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	palette     *ui.Palette
	openBrowser func(string) error
	closers     []func() error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Anything left nil is built from the loaded configuration.
type RunnerOpts struct {
	ConfigPath  string
	Config      *shared.Config
	DB          *sql.DB
	Registry    *services.Registry
	States      server.StateStore
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		configPath:  opts.ConfigPath,
		config:      opts.Config,
		db:          opts.DB,
		registry:    opts.Registry,
		states:      opts.States,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		palette:     ui.Default(),
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, dbCommand, userCommand, connectCommand, disconnectCommand, servicesCommand,
		playlistsCommand, searchCommand, recommendCommand, syncCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// app builds the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:     "tunesync",
		Usage:    "Mirror and sync playlists between Spotify & YouTube",
		Version:  "0.1.0",
		Flags:    globalFlags(),
		Before:   r.before,
		After:    r.after,
		Commands: r.register(),
	}
}

// before loads and validates the configuration and applies the log level.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	} else {
		shared.SetLogLevel(r.logger, shared.ParseLogLevel(cmd.String("log-level")))
	}

	if r.config != nil {
		return ctx, nil
	}

	if r.configPath == "" {
		r.configPath = cmd.String("config")
	}
	config, err := r.loadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// loadConfig reads path, falling back to defaults when the file does not exist.
// Environment overrides are applied before validation.
func (r *Runner) loadConfig(path string) (*shared.Config, error) {
	config, err := shared.LoadConfig(path)
	switch {
	case errors.Is(err, shared.ErrMissingConfig):
		r.logger.Debug("config file not found, using defaults", "path", path)
		config = shared.DefaultConfig()
	case err != nil:
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// open builds the persistence layer and everything that depends on it.
func (r *Runner) open() error {
	if r.engine != nil {
		return nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	if r.httpClient == nil {
		r.httpClient = shared.NewHTTPClient(r.config.HTTP)
	}

	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return err
		}
		r.db = db
		r.closers = append(r.closers, db.Close)
	}

	r.users = repositories.NewUserRepository(r.db)
	r.connections = repositories.NewConnectionRepository(r.db)

	if r.registry == nil {
		registry, err := services.NewRegistryFromConfig(r.config, services.Deps{
			Connections: r.connections,
			HTTPClient:  r.httpClient,
			Logger:      r.logger,
		})
		if err != nil {
			return err
		}
		r.registry = registry
	}

	r.mirror = mirror.New(r.db, r.registry, r.logger)
	r.engine = tasks.NewSyncEngine(r.db, r.registry, r.mirror, r.logger)
	r.exporter = tasks.NewExporter(r.mirror, r.httpClient, r.logger)
	return nil
}

// stateStore connects to Redis on first use.
func (r *Runner) stateStore(ctx context.Context) (server.StateStore, error) {
	if r.states != nil {
		return r.states, nil
	}

	rdb, err := statestore.NewRedisClient(ctx, r.config.Redis)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, rdb.Close)
	r.states = statestore.New(rdb, r.logger)
	return r.states, nil
}

// Close releases the connections opened by the runner, in reverse order.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// currentUser resolves --user, given as an id or an email address.
func (r *Runner) currentUser(cmd *cli.Command) (*models.User, error) {
	if err := r.open(); err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(cmd.String("user"))
	if ref == "" {
		return nil, fmt.Errorf("%w: --user (or TUNESYNC_USER)", shared.ErrMissingArgument)
	}
	if strings.Contains(ref, "@") {
		return r.users.GetByEmail(ref)
	}
	return r.users.Get(ref)
}

// provider resolves a provider name argument such as "spotify".
func (r *Runner) provider(name string) (services.MusicProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: provider", shared.ErrMissingArgument)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r.registry.Lookup(name)
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
	r.writePlain("%s\n", r.palette.Title(title))
}

func (r *Runner) writeTable(headers []string, rows [][]string) {
	r.writePlain("%s\n", r.palette.Table(headers, rows))
}

// emit writes data as JSON when --json is set, otherwise calls plain.
func (r *Runner) emit(cmd *cli.Command, data any, plain func()) error {
	if cmd.Bool("json") {
		return r.writeJSON(data, cmd.Bool("pretty"))
	}
	plain()
	return nil
}
