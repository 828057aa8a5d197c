package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"aiknife/internal/config"
	"aiknife/internal/logging"
	"aiknife/internal/openrouter"
	"aiknife/internal/overlay"
	"aiknife/internal/pipeline"
	"aiknife/internal/selector"
	"aiknife/internal/settings"
	"aiknife/internal/tasks"
)

const (
	envAPIKey = "OPENROUTER_API_KEY"
	envConfig = "AIKNIFE_CONFIG"
)

type rootOptions struct {
	configPath   string
	settingsPath string
	logLevel     string
	noColor      bool
}

// app is everything a subcommand needs, built once per invocation.
type app struct {
	cfg      config.Config
	store    *settings.Store
	clients  *openrouter.Holder
	registry *tasks.Registry
	selector *selector.Selector
	pipeline *pipeline.Pipeline
	board    *overlay.Board
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	var a app

	root := &cobra.Command{
		Use:           "aiknife",
		Short:         "AI Swiss Army Knife: run OpenRouter tasks on selected text",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			built, err := setup(opts, stderr)
			if err != nil {
				return err
			}
			a = *built
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to YAML configuration file (env "+envConfig+")")
	flags.StringVar(&opts.settingsPath, "settings", "", "override the settings file location")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable coloured log output")

	root.AddCommand(
		newServeCmd(&a),
		newRunCmd(&a),
		newMenuCmd(&a),
		newModelsCmd(&a),
		newAuthCmd(&a),
		newSettingsCmd(&a),
	)
	return root
}

func setup(opts *rootOptions, logOut io.Writer) (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := opts.configPath
	if path == "" {
		path = os.Getenv(envConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.settingsPath != "" {
		cfg.Settings.Path = opts.settingsPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.noColor {
		cfg.Log.NoColor = true
	}

	if _, err := logging.Setup(logOut, cfg.Log.Level, cfg.Log.NoColor); err != nil {
		return nil, err
	}

	return newApp(cfg, os.Getenv(envAPIKey))
}

// newApp wires the components. envKey, when set, takes precedence over
// the stored key.
func newApp(cfg config.Config, envKey string) (*app, error) {
	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return nil, err
	}

	clients := openrouter.NewHolder(cfg.ClientOptions())
	store.Subscribe(func(s settings.Settings) {
		key := s.APIKey
		if envKey != "" {
			key = envKey
		}
		if err := clients.Update(key); err != nil {
			slog.Error("failed to update openrouter client", "error", err)
		}
	})

	registry := tasks.Default()
	sel := selector.New(cfg.OpenRouter.FallbackModel)

	return &app{
		cfg:      cfg,
		store:    store,
		clients:  clients,
		registry: registry,
		selector: sel,
		pipeline: pipeline.New(registry, sel, clients,
			pipeline.WithDefaultModel(func() string { return store.Get().DefaultModel })),
		board: overlay.NewBoard(),
	}, nil
}
