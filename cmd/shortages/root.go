package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/JonMunkholm/shortages/internal/config"
	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/logging"
	"github.com/JonMunkholm/shortages/internal/pipeline"
	"github.com/JonMunkholm/shortages/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	envFile   string
	logLevel  string
	logFormat string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "shortages",
		Short: "Drug shortage reconciliation pipeline",
		Long: `shortages joins the drug shortage extract to the drug registry on
normalized product codes, replaces the destination tables in PostgreSQL,
verifies the row counts and reports the outcome.

Configuration comes from the environment, optionally seeded from a .env file.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(opts.envFile)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file to load (overrides existing variables)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text, json (overrides LOG_FORMAT)")

	cmd.AddCommand(
		newRunCommand(opts),
		newVerifyCommand(opts),
		newServeCommand(opts),
	)

	return cmd
}

// loadEnvFile loads path if it exists (Overload overwrites existing env vars).
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no .env file found, using environment variables", "path", path)
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	slog.Debug("loaded .env file (overwriting existing env vars)", "path", path)
	return nil
}

// loadConfig reads and validates configuration, applies the logging flags
// and sets up logging. Offline commands do not need DATABASE_URL.
func loadConfig(opts *rootOptions, offline bool) (*config.Config, error) {
	load := config.Load
	if offline {
		load = config.LoadOffline
	}

	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

func storeConfig(cfg *config.Config) store.Config {
	return store.Config{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}
}

func pipelineInputs(cfg *config.Config) pipeline.Inputs {
	return pipeline.Inputs{
		RegistryPath:  cfg.Input.RegistryPath,
		ShortagesPath: cfg.Input.ShortagesPath,
	}
}

// pipelineOptions converts the validated Pipeline section into run options.
func pipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	asOf, err := cfg.Pipeline.AsOfDate()
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("as-of date: %w", err)
	}
	tieBreak, err := core.ParseTieBreak(cfg.Pipeline.TieBreak)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		AsOf:            asOf,
		TieBreak:        tieBreak,
		LoadTimeout:     cfg.Pipeline.LoadTimeout,
		RowErrorSamples: cfg.Pipeline.RowErrorSamples,
		ExportDir:       cfg.Pipeline.ExportDir,
	}, nil
}
