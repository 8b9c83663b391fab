package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/shortages/internal/metrics"
	"github.com/JonMunkholm/shortages/internal/pipeline"
	"github.com/JonMunkholm/shortages/internal/store"
	"github.com/spf13/cobra"
)

type runFlags struct {
	dryRun    bool
	format    string
	asOf      string
	tieBreak  string
	exportDir string
	registry  string
	shortages string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print the run summary",
		Long: `Run reads both extracts, reconciles them and replaces every destination
table, then re-counts the loaded tables and prints a summary.

Exit status is 0 on success, 2 when some tables failed or were skipped,
and 1 when nothing was loaded.`,
		Example: `  shortages run
  shortages run --as-of 2024-03-01 --format json
  shortages run --dry-run --export-dir out/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, root, f)
		},
	}

	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "load into memory instead of the database")
	cmd.Flags().StringVarP(&f.format, "format", "o", "table", "summary format: table, json")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "reference date for days_active, YYYY-MM-DD (overrides PIPELINE_AS_OF)")
	cmd.Flags().StringVar(&f.tieBreak, "tie-break", "", "registry tie-break: package_code, packaging_description (overrides PIPELINE_TIE_BREAK)")
	cmd.Flags().StringVar(&f.exportDir, "export-dir", "", "write processed tables as CSV to this directory (overrides PIPELINE_EXPORT_DIR)")
	cmd.Flags().StringVar(&f.registry, "registry", "", "registry extract path (overrides INPUT_REGISTRY_PATH)")
	cmd.Flags().StringVar(&f.shortages, "shortages", "", "shortage extract path (overrides INPUT_SHORTAGES_PATH)")

	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootOptions, f *runFlags) error {
	switch strings.ToLower(f.format) {
	case "table", "json":
	default:
		return fmt.Errorf("unknown output format %q: want table or json", f.format)
	}

	cfg, err := loadConfig(root, f.dryRun)
	if err != nil {
		return err
	}

	// Flags win over the environment for this invocation only
	if f.asOf != "" {
		cfg.Pipeline.AsOf = f.asOf
	}
	if f.tieBreak != "" {
		cfg.Pipeline.TieBreak = f.tieBreak
	}
	if f.exportDir != "" {
		cfg.Pipeline.ExportDir = f.exportDir
	}
	if f.registry != "" {
		cfg.Input.RegistryPath = f.registry
	}
	if f.shortages != "" {
		cfg.Input.ShortagesPath = f.shortages
	}

	opts, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}
	opts.DryRun = f.dryRun

	ctx := cmd.Context()

	var st pipeline.Store
	if f.dryRun {
		st = store.NewMemory()
	} else {
		pg, err := store.Open(ctx, storeConfig(cfg))
		if err != nil {
			return err
		}
		defer pg.Close()
		st = pg
	}

	runner := pipeline.NewRunner(st, metrics.New())
	report := runner.Run(ctx, pipelineInputs(cfg), opts)

	if err := report.Render(cmd.OutOrStdout(), f.format); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	if code := report.ExitCode(); code != pipeline.ExitSuccess {
		slog.Debug("run did not fully succeed", "outcome", report.Outcome, "exit_code", code)
		return &exitCodeError{code: code}
	}
	return nil
}
