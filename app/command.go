package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/beam/internal/config"
	"github.com/ekisa-team/beam/internal/env"
	"github.com/ekisa-team/beam/internal/envvar"
	"github.com/ekisa-team/beam/internal/logger"
	"github.com/ekisa-team/beam/model"
)

// Version is the beam runner version.
const Version = "0.1.0"

type rootFlags struct {
	manifestPath string
	schemaPath   string
}

// Command returns the root command of a host binary built around catalog.
func Command(name string, catalog *model.Catalog) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           name,
		Short:         "Run an application model registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.manifestPath, "manifest", "m", "", "Path to manifest file (default "+config.DefaultManifestPath()+")")
	cmd.PersistentFlags().StringVar(&flags.schemaPath, "schema", "", "Path to manifest JSON schema (default: embedded)")

	cmd.AddCommand(
		runCommand(flags, catalog),
		modelsCommand(flags, catalog),
		versionCommand(name),
	)

	return cmd
}

// Execute runs the root command for catalog and exits on failure.
func Execute(name string, catalog *model.Catalog) {
	if err := Command(name, catalog).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(flags *rootFlags, catalog *model.Catalog) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Initialize the registry from the manifest and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cmd.ErrOrStderr(), flags, catalog, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the manifest on change and create newly listed models")

	return cmd
}

func run(ctx context.Context, stderr io.Writer, flags *rootFlags, catalog *model.Catalog, watch bool) error {
	manifestPath := config.ResolveManifestPath(flags.manifestPath)
	schemaPath := config.ResolveSchemaPath(flags.schemaPath)

	manifest, err := config.LoadAndValidate(manifestPath, schemaPath)
	if err != nil {
		return err
	}

	log, closeLog := newLogger(manifest, stderr)
	defer closeLog()
	slog.SetDefault(log)

	a := New(manifest, catalog, log)

	if watch {
		watcher, err := config.NewWatcher(manifestPath, schemaPath, func(m *config.Manifest, err error) {
			if err != nil {
				log.Error("Failed to reload manifest", "error", err)
				return
			}
			select {
			case <-a.Ready():
				a.Reload(ctx, m)
			default:
				log.Warn("Manifest changed before registry was ready, ignoring")
			}
		})
		if err != nil {
			return fmt.Errorf("create manifest watcher: %w", err)
		}
		defer watcher.Close()
	}

	log.Info("Manifest loaded successfully", "manifest", manifestPath, "watch", watch)
	return a.Run(ctx)
}

func newLogger(manifest *config.Manifest, stderr io.Writer) (*slog.Logger, func() error) {
	environment := env.FromEnv()
	if manifest.Application.Environment != "" {
		environment = env.Parse(manifest.Application.Environment)
	}

	level := manifest.Log.Level
	if v := os.Getenv(envvar.BeamLogLevel); v != "" {
		level = v
	}

	return logger.New(environment,
		logger.WithOutput(stderr),
		logger.WithLevel(logger.ParseLevel(level)),
		logger.WithLogToFile(manifest.Log.File != ""),
		logger.WithLogFile(manifest.Log.File),
		logger.WithRotation(manifest.Log.MaxSizeMB, manifest.Log.MaxBackups, manifest.Log.MaxAgeDays),
	)
}

func modelsCommand(flags *rootFlags, catalog *model.Catalog) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models declared in the manifest and whether they resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.LoadAndValidate(
				config.ResolveManifestPath(flags.manifestPath),
				config.ResolveSchemaPath(flags.schemaPath),
			)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSTATUS")
			for _, key := range manifest.Models() {
				status := "registered"
				if _, ok := catalog.Lookup(key); !ok {
					status = "missing"
				}
				fmt.Fprintf(w, "%s\t%s\n", key, status)
			}

			return w.Flush()
		},
	}
}

func versionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", name, Version)
		},
	}
}
