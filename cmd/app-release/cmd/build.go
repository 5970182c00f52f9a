package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/logger"
	"github.com/oshokin/app-release/internal/service/pipeline"
)

var (
	// rootDir is the workspace root.
	rootDir string
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum log level.
	logLevel string
	// promoteDir overrides the configured release folder.
	promoteDir string

	// buildCmd builds the application for one platform.
	buildCmd = &cobra.Command{
		Use:   "build [platform] [version]",
		Short: "Build the application for the host platform.",
		Long: `Stages, packs and verifies the application.

The platform must be one of darwin, linux or win32 and equal to the host
platform. The version is written into the packed application and checked
against what the packed application reports.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("%w: unknown log level %q", release.ErrConfiguration, logLevel)
			}

			logger.SetLevel(level)

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			path := configPath
			if !cmd.Flags().Changed("config") {
				path = filepath.Join(rootDir, config.DefaultConfigFilename)
			}

			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("%w: %w", release.ErrConfiguration, err)
			}

			if promoteDir != "" {
				cfg.PromoteDir = promoteDir
			}

			rep, err := pipeline.BuildApp(ctx, &pipeline.Options{
				Platform: args[0],
				Version:  args[1],
				RootDir:  rootDir,
				Config:   cfg,
			})
			if err != nil {
				logger.ErrorKV(ctx, "Build failed", "error", err)

				return err
			}

			if rep.Warning != "" {
				logger.WarnKV(ctx, "Build finished with a packaging warning", "warning", rep.Warning)
			}

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	buildCmd.Flags().StringVarP(&rootDir, "root", "r", ".", "workspace root")
	buildCmd.Flags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file (default is inside --root)")
	buildCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn or error")
	buildCmd.Flags().StringVar(&promoteDir, "promote-dir", "", "copy the verified executable into this folder")

	rootCmd.AddCommand(buildCmd)
}
