package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tiledb-fetch/internal/config"
	"github.com/oshokin/tiledb-fetch/internal/service/installer"
	"github.com/oshokin/tiledb-fetch/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// linkage selects dynamic or static artifacts.
	linkage string
	// platformTag optionally overrides platform detection.
	platformTag string

	// rootCmd represents the base command for installing a prebuilt TileDB core.
	rootCmd = &cobra.Command{
		Use:   "tiledb-fetch [version]",
		Short: "Download, verify and install a prebuilt TileDB core library",
		Long: `Resolves the requested TileDB core version for this platform, downloads the
archive with SHA-256 verification, extracts it into the install root and
rewrites the pkg-config prefix so downstream builds can locate the library.

Pass "main" as the version to install the current nightly build. Static
linkage always resolves against the nightly manifest, because upstream
releases only ship dynamic builds.

On success the discovery assignment (PKG_CONFIG_PATH=...) is printed on
stdout, and also appended to $GITHUB_ENV when running inside GitHub Actions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &installer.Options{
				Version:    args[0],
				Linkage:    linkage,
				Platform:   platformTag,
				ConfigPath: configPath,
			}

			result, err := installer.Run(ctx, options)
			if err != nil {
				return err
			}

			assignment := fmt.Sprintf("%s=%s", result.EnvVar, result.PkgConfigDir)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), assignment)

			// Inside GitHub Actions, exporting through GITHUB_ENV makes the
			// variable visible to every later step of the job.
			if envFile := os.Getenv("GITHUB_ENV"); envFile != "" {
				return appendToEnvFile(envFile, assignment)
			}

			return nil
		},
	}
)

// Execute runs the tiledb-fetch CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&linkage, "linkage", "l", "dynamic", "linkage mode: dynamic or static")
	rootCmd.Flags().StringVarP(&platformTag, "platform", "p", "", "override platform detection (e.g. linux-x86_64)")
}

// appendToEnvFile appends one KEY=value line to an environment file.
func appendToEnvFile(path, assignment string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open env file: %w", err)
	}

	if _, err = fmt.Fprintln(file, assignment); err != nil {
		_ = file.Close()

		return fmt.Errorf("append env file: %w", err)
	}

	return file.Close()
}
