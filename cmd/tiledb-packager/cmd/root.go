package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tiledb-fetch/internal/service/packager"
	"github.com/oshokin/tiledb-fetch/internal/version"
)

// minimumArgs is version, linkage, base-url plus at least one artifact.
const minimumArgs = 4

var (
	// outputPath is the manifest file rows are appended to.
	outputPath string
	// platformTag optionally overrides platform detection.
	platformTag string

	// rootCmd represents the base command for publishing manifest rows.
	rootCmd = &cobra.Command{
		Use:   "tiledb-packager [version] [linkage] [base-url] [artifact]...",
		Short: "Hash built artifacts and append their nightly-manifest rows",
		Long: `Computes the SHA-256 digest of locally built TileDB archives and appends one
platform,version,linkage,url,sha256 row per artifact to a manifest file.
The resulting document is what tiledb-fetch resolves nightly and static
installs against, so rows that would make resolution ambiguous are refused.`,
		Args: cobra.MinimumNArgs(minimumArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				Version:    args[0],
				Linkage:    args[1],
				BaseURL:    args[2],
				Files:      args[3:],
				Platform:   platformTag,
				OutputPath: outputPath,
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the tiledb-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", packager.DefaultManifestFilename, "manifest file to append rows to")
	rootCmd.Flags().StringVarP(&platformTag, "platform", "p", "", "override platform detection (e.g. linux-x86_64)")
}
