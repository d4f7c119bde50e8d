package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tiledb-fetch/internal/pkgconfig"
	"github.com/oshokin/tiledb-fetch/internal/service/installer"
	"github.com/oshokin/tiledb-fetch/internal/service/packager"
)

// TestPackagerInstallerRoundTrip publishes an artifact with the packager and
// installs it back through the installer using the generated manifest. Rows
// the packager writes must be resolvable by the consuming side as-is.
func TestPackagerInstallerRoundTrip(t *testing.T) {
	t.Parallel()

	artifact, digest := buildArtifact(t)
	workDir := t.TempDir()

	artifactPath := filepath.Join(workDir, "tiledb-nightly.tar.gz")
	require.NoError(t, os.WriteFile(artifactPath, artifact, 0o644))

	manifestPath := filepath.Join(workDir, "manifest.csv")

	mux := http.NewServeMux()
	mux.HandleFunc("/nightlies/manifest.csv",
		func(w http.ResponseWriter, _ *http.Request) {
			contents, err := os.ReadFile(manifestPath)
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			_, _ = w.Write(contents)
		})
	mux.HandleFunc("/nightlies/tiledb-nightly.tar.gz",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(artifact)
		})

	server := startServer(t, mux)

	err := packager.Run(context.Background(), &packager.Options{
		Version:    "main",
		Linkage:    "static",
		Platform:   "linux-x86_64",
		BaseURL:    server.URL + "/nightlies",
		OutputPath: manifestPath,
		Files:      []string{artifactPath},
	})
	require.NoError(t, err)

	row, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	require.Equal(t,
		fmt.Sprintf("linux-x86_64,main,static,%s/nightlies/tiledb-nightly.tar.gz,%s\n", server.URL, digest),
		string(row))

	configPath := writeSettings(t, server.URL, workDir)

	result, err := installer.Run(context.Background(), &installer.Options{
		Version:    "main",
		Linkage:    "static",
		Platform:   "linux-x86_64",
		ConfigPath: configPath,
	})
	require.NoError(t, err)
	require.Equal(t, digest, result.SHA256)
	require.FileExists(t, pkgconfig.FilePath(result.InstallRoot, "tiledb"))
}

// TestPackagerRefusesDuplicateKey appends once and then refuses a second row
// with the same platform, version and linkage.
func TestPackagerRefusesDuplicateKey(t *testing.T) {
	t.Parallel()

	artifact, _ := buildArtifact(t)
	workDir := t.TempDir()

	artifactPath := filepath.Join(workDir, "tiledb-nightly.tar.gz")
	require.NoError(t, os.WriteFile(artifactPath, artifact, 0o644))

	manifestPath := filepath.Join(workDir, "manifest.csv")

	opts := &packager.Options{
		Version:    "main",
		Linkage:    "static",
		Platform:   "linux-x86_64",
		BaseURL:    "https://example.com/nightlies",
		OutputPath: manifestPath,
		Files:      []string{artifactPath},
	}

	require.NoError(t, packager.Run(context.Background(), opts))

	err := packager.Run(context.Background(), opts)
	require.Error(t, err)
	require.Contains(t, err.Error(), "linux-x86_64,main,static")
}
