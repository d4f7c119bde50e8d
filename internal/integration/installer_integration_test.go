package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tiledb-fetch/internal/config"
	"github.com/oshokin/tiledb-fetch/internal/pkgconfig"
	"github.com/oshokin/tiledb-fetch/internal/repository/receipt"
	"github.com/oshokin/tiledb-fetch/internal/service/installer"
)

// TestInstallReleaseEndToEnd runs the full pipeline against a local server:
// release manifest resolution, verified download, extraction and relocation.
func TestInstallReleaseEndToEnd(t *testing.T) {
	t.Parallel()

	artifact, digest := buildArtifact(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/TileDB/releases/download/2.27.0/releases.csv",
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, "windows-x86_64,{server}/dl/tiledb-windows.tar.gz,%s\n", digest)
			fmt.Fprintf(w, "linux-x86_64,{server}/dl/tiledb-linux.tar.gz,%s\n", digest)
		})
	mux.HandleFunc("/dl/tiledb-linux.tar.gz",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(artifact)
		})

	server := startServer(t, mux)
	workDir := t.TempDir()
	configPath := writeSettings(t, server.URL, workDir)

	result, err := installer.Run(context.Background(), &installer.Options{
		Version:    "2.27.0",
		Linkage:    "dynamic",
		Platform:   "linux-x86_64",
		ConfigPath: configPath,
	})
	require.NoError(t, err)

	installRoot := filepath.Join(workDir, "tiledb")
	require.Equal(t, installRoot, result.InstallRoot)
	require.Equal(t, pkgconfig.Dir(installRoot), result.PkgConfigDir)
	require.Equal(t, pkgconfig.DiscoveryEnvVar, result.EnvVar)
	require.Equal(t, "linux-x86_64", result.Platform)
	require.Equal(t, digest, result.SHA256)

	// The build-time prefix must be replaced by the quoted install root,
	// leaving the rest of the file intact.
	contents, err := os.ReadFile(pkgconfig.FilePath(installRoot, "tiledb"))
	require.NoError(t, err)
	require.Contains(t, string(contents), fmt.Sprintf("prefix=%q\n", installRoot))
	require.NotContains(t, string(contents), "/opt/build/prefix")
	require.Contains(t, string(contents), "libdir=${exec_prefix}/lib")

	// Sibling archive members land next to the relocated file.
	require.FileExists(t, filepath.Join(installRoot, "lib", "libtiledb.so"))
	require.FileExists(t, filepath.Join(installRoot, "include", "tiledb", "tiledb.h"))

	saved, err := receipt.NewFileRepository(installRoot).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2.27.0", saved.Version)
	require.Equal(t, "dynamic", saved.Linkage)
	require.Equal(t, digest, saved.SHA256)
	require.Contains(t, saved.URL, "/dl/tiledb-linux.tar.gz")
}

// TestInstallNightlyEndToEnd exercises the nightly manifest path, which is
// taken for development builds and for any static-linkage request.
func TestInstallNightlyEndToEnd(t *testing.T) {
	t.Parallel()

	artifact, digest := buildArtifact(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/nightlies/manifest.csv",
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, "linux-x86_64,main,dynamic,{server}/dl/nightly.tar.gz,%s\n", digest)
			fmt.Fprintf(w, "linux-x86_64,main,static,{server}/dl/other.tar.gz,%s\n", digest)
		})
	mux.HandleFunc("/dl/nightly.tar.gz",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(artifact)
		})

	server := startServer(t, mux)
	workDir := t.TempDir()
	configPath := writeSettings(t, server.URL, workDir)

	result, err := installer.Run(context.Background(), &installer.Options{
		Version:    "main",
		Linkage:    "dynamic",
		Platform:   "linux-x86_64",
		ConfigPath: configPath,
	})
	require.NoError(t, err)
	require.Equal(t, "main", result.Version)
	require.Equal(t, digest, result.SHA256)
	require.FileExists(t, pkgconfig.FilePath(result.InstallRoot, "tiledb"))
}

// TestInstallIsIdempotent runs the same install twice and expects the second
// run to succeed and leave identical contents behind.
func TestInstallIsIdempotent(t *testing.T) {
	t.Parallel()

	artifact, digest := buildArtifact(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/TileDB/releases/download/2.27.0/releases.csv",
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, "linux-x86_64,{server}/dl/tiledb.tar.gz,%s\n", digest)
		})
	mux.HandleFunc("/dl/tiledb.tar.gz",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(artifact)
		})

	server := startServer(t, mux)
	workDir := t.TempDir()
	configPath := writeSettings(t, server.URL, workDir)

	opts := &installer.Options{
		Version:    "2.27.0",
		Linkage:    "dynamic",
		Platform:   "linux-x86_64",
		ConfigPath: configPath,
	}

	first, err := installer.Run(context.Background(), opts)
	require.NoError(t, err)

	firstContents, err := os.ReadFile(pkgconfig.FilePath(first.InstallRoot, "tiledb"))
	require.NoError(t, err)

	second, err := installer.Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, first.PkgConfigDir, second.PkgConfigDir)

	secondContents, err := os.ReadFile(pkgconfig.FilePath(second.InstallRoot, "tiledb"))
	require.NoError(t, err)
	require.Equal(t, string(firstContents), string(secondContents))
}

// TestInstallAbortsOnDigestMismatch serves an artifact whose manifest digest
// is wrong and expects the pipeline to stop before extraction.
func TestInstallAbortsOnDigestMismatch(t *testing.T) {
	t.Parallel()

	artifact, _ := buildArtifact(t)
	wrongDigest := strings.Repeat("ab", 32)

	mux := http.NewServeMux()
	mux.HandleFunc("/TileDB/releases/download/2.27.0/releases.csv",
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, "linux-x86_64,{server}/dl/tiledb.tar.gz,%s\n", wrongDigest)
		})
	mux.HandleFunc("/dl/tiledb.tar.gz",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(artifact)
		})

	server := startServer(t, mux)
	workDir := t.TempDir()
	configPath := writeSettings(t, server.URL, workDir)

	_, err := installer.Run(context.Background(), &installer.Options{
		Version:    "2.27.0",
		Linkage:    "dynamic",
		Platform:   "linux-x86_64",
		ConfigPath: configPath,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "sha256 mismatch")

	// Nothing was extracted into the install root.
	require.NoDirExists(t, filepath.Join(workDir, "tiledb"))
}

// TestInstallFailsWhenNoRowMatches expects an explicit resolution error
// naming the request when the manifest has no matching platform.
func TestInstallFailsWhenNoRowMatches(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/TileDB/releases/download/2.27.0/releases.csv",
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintln(w, "windows-x86_64,https://example.com/w.tar.gz,"+strings.Repeat("ab", 32))
		})

	server := startServer(t, mux)
	workDir := t.TempDir()
	configPath := writeSettings(t, server.URL, workDir)

	_, err := installer.Run(context.Background(), &installer.Options{
		Version:    "2.27.0",
		Linkage:    "dynamic",
		Platform:   "linux-x86_64",
		ConfigPath: configPath,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "linux-x86_64")
}

// startServer starts a test server whose handlers may reference its own URL
// in served bodies via the {server} placeholder.
func startServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()

	var server *httptest.Server

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, r)

		body := strings.ReplaceAll(recorder.Body.String(), "{server}", server.URL)

		for key, values := range recorder.Header() {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}

		w.WriteHeader(recorder.Code)
		_, _ = w.Write([]byte(body))
	}))

	t.Cleanup(server.Close)

	return server
}

// writeSettings points the endpoints at the test server and the install root
// into the test's temporary directory.
func writeSettings(t *testing.T, serverURL, workDir string) string {
	t.Helper()

	configPath := filepath.Join(workDir, config.DefaultConfigFilename)

	require.NoError(t, config.Save(configPath, &config.Config{
		ReleaseManifestURL: serverURL + "/TileDB/releases/download/%s/releases.csv",
		NightlyManifestURL: serverURL + "/nightlies/manifest.csv",
		InstallRoot:        filepath.Join(workDir, "tiledb"),
		LibraryName:        "tiledb",
		Timeout:            30 * time.Second,
	}))

	return configPath
}
