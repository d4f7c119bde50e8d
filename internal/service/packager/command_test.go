package packager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRunAppendsRows hashes artifacts and writes well-formed manifest rows.
func TestRunAppendsRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	artifact := filepath.Join(dir, "tiledb-linux-x86_64-main-static.tar.gz")
	body := []byte("static build bytes")
	require.NoError(t, os.WriteFile(artifact, body, 0o644))

	manifestPath := filepath.Join(dir, "manifest.csv")

	err := Run(context.Background(), &Options{
		Version:    "main",
		Linkage:    "Static",
		Platform:   "linux-x86_64",
		BaseURL:    "https://nightlies.local/builds/",
		OutputPath: manifestPath,
		Files:      []string{artifact},
	})
	require.NoError(t, err)

	contents, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	digest := sha256.Sum256(body)
	expected := strings.Join([]string{
		"linux-x86_64",
		"main",
		"static",
		"https://nightlies.local/builds/tiledb-linux-x86_64-main-static.tar.gz",
		hex.EncodeToString(digest[:]),
	}, ",") + "\n"
	require.Equal(t, expected, string(contents))
}

// TestRunRefusesDuplicateKey ensures a second row with the same
// platform/version/linkage key is rejected.
func TestRunRefusesDuplicateKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	artifact := filepath.Join(dir, "a.tar.gz")
	require.NoError(t, os.WriteFile(artifact, []byte("bytes"), 0o644))

	manifestPath := filepath.Join(dir, "manifest.csv")
	opts := &Options{
		Version:    "2.27.0",
		Linkage:    "static",
		Platform:   "linux-x86_64",
		BaseURL:    "https://nightlies.local/builds",
		OutputPath: manifestPath,
		Files:      []string{artifact},
	}

	require.NoError(t, Run(context.Background(), opts))

	err := Run(context.Background(), opts)
	require.ErrorIs(t, err, errDuplicateRow)

	// The manifest still holds exactly one row.
	contents, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(contents), "\n"))
}

// TestRunValidatesInputs checks the early input validation.
func TestRunValidatesInputs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	err := Run(ctx, &Options{Version: "main", Linkage: "static", BaseURL: "https://x.local"})
	require.ErrorIs(t, err, errNoArtifacts)

	err = Run(ctx, &Options{Version: "", Linkage: "static", BaseURL: "https://x.local", Files: []string{"a"}})
	require.ErrorIs(t, err, errVersionRequired)

	err = Run(ctx, &Options{Version: "main", Linkage: "shared", BaseURL: "https://x.local", Files: []string{"a"}})
	require.ErrorIs(t, err, errInvalidLinkage)

	err = Run(ctx, &Options{Version: "main", Linkage: "static", Files: []string{"a"}})
	require.ErrorIs(t, err, errBaseURLRequired)
}

// TestRunMissingArtifact fails when an artifact path does not exist.
func TestRunMissingArtifact(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{
		Version:    "main",
		Linkage:    "static",
		Platform:   "linux-x86_64",
		BaseURL:    "https://nightlies.local/builds",
		OutputPath: filepath.Join(t.TempDir(), "manifest.csv"),
		Files:      []string{filepath.Join(t.TempDir(), "missing.tar.gz")},
	})
	require.Error(t, err)
}
