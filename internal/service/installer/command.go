package installer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/tiledb-fetch/internal/archive"
	"github.com/oshokin/tiledb-fetch/internal/config"
	"github.com/oshokin/tiledb-fetch/internal/download"
	"github.com/oshokin/tiledb-fetch/internal/logger"
	"github.com/oshokin/tiledb-fetch/internal/manifest"
	"github.com/oshokin/tiledb-fetch/internal/pkgconfig"
	"github.com/oshokin/tiledb-fetch/internal/platform"
	"github.com/oshokin/tiledb-fetch/internal/repository/receipt"
)

var (
	errVersionRequired = errors.New("version is required")
	errInvalidLinkage  = errors.New("linkage must be dynamic or static")
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// Version is a release identifier or "main" for the current
	// development build.
	Version string
	// Linkage is "dynamic" or "static" (case-insensitive).
	Linkage string
	// Platform optionally overrides platform detection and is used verbatim.
	Platform string
	// ConfigPath is the optional path to a settings YAML file.
	ConfigPath string
}

// Result describes a completed install for the caller. It replaces the
// environment-variable relay a CI pipeline would otherwise use: everything
// later steps need is returned in process.
type Result struct {
	// InstallRoot is where the archive was extracted.
	InstallRoot string
	// PkgConfigDir is the directory to expose via the discovery variable.
	PkgConfigDir string
	// EnvVar is the name of the discovery variable (PKG_CONFIG_PATH).
	EnvVar string
	// Platform is the platform tag the artifact was resolved for.
	Platform string
	// Version is the installed version.
	Version string
	// Linkage is the normalized linkage mode.
	Linkage string
	// SHA256 is the verified digest of the installed archive.
	SHA256 string
}

// runner holds the state threaded through a single install execution.
// Each stage's output is the next stage's sole input; there is no retry
// and no partial success.
type runner struct {
	cfg      *config.Config
	client   *http.Client
	req      manifest.Request
	record   *manifest.Record
	artifact *download.Artifact
	tempDir  string
}

// Run executes the install pipeline and is the public entry point for the CLI:
// platform, manifest resolution, verified download, extraction, relocation.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tiledb-fetch")

	r, err := newRunner(opts)
	if err != nil {
		return nil, err
	}

	defer r.cleanup(ctx)

	result, err := r.run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Install failed", "error", err)
		return nil, err
	}

	logger.InfoKV(ctx, "Install completed",
		"version", result.Version, "platform", result.Platform, "install_root", result.InstallRoot)

	return result, nil
}

// newRunner validates and normalizes the request and loads configuration.
func newRunner(opts *Options) (*runner, error) {
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		return nil, errVersionRequired
	}

	linkage := strings.ToLower(strings.TrimSpace(opts.Linkage))
	if linkage != manifest.LinkageDynamic && linkage != manifest.LinkageStatic {
		return nil, fmt.Errorf("%w, got %q", errInvalidLinkage, opts.Linkage)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	// Every stage and the returned Result must agree on one absolute root.
	cfg.InstallRoot, err = filepath.Abs(cfg.InstallRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve install root: %w", err)
	}

	return &runner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		req: manifest.Request{
			Version:  version,
			Linkage:  linkage,
			Platform: strings.TrimSpace(opts.Platform),
		},
	}, nil
}

// run executes the pipeline stages strictly in order.
func (r *runner) run(ctx context.Context) (*Result, error) {
	if err := r.resolvePlatform(ctx); err != nil {
		return nil, fmt.Errorf("identify platform: %w", err)
	}

	if err := r.resolveArtifact(ctx); err != nil {
		return nil, fmt.Errorf("resolve artifact: %w", err)
	}

	if err := r.downloadArtifact(ctx); err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}

	if err := r.extractArtifact(ctx); err != nil {
		return nil, fmt.Errorf("extract archive: %w", err)
	}

	pkgConfigDir, err := r.relocate(ctx)
	if err != nil {
		return nil, fmt.Errorf("relocate pkg-config: %w", err)
	}

	if err = r.saveReceipt(ctx); err != nil {
		return nil, fmt.Errorf("save receipt: %w", err)
	}

	return &Result{
		InstallRoot:  r.cfg.InstallRoot,
		PkgConfigDir: pkgConfigDir,
		EnvVar:       pkgconfig.DiscoveryEnvVar,
		Platform:     r.req.Platform,
		Version:      r.req.Version,
		Linkage:      r.req.Linkage,
		SHA256:       r.artifact.SHA256,
	}, nil
}

// resolvePlatform fixes the platform tag for the rest of the run.
func (r *runner) resolvePlatform(ctx context.Context) error {
	tag, err := platform.Tag(ctx, r.req.Platform)
	if err != nil {
		return err
	}

	r.req.Platform = tag

	return nil
}

// resolveArtifact asks the selected manifest variant for the single
// matching artifact record.
func (r *runner) resolveArtifact(ctx context.Context) error {
	logger.InfoKV(ctx, "Resolving artifact",
		"version", r.req.Version, "linkage", r.req.Linkage, "platform", r.req.Platform)

	record, err := manifest.Select(r.cfg, r.client, r.req).Resolve(ctx, r.req)
	if err != nil {
		return err
	}

	r.record = record

	return nil
}

// downloadArtifact streams the archive into a temporary directory and
// verifies its digest.
func (r *runner) downloadArtifact(ctx context.Context) error {
	tempDir, err := os.MkdirTemp("", "tiledb-fetch-")
	if err != nil {
		return err
	}

	r.tempDir = tempDir

	artifact, err := download.NewDownloader(r.client).Fetch(ctx, r.record, tempDir)
	if err != nil {
		return err
	}

	r.artifact = artifact

	return nil
}

// extractArtifact unpacks the verified archive into the install root.
func (r *runner) extractArtifact(ctx context.Context) error {
	logger.InfoKV(ctx, "Extracting archive",
		"archive", r.artifact.Path, "install_root", r.cfg.InstallRoot)

	return archive.ExtractTarGz(r.artifact.Path, r.cfg.InstallRoot)
}

// relocate rewrites the installed .pc file and returns the discovery directory.
func (r *runner) relocate(ctx context.Context) (string, error) {
	return pkgconfig.Relocate(ctx, r.cfg.InstallRoot, r.cfg.LibraryName)
}

// saveReceipt records what this run installed under the install root.
func (r *runner) saveReceipt(ctx context.Context) error {
	repo := receipt.NewFileRepository(r.cfg.InstallRoot)

	return repo.Save(ctx, &receipt.Receipt{
		Version:     r.req.Version,
		Linkage:     r.req.Linkage,
		Platform:    r.req.Platform,
		URL:         r.record.URL,
		SHA256:      r.artifact.SHA256,
		InstalledAt: time.Now().UTC(),
	})
}

// cleanup removes the temporary download directory. The downloaded archive
// only needs to outlive extraction.
func (r *runner) cleanup(ctx context.Context) {
	if r.tempDir == "" {
		return
	}

	if err := os.RemoveAll(r.tempDir); err != nil {
		logger.Warnf(ctx, "Could not remove temporary directory %s: %v", r.tempDir, err)
	}
}
