package packager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oshokin/tiledb-fetch/internal/download"
	"github.com/oshokin/tiledb-fetch/internal/logger"
	"github.com/oshokin/tiledb-fetch/internal/manifest"
	"github.com/oshokin/tiledb-fetch/internal/platform"
)

// DefaultManifestFilename is the manifest file written when no output
// path is provided.
const DefaultManifestFilename = "manifest.csv"

// nightlyFields is the row width of the manifest this packager emits.
const nightlyFields = 5

var (
	errNoArtifacts     = errors.New("at least one artifact file is required")
	errVersionRequired = errors.New("version is required")
	errInvalidLinkage  = errors.New("linkage must be dynamic or static")
	errBaseURLRequired = errors.New("base URL is required")
	errDuplicateRow    = errors.New("manifest already contains a row for this artifact key")
	errMalformedRow    = errors.New("malformed manifest row")
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Version is the version the artifacts were built from ("main" for nightlies).
	Version string
	// Linkage is the linkage mode the artifacts were built with.
	Linkage string
	// Platform optionally overrides platform detection for cross-built artifacts.
	Platform string
	// BaseURL is the URL prefix the artifacts will be uploaded under.
	BaseURL string
	// OutputPath is the manifest file to append to (created when missing).
	OutputPath string
	// Files are the local artifact archives to hash and publish.
	Files []string
}

// packager hashes built artifacts and appends their manifest rows.
// It is unexported; callers should use Run, which encapsulates setup
// and validation.
type packager struct {
	opts     *Options
	platform string
	rows     []string
}

// Run executes the packaging workflow: one manifest row per artifact,
// keyed exactly the way the installer matches rows later.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tiledb-packager")

	pkg, err := newPackager(ctx, opts)
	if err != nil {
		return err
	}

	if err = pkg.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Packager run failed", "error", err)
		return err
	}

	logger.InfoKV(ctx, "Packager completed", "manifest", pkg.outputPath())

	return nil
}

// newPackager validates inputs and resolves the platform tag.
func newPackager(ctx context.Context, opts *Options) (*packager, error) {
	if len(opts.Files) == 0 {
		return nil, errNoArtifacts
	}

	if strings.TrimSpace(opts.Version) == "" {
		return nil, errVersionRequired
	}

	linkage := strings.ToLower(strings.TrimSpace(opts.Linkage))
	if linkage != manifest.LinkageDynamic && linkage != manifest.LinkageStatic {
		return nil, fmt.Errorf("%w, got %q", errInvalidLinkage, opts.Linkage)
	}

	opts.Linkage = linkage

	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errBaseURLRequired
	}

	tag, err := platform.Tag(ctx, opts.Platform)
	if err != nil {
		return nil, err
	}

	return &packager{
		opts:     opts,
		platform: tag,
	}, nil
}

// run builds the rows and appends them to the manifest file.
func (p *packager) run(ctx context.Context) error {
	if err := p.fillRows(ctx); err != nil {
		return err
	}

	return p.appendRows()
}

// fillRows hashes every artifact and renders its manifest row.
func (p *packager) fillRows(ctx context.Context) error {
	for _, file := range p.opts.Files {
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("stat artifact %s: %w", file, err)
		}

		digest, err := download.FileSHA256(file)
		if err != nil {
			return fmt.Errorf("hash artifact %s: %w", file, err)
		}

		artifactURL, err := joinURL(p.opts.BaseURL, filepath.Base(file))
		if err != nil {
			return err
		}

		row := strings.Join([]string{
			p.platform, p.opts.Version, p.opts.Linkage, artifactURL, digest,
		}, ",")

		logger.InfoKV(ctx, "Prepared manifest row",
			"artifact", file, "url", artifactURL, "sha256", digest)

		p.rows = append(p.rows, row)
	}

	return nil
}

// appendRows writes the rows to the manifest, refusing keys that are
// already present: a duplicate row would make the installer's resolution
// ambiguous, and ambiguity is fatal on the consuming side.
func (p *packager) appendRows() error {
	outputPath := p.outputPath()

	existing, err := readExistingKeys(outputPath)
	if err != nil {
		return err
	}

	for _, row := range p.rows {
		key := rowKey(strings.Split(row, ","))
		if _, found := existing[key]; found {
			return fmt.Errorf("%w: %s", errDuplicateRow, key)
		}

		existing[key] = struct{}{}
	}

	file, err := os.OpenFile(filepath.Clean(outputPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}

	for _, row := range p.rows {
		if _, err = fmt.Fprintln(file, row); err != nil {
			_ = file.Close()

			return fmt.Errorf("append manifest row: %w", err)
		}
	}

	return file.Close()
}

// outputPath returns the configured manifest path or the default.
func (p *packager) outputPath() string {
	if p.opts.OutputPath != "" {
		return p.opts.OutputPath
	}

	return DefaultManifestFilename
}

// readExistingKeys collects the platform/version/linkage keys already in
// the manifest file, if it exists.
func readExistingKeys(path string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keys, nil
		}

		return nil, fmt.Errorf("read manifest: %w", err)
	}

	for lineNumber, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != nightlyFields {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNumber+1, errMalformedRow)
		}

		keys[rowKey(fields)] = struct{}{}
	}

	return keys, nil
}

// rowKey folds the matching fields of a row the way the installer matches them.
func rowKey(fields []string) string {
	return strings.ToLower(strings.TrimSpace(fields[0])) + "," +
		strings.ToLower(strings.TrimSpace(fields[1])) + "," +
		strings.ToLower(strings.TrimSpace(fields[2]))
}

// joinURL appends a file name to the base URL path.
func joinURL(base, name string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	parsed.Path = path.Join(parsed.Path, name)

	return parsed.String(), nil
}
