package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds endpoints and filesystem locations used by the binaries.
type Config struct {
	// ReleaseManifestURL is a printf-style template for the upstream
	// release manifest, with a single %s substituted by the requested version.
	ReleaseManifestURL string `yaml:"release_manifest_url"`
	// NightlyManifestURL is the fixed location of the nightly/custom-build manifest.
	NightlyManifestURL string `yaml:"nightly_manifest_url"`
	// InstallRoot is the directory the resolved archive is extracted into.
	InstallRoot string `yaml:"install_root"`
	// LibraryName is the pkg-config name of the installed library.
	LibraryName string `yaml:"library_name"`
	// Timeout bounds each HTTP request (manifest fetch, artifact download).
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for installer settings.
	DefaultConfigFilename = "tiledb-fetch-settings.yaml"

	// DefaultReleaseManifestURL points at the manifest attached to every upstream release.
	DefaultReleaseManifestURL = "https://github.com/TileDB-Inc/TileDB/releases/download/%s/releases.csv"

	// DefaultNightlyManifestURL points at the manifest of nightly and static builds.
	DefaultNightlyManifestURL = "https://github.com/TileDB-Inc/tiledb-rs/releases/download/nightlies/manifest.csv"

	// DefaultLibraryName is the pkg-config name of the TileDB core library.
	DefaultLibraryName = "tiledb"

	// DefaultInstallDirname is the subdirectory of the user's home used as install root.
	DefaultInstallDirname = "tiledb"

	// DefaultTimeout is the default duration for a single HTTP request.
	// Artifacts are large, so this is generous.
	DefaultTimeout = 10 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errReleaseURLPlaceholder is returned when the release manifest
	// template cannot receive a version substitution.
	errReleaseURLPlaceholder = errors.New("release manifest URL must contain exactly one %s placeholder")
)

// Default returns a configuration populated with the fixed endpoints and
// an install root under the invoking user's home directory.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	return &Config{
		ReleaseManifestURL: DefaultReleaseManifestURL,
		NightlyManifestURL: DefaultNightlyManifestURL,
		InstallRoot:        filepath.Join(home, DefaultInstallDirname),
		LibraryName:        DefaultLibraryName,
		Timeout:            DefaultTimeout,
	}, nil
}

// Load reads configuration from the provided path and validates essential fields.
// An empty path or a missing file yields the defaults, so callers do not need
// a settings file for the standard endpoints.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided configuration for required fields and
// formatting, filling defaults for anything left empty.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ReleaseManifestURL == "" {
		cfg.ReleaseManifestURL = DefaultReleaseManifestURL
	}

	if strings.Count(cfg.ReleaseManifestURL, "%s") != 1 {
		return errReleaseURLPlaceholder
	}

	if err := validateURL(cfg.ReleaseManifestURL); err != nil {
		return fmt.Errorf("invalid release manifest URL: %w", err)
	}

	if cfg.NightlyManifestURL == "" {
		cfg.NightlyManifestURL = DefaultNightlyManifestURL
	}

	if err := validateURL(cfg.NightlyManifestURL); err != nil {
		return fmt.Errorf("invalid nightly manifest URL: %w", err)
	}

	if cfg.LibraryName == "" {
		cfg.LibraryName = DefaultLibraryName
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.InstallRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}

		cfg.InstallRoot = filepath.Join(home, DefaultInstallDirname)
	}

	return nil
}

// validateURL rejects strings that do not parse as absolute URLs.
// Placeholders are substituted with a dummy value first so templates validate too.
func validateURL(raw string) error {
	probe := strings.ReplaceAll(raw, "%s", "x")
	if _, err := url.ParseRequestURI(probe); err != nil {
		return err
	}

	return nil
}
