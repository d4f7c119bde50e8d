package receipt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/tiledb-fetch/internal/config"
)

// Filename is the receipt file written under the install root.
const Filename = "tiledb-fetch-receipt.yaml"

// ErrNotFound is returned when no receipt has been written yet.
var ErrNotFound = errors.New("receipt not found")

// Receipt records what a completed install put under the install root.
// A single install root holds a single version, so there is exactly one
// receipt, overwritten on every successful run.
type Receipt struct {
	// Version is the installed release identifier (or "main").
	Version string `yaml:"version"`
	// Linkage is the linkage mode of the installed artifact.
	Linkage string `yaml:"linkage"`
	// Platform is the platform tag the artifact was resolved for.
	Platform string `yaml:"platform"`
	// URL is where the artifact was downloaded from.
	URL string `yaml:"url"`
	// SHA256 is the verified digest of the installed archive.
	SHA256 string `yaml:"sha256"`
	// InstalledAt is the UTC completion time of the install.
	InstalledAt time.Time `yaml:"installed_at"`
}

// Repository defines persistence operations for the install receipt.
type Repository interface {
	Load(ctx context.Context) (*Receipt, error)
	Save(ctx context.Context, receipt *Receipt) error
}

// FileRepository persists the receipt as YAML under the install root.
type FileRepository struct {
	// path is the filesystem location of the receipt file.
	path string
	// mu protects concurrent access to the receipt file.
	mu sync.Mutex
}

// NewFileRepository creates a repository storing the receipt in installRoot.
func NewFileRepository(installRoot string) *FileRepository {
	return &FileRepository{
		path: filepath.Join(filepath.Clean(installRoot), Filename),
	}
}

// Load reads the receipt from disk.
func (r *FileRepository) Load(_ context.Context) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read receipt: %w", err)
	}

	var receipt Receipt
	if err = yaml.Unmarshal(contents, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}

	return &receipt, nil
}

// Save writes the receipt to disk, overwriting any previous one.
func (r *FileRepository) Save(_ context.Context, receipt *Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	return nil
}
