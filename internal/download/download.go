package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oshokin/tiledb-fetch/internal/logger"
	"github.com/oshokin/tiledb-fetch/internal/manifest"
)

var (
	// errEmptyURL is returned when a resolved record carries no URL.
	errEmptyURL = errors.New("artifact URL is empty")
	// errEmptyDigest is returned when a resolved record carries no expected
	// digest. Verification is never silently skipped.
	errEmptyDigest = errors.New("expected sha256 is empty")
	// errDigestMismatch is returned when the downloaded bytes hash to
	// something other than the manifest-declared digest.
	errDigestMismatch = errors.New("sha256 mismatch")
	// errBadHTTPStatus is returned when the artifact endpoint answers with
	// a non-success status.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Artifact is a downloaded file whose digest matched the manifest.
// It is only ever produced after verification succeeds.
type Artifact struct {
	// Path is the local file holding the verified archive.
	Path string
	// SHA256 is the verified hex digest of the file contents.
	SHA256 string
}

// Downloader streams manifest-resolved artifacts to disk and verifies them.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a downloader.
// A nil client falls back to http.DefaultClient.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}

	return &Downloader{client: client}
}

// Fetch downloads the record's URL into destDir, naming the file after the
// URL's final path segment, and verifies its SHA-256 digest against the
// record. The record is validated before any network request is issued, and
// no Artifact is ever returned for unverified bytes.
func (d *Downloader) Fetch(ctx context.Context, record *manifest.Record, destDir string) (*Artifact, error) {
	if record == nil || record.URL == "" {
		return nil, errEmptyURL
	}

	if record.SHA256 == "" {
		return nil, errEmptyDigest
	}

	parsed, err := url.Parse(record.URL)
	if err != nil {
		return nil, fmt.Errorf("parse artifact URL: %w", err)
	}

	destPath := filepath.Join(destDir, path.Base(parsed.Path))

	logger.InfoKV(ctx, "Downloading artifact", "url", record.URL, "path", destPath)

	if err = d.downloadToFile(ctx, record.URL, destPath); err != nil {
		return nil, err
	}

	found, err := FileSHA256(destPath)
	if err != nil {
		return nil, fmt.Errorf("hash downloaded artifact: %w", err)
	}

	if !strings.EqualFold(found, record.SHA256) {
		return nil, fmt.Errorf("%w: found %s, expected %s", errDigestMismatch, found, record.SHA256)
	}

	logger.InfoKV(ctx, "Verified artifact digest", "sha256", found)

	return &Artifact{
		Path:   destPath,
		SHA256: found,
	}, nil
}

// downloadToFile streams the response body to a temporary file next to the
// destination and renames it into place, so a failed transfer never leaves
// a truncated file under the final name.
func (d *Downloader) downloadToFile(ctx context.Context, fileURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	response, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", fileURL, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s: %w", fileURL, response.Status, errBadHTTPStatus)
	}

	if err = os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	tmpPath := destPath + ".tmp"

	tmpFile, err := os.Create(filepath.Clean(tmpPath))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	// Stream the body: artifacts may be large and must not be buffered whole.
	if _, err = io.Copy(tmpFile, response.Body); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("write artifact: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("close temp file: %w", err)
	}

	if err = os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// FileSHA256 returns the hex SHA-256 digest of a file, hashing it in a
// streaming pass. The packager uses it to declare digests and the
// downloader to verify them, so both ends of the manifest agree.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
