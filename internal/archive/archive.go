package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// errPathEscape is returned for archive entries that would be written
// outside the destination directory.
var errPathEscape = errors.New("archive entry escapes destination")

// ExtractTarGz extracts a gzip-compressed tar archive into destDir,
// creating it if absent. Entries are treated as untrusted: the digest
// check proves the archive matches the manifest, not that its internal
// paths are safe, so anything resolving outside destDir is rejected.
func ExtractTarGz(archivePath, destDir string) error {
	archiveFile, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = archiveFile.Close()
	}()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("read gzip stream: %w", err)
	}

	defer func() {
		_ = gzipReader.Close()
	}()

	if err = os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	// The destination itself may sit behind symlinks (a /tmp that is one,
	// for example), so containment of resolved paths is checked against
	// its real location.
	realDest, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fmt.Errorf("resolve destination directory: %w", err)
	}

	tarReader := tar.NewReader(gzipReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := secureJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		// A symlinked directory placed by an earlier entry must not
		// redirect this entry outside the destination.
		if err = verifyRealParent(realDest, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if err = writeFileEntry(target, tarReader, header.FileInfo().Mode()); err != nil {
				return err
			}

		case tar.TypeSymlink:
			// An absolute link target always leaves the destination.
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("%w: %s", errPathEscape, header.Linkname)
			}

			// The target, resolved relative to the link's own directory,
			// must also stay inside the destination.
			if _, err = secureJoin(destDir, filepath.Join(filepath.Dir(header.Name), header.Linkname)); err != nil {
				return err
			}

			if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent directory for %s: %w", target, err)
			}

			// Re-extraction over an existing tree must not fail on old links.
			_ = os.Remove(target)

			if err = os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}

		default:
			// Devices, fifos and the like are skipped.
			continue
		}
	}
}

// writeFileEntry writes a single regular file from the tar stream.
func writeFileEntry(target string, contents io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", target, err)
	}

	outFile, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err = io.Copy(outFile, contents); err != nil {
		_ = outFile.Close()

		return fmt.Errorf("write file %s: %w", target, err)
	}

	if err = outFile.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}

	return nil
}

// verifyRealParent follows any symlinks in target's deepest existing
// ancestor and rejects targets whose real parent lies outside realDest.
// The lexical check in secureJoin cannot see symlinks that already exist
// on disk, whether extracted earlier or left over from a previous run.
func verifyRealParent(realDest, target string) error {
	parent := filepath.Dir(target)

	for {
		resolved, err := filepath.EvalSymlinks(parent)
		if errors.Is(err, os.ErrNotExist) {
			next := filepath.Dir(parent)
			if next == parent {
				return nil
			}

			parent = next

			continue
		}

		if err != nil {
			return fmt.Errorf("resolve %s: %w", parent, err)
		}

		if resolved != realDest && !strings.HasPrefix(resolved, realDest+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", errPathEscape, target)
		}

		return nil
	}
}

// secureJoin joins name onto base and rejects results outside base.
func secureJoin(base, name string) (string, error) {
	target := filepath.Join(base, name)

	cleanBase := filepath.Clean(base)
	if target != cleanBase && !strings.HasPrefix(target, cleanBase+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", errPathEscape, name)
	}

	return target, nil
}
