package pkgconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/tiledb-fetch/internal/logger"
)

const (
	// DiscoveryEnvVar is the variable downstream build steps read to
	// locate installed libraries without hardcoding the install path.
	DiscoveryEnvVar = "PKG_CONFIG_PATH"

	// prefixKey is the field rewritten after extraction. Archives are
	// built with a build-time prefix that no longer matches where the
	// archive actually landed.
	prefixKey = "prefix="

	// pcFileMode is the permission of the rewritten .pc file.
	pcFileMode os.FileMode = 0o644
)

// errNoPrefixLine is returned when the .pc file contains no prefix field,
// which means the installed archive is malformed or incompatible.
var errNoPrefixLine = errors.New("no prefix= line in pkg-config file")

// Dir returns the pkg-config directory under an install root.
func Dir(installRoot string) string {
	return filepath.Join(installRoot, "lib", "pkgconfig")
}

// FilePath returns the location of a library's .pc file under an install root.
func FilePath(installRoot, libraryName string) string {
	return filepath.Join(Dir(installRoot), libraryName+".pc")
}

// Relocate rewrites the prefix field of the installed .pc file to the
// absolute install root, leaving every other line untouched and in order,
// and returns the pkg-config directory to expose via DiscoveryEnvVar.
// The file is replaced atomically so a failure mid-write never leaves a
// truncated file behind. Rewriting an already-relocated file is stable.
func Relocate(ctx context.Context, installRoot, libraryName string) (string, error) {
	absRoot, err := filepath.Abs(installRoot)
	if err != nil {
		return "", fmt.Errorf("resolve install root: %w", err)
	}

	pcPath := FilePath(absRoot, libraryName)

	contents, err := os.ReadFile(filepath.Clean(pcPath))
	if err != nil {
		return "", fmt.Errorf("read pkg-config file: %w", err)
	}

	rewritten, err := rewritePrefix(string(contents), absRoot)
	if err != nil {
		return "", fmt.Errorf("%s: %w", pcPath, err)
	}

	if err = apply(pcPath, []byte(rewritten)); err != nil {
		return "", fmt.Errorf("rewrite pkg-config file: %w", err)
	}

	dir := Dir(absRoot)
	logger.InfoKV(ctx, "Relocated pkg-config prefix",
		"file", pcPath, "prefix", absRoot, DiscoveryEnvVar, dir)

	return dir, nil
}

// rewritePrefix replaces every line starting with the prefix key by a
// quoted assignment of the install root. Line order and all other lines
// are preserved byte for byte.
func rewritePrefix(contents, installRoot string) (string, error) {
	lines := strings.Split(contents, "\n")
	replaced := false

	for i, line := range lines {
		if !strings.HasPrefix(line, prefixKey) {
			continue
		}

		lines[i] = fmt.Sprintf("%s%q", prefixKey, installRoot)
		replaced = true
	}

	if !replaced {
		return "", errNoPrefixLine
	}

	return strings.Join(lines, "\n"), nil
}

// apply replaces the target file atomically (write new, rename over).
func apply(path string, contents []byte) error {
	options := goupdate.Options{
		TargetPath: path,
		TargetMode: pcFileMode,
	}

	if err := goupdate.Apply(bytes.NewReader(contents), options); err != nil {
		return err
	}

	// Apply keeps a backup on platforms where the old file cannot be
	// removed in place; it is of no use for a freshly extracted tree.
	oldPath := path + ".old"
	if _, err := os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}
