package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/oshokin/tiledb-fetch/internal/logger"
)

// Tag returns the canonical "{os}-{arch}" platform tag for this run.
// A non-empty override is returned verbatim; otherwise the tag is derived
// from the running system. The result is stable for the whole invocation.
func Tag(ctx context.Context, override string) (string, error) {
	if override != "" {
		logger.InfoKV(ctx, "Using explicit platform override", "platform", override)
		return override, nil
	}

	// KernelArch reports the machine architecture the way uname does
	// (x86_64, aarch64, arm64), which is what release manifests are keyed by.
	arch, err := host.KernelArch()
	if err != nil {
		return "", fmt.Errorf("query machine architecture: %w", err)
	}

	tag := Join(runtime.GOOS, arch)
	logger.InfoKV(ctx, "Detected platform", "platform", tag)

	return tag, nil
}

// Join builds a platform tag from raw OS and architecture names,
// lowercasing both and applying the canonical aliases.
func Join(osName, arch string) string {
	return normalizeOS(osName) + "-" + normalizeArch(arch)
}

// normalizeOS lowercases the OS name and maps darwin to macos.
// No other OS name is aliased.
func normalizeOS(osName string) string {
	osName = strings.ToLower(strings.TrimSpace(osName))
	if osName == "darwin" {
		return "macos"
	}

	return osName
}

// normalizeArch lowercases the architecture and maps aarch64 to arm64.
// No other architecture is aliased.
func normalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	if arch == "aarch64" {
		return "arm64"
	}

	return arch
}
