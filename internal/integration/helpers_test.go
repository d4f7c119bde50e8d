package integration

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// pcContents is a realistic build-configuration file with a build-time
// prefix that will not match the extraction location.
const pcContents = "prefix=/opt/build/prefix\n" +
	"exec_prefix=${prefix}\n" +
	"libdir=${exec_prefix}/lib\n" +
	"includedir=${prefix}/include\n" +
	"\n" +
	"Name: tiledb\n" +
	"Description: TileDB storage engine\n" +
	"Version: 2.27.0\n" +
	"Libs: -L${libdir} -ltiledb\n" +
	"Cflags: -I${includedir}\n"

// buildArtifact produces a tar.gz archive shaped like a prebuilt library
// release and returns its bytes together with their hex SHA-256 digest.
func buildArtifact(t *testing.T) ([]byte, string) {
	t.Helper()

	var buffer bytes.Buffer

	gzipWriter := gzip.NewWriter(&buffer)
	tarWriter := tar.NewWriter(gzipWriter)

	entries := []struct {
		name string
		body string
	}{
		{name: "lib/pkgconfig/tiledb.pc", body: pcContents},
		{name: "lib/libtiledb.so", body: "elf bytes"},
		{name: "include/tiledb/tiledb.h", body: "// tiledb header\n"},
	}

	for _, entry := range entries {
		require.NoError(t, tarWriter.WriteHeader(&tar.Header{
			Name: entry.name,
			Mode: 0o644,
			Size: int64(len(entry.body)),
		}))

		_, err := tarWriter.Write([]byte(entry.body))
		require.NoError(t, err)
	}

	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzipWriter.Close())

	digest := sha256.Sum256(buffer.Bytes())

	return buffer.Bytes(), hex.EncodeToString(digest[:])
}
