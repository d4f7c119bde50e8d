// Package archive extracts verified .tar.gz artifacts into the install root.
//
// Entry paths are validated so that no file, directory or symlink can be
// written outside the destination, even though the archive bytes were
// already digest-verified.
package archive
