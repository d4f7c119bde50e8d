// Package installer runs the artifact install pipeline.
//
// A single run resolves the platform tag, selects and queries the right
// manifest variant, downloads and digest-verifies the archive, extracts it
// into the install root and relocates the pkg-config prefix. Stages run
// strictly in sequence, any failure aborts the run, and re-running with
// identical inputs is idempotent in effect.
package installer
