// Package packager prepares nightly-manifest rows for locally built artifacts.
//
// It hashes each archive, composes its download URL from a base location,
// and appends platform,version,linkage,url,sha256 rows to a manifest file,
// the exact document the installer's nightly resolver consumes. Duplicate
// keys are refused so a published manifest can never become ambiguous.
package packager
