// Package manifest resolves an install request to exactly one downloadable
// artifact.
//
// Two manifest variants exist: the upstream release manifest, attached to
// every tagged release and keyed by platform only, and the nightly manifest,
// which accumulates development and static builds and is keyed by platform,
// version and linkage. Both are headerless comma-separated documents fetched
// over HTTP; both share the fetch and row-splitting plumbing and differ only
// in row width and matching.
//
// Resolution is strict: zero matching rows and multiple matching rows are
// both fatal errors. An ambiguous manifest is a publishing defect and is
// never silently resolved by picking a row.
package manifest
