// Package download streams artifact archives to local storage and verifies
// their SHA-256 digests against the manifest-declared values.
//
// A record missing either its URL or its expected digest is rejected before
// any network traffic, and a digest mismatch aborts the pipeline before
// extraction: a corrupted or tampered archive is never installed.
package download
