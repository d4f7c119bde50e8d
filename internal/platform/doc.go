// Package platform derives the canonical "{os}-{arch}" tag used to key
// release manifests.
//
// The tag is computed once per run from the runtime OS name and the
// kernel-reported machine architecture, with two aliases applied:
// darwin becomes macos and aarch64 becomes arm64. An explicit override
// always wins and is passed through untouched.
package platform
