// Package receipt implements persistence for the install receipt.
//
// The FileRepository stores what the last successful run installed
// (version, linkage, platform, digest) as YAML under the install root,
// and exposes a Repository interface the installer service depends on.
package receipt
