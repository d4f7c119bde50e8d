// Package pkgconfig relocates the build-configuration file shipped inside
// installed archives.
//
// Prebuilt archives carry a .pc file whose prefix field reflects the
// build machine, not the extraction location. Relocate rewrites that one
// field to the actual install root and reports the lib/pkgconfig directory
// that downstream tooling should put on PKG_CONFIG_PATH.
package pkgconfig
