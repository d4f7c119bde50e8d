// Package config defines installer settings and provides helpers to load,
// validate and save them in YAML format.
//
// The Config type holds the manifest endpoints, the install root and the
// pkg-config library name. A settings file is optional: the defaults cover
// the standard TileDB endpoints and an install root under the user's home.
package config
