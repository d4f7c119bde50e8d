// Package integration contains end-to-end tests that run the installer and
// packager services against local HTTP servers and temporary directories.
package integration
