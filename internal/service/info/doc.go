// Package info reports whether the Flatpak portal is reachable and which
// interface version and features it provides.
package info
