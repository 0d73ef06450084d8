// Package flathub queries the Flathub appstream API for the latest published
// release of an application.
package flathub
