// Package check looks up the latest Flathub release of an app and compares it
// with the installed version.
package check
