// Package checker runs Flathub update checks in the background.
//
// A Task checks one application, optionally after a delay, and reports the
// outcome through callbacks. A Registry keeps the task of the current app.
package checker
