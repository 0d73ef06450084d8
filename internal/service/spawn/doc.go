// Package spawn starts commands in a new sandbox of the running app through
// the portal and optionally waits for them to exit.
package spawn
