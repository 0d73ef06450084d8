// Package portal is a client of the Flatpak portal on the session bus
// (org.freedesktop.portal.Flatpak).
//
// It reads the portal properties, creates update monitors and drives updates
// through them, spawns new instances of the calling app and decodes the
// SpawnStarted, SpawnExited, UpdateAvailable and Progress signals into typed
// events.
package portal
