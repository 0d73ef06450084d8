// Package watch runs the long-lived update watcher.
//
// The watcher keeps an update monitor open, periodically checks Flathub,
// tracks a Status snapshot persisted in the state repository and serves it
// over the gRPC status API. It can install announced updates and restart into
// the new version without user interaction.
package watch
