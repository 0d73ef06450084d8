// Package update contains the domain types shared by the portal client,
// the Flathub checker and the watcher.
//
// It defines spawn flags and their validation, the payloads carried by the
// UpdateMonitor signals (UpdateInfo, Progress), Flathub releases with version
// comparison, and the Status snapshot served to other processes.
package update
