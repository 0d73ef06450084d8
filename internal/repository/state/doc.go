// Package state implements persistence for the watcher Status.
//
// The FileRepository stores and loads the status as JSON on disk and exposes a
// Repository interface that the watch service depends on.
package state
