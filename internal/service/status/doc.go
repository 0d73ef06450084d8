// Package status queries a running watcher over gRPC and can ask it to
// install the pending update.
package status
