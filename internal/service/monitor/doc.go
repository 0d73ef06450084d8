// Package monitor installs the pending update of the running app through a
// portal UpdateMonitor and reports installation progress.
package monitor
