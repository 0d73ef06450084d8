// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC client wrapper for the watcher status API,
// constructors for the portal and Flathub clients from configuration, and
// detection of the current system actor (hostname/username).
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
