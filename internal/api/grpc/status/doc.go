// Package status implements the gRPC transport for the watcher status.
//
// It adapts domain types to the well-known protobuf messages of the status
// API and exposes a server that calls into a provided business-service
// interface.
package status
