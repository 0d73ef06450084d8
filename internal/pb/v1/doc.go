// Package v1 holds the wire representation of the status API.
//
// Messages are carried in protobuf well-known types: a status snapshot is a
// google.protobuf.Struct and requests without payload use
// google.protobuf.Empty. This package converts between those and the domain
// types and names the gRPC service and its methods.
package v1
