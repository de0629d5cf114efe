// Package interfaces defines the contracts shared by the gateway's components.
//
// # Storage Capability
//
// KVStore is the four-operation contract (Set, Get, Delete, Flush) that every
// backend implements identically from the caller's perspective. Exactly one
// KVStore exists per process. It is built from a StoreLocation before the HTTP
// listener starts and is shared by all requests until exit.
//
// # Object Storage
//
// ObjectStore is a path-namespaced blob store with optional conditional writes
// (ETag match). The embedded engine persists its files into one.
//
// # Connection Descriptor
//
// StoreLocation is parsed from a single connection string:
//
//	file:///var/lib/kvstore
//	s3://bucket/prefix?region=eu-west-1
//	http://other-gateway:7777/
//	/bare/filesystem/path
//
// # Error Types
//
//   - ErrKeyNotFound: the key maps to no value (not a failure)
//   - ErrConfig: bad connection string or unsupported scheme, fatal at startup
//   - ErrEngine: embedded engine or object storage failure
//   - ErrEncoding: key or value is not valid UTF-8 where the transport needs text
//   - ErrRemote: network failure talking to a remote gateway
package interfaces
