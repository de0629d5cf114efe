// Package storage implements the gateway's storage capability (interfaces.KVStore)
// with two interchangeable backends, selected once at startup by KVStoreFactory.
//
// # Connection String Format
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//
//   - file:///var/lib/kvstore
//   - s3://bucket-name/prefix/?region=us-west-2&endpoint=http://minio:9000
//   - http://other-gateway:7777/
//
// A bare filesystem path is accepted and treated as a file:// URI.
//
// # Embedded Store
//
// EmbeddedStore runs a goleveldb LSM engine whose files live in an object
// storage target (see package objstore). ObjectStorage adapts the target to the
// engine's storage interface: each engine file becomes one object, and writes
// become visible in the target on Sync, on Close and on Flush. A background
// flusher uploads pending writes every flush_interval (100ms by default).
//
// On S3 the CURRENT manifest pointer is only ever replaced with a conditional
// write against the version this process last read, so once a second process
// opens the same location the first one is fenced off instead of silently
// overwriting the newer writer's state.
//
// Parameters: sync, flush_interval, write_buffer, compression.
//
// # Remote Store
//
// RemoteStore forwards Set/Get/Delete to <base>/keys/<key> of another gateway.
// Keys and values must be valid UTF-8. A 404 answer to Get means the key is
// absent. Flush does nothing.
//
// Parameters: timeout, strict_status.
//
// # Errors
//
// Absence is interfaces.ErrKeyNotFound. Engine and object store failures wrap
// interfaces.ErrEngine, transport failures wrap interfaces.ErrRemote, text
// encoding violations wrap interfaces.ErrEncoding and bad connection strings
// wrap interfaces.ErrConfig.
package storage
