// Package objstore provides the object storage targets the embedded engine
// persists into.
//
// A target is a namespace of byte blobs addressable by slash-separated keys
// (interfaces.ObjectStore). Two targets are selectable from a connection string:
//
//   - FileStore: the local filesystem. Writes are atomic renames; conditional
//     writes are not enforced, so a single process must own the directory.
//   - S3Store: Amazon S3 or an S3-compatible service (plaintext endpoints
//     allowed, no request timeouts). Writes can be conditioned on the object's
//     ETag, which the engine relies on to detect a second writer.
//
// MemoryStore implements the same conditional semantics in process and
// PrefixedStore roots a target at a path.
package objstore
