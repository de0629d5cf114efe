package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by KVStore.Get when no value is mapped to the key.
	// It is not a failure: the HTTP layer renders it as 404, never as 500.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidKey is returned when a key is empty.
	ErrInvalidKey = errors.New("invalid key: must not be empty")

	// ErrConfig is returned when a connection string is malformed or selects an
	// unsupported scheme. It aborts startup.
	ErrConfig = errors.New("invalid store configuration")

	// ErrEngine is returned when the embedded engine or the object storage target
	// underneath it fails. It is reported as-is and never retried by the adapter.
	ErrEngine = errors.New("storage engine failure")

	// ErrEncoding is returned when a key or value cannot be represented on a
	// text-only transport. The remote proxy adapter requires valid UTF-8.
	ErrEncoding = errors.New("key or value is not valid UTF-8")

	// ErrRemote is returned when a forwarded request fails at the transport level,
	// or, in strict status mode, when the remote answers with an error status.
	ErrRemote = errors.New("remote store request failed")

	// ErrObjectNotFound is returned by ObjectStore.Get for a missing object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrPreconditionFailed is returned by ObjectStore.Put when a conditional write
	// does not match the object's current version.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrFenced is returned by the embedded engine's storage once another process
	// has taken ownership of the same location.
	ErrFenced = errors.New("writer fenced by a newer owner")
)

// KVStore is the storage capability handle shared by every served request.
//
// Keys are non-empty opaque byte strings. Absence of a key is reported by Get as
// ErrKeyNotFound; a store never holds a "nil" marker value. Implementations are
// safe for concurrent use and add no ordering between operations on different
// keys.
type KVStore interface {
	// Set upserts value under key, replacing any existing value.
	Set(ctx context.Context, key, value []byte) error

	// Get returns the current value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Delete removes key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key []byte) error

	// Flush makes every previously accepted write durable before returning.
	Flush(ctx context.Context) error

	// Close flushes and releases the backend.
	Close() error

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns the connection string this store was built from.
	LocationURI() string
}

// KVStoreFactory builds the single KVStore of a process from its location.
type KVStoreFactory interface {
	KVStoreFor(ctx context.Context, location StoreLocation) (KVStore, error)
}

// Object is a blob read from an ObjectStore together with its version tag.
type Object struct {
	Data []byte
	ETag string
}

// PutOptions makes an ObjectStore.Put conditional.
type PutOptions struct {
	// IfMatch accepts the write only if the stored object's ETag equals it.
	IfMatch string

	// IfNoneMatch accepts the write only if no object exists under the key.
	IfNoneMatch bool
}

// ObjectStore is a namespace of byte blobs addressable by slash-separated keys.
//
// Stores with conditional-write support reject a Put whose PutOptions do not
// match with ErrPreconditionFailed. Stores without it (the local filesystem)
// accept every Put.
type ObjectStore interface {
	// Get returns the object stored under key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) (*Object, error)

	// Put stores data under key and returns the new ETag.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) (string, error)

	// Delete removes the object. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error

	// List returns the keys starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this store.
	LocationURI() string
}
