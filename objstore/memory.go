package objstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ruteri/kvgateway/interfaces"
)

// MemoryStore is an in-process object store that enforces conditional writes
// the way S3 does. ETags are content hashes, quoted like S3's.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]interfaces.Object
	name    string
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]interfaces.Object),
		name:    name,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*interfaces.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, interfaces.ErrObjectNotFound
	}
	return &interfaces.Object{Data: append([]byte(nil), obj.Data...), ETag: obj.ETag}, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, opts interfaces.PutOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.objects[key]
	if opts.IfNoneMatch && exists {
		return "", interfaces.ErrPreconditionFailed
	}
	if opts.IfMatch != "" && (!exists || current.ETag != opts.IfMatch) {
		return "", interfaces.ErrPreconditionFailed
	}

	etag := fmt.Sprintf("%q", fmt.Sprintf("%x", sha256.Sum256(data)))
	m.objects[key] = interfaces.Object{Data: append([]byte(nil), data...), ETag: etag}
	return etag, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Name() string {
	return fmt.Sprintf("memory-%s", m.name)
}

func (m *MemoryStore) LocationURI() string {
	return fmt.Sprintf("memory://%s", m.name)
}
