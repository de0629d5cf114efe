package objstore

import (
	"context"
	"strings"

	"github.com/ruteri/kvgateway/interfaces"
)

// PrefixedStore scopes an ObjectStore to the keys below a path prefix.
type PrefixedStore struct {
	store  interfaces.ObjectStore
	prefix string
}

// Prefixed returns a view of store rooted at prefix. The prefix is cleaned like
// a path, so "/tmp/db", "tmp//db/" and "/tmp/./db" name the same root.
func Prefixed(store interfaces.ObjectStore, prefix string) *PrefixedStore {
	prefix = strings.TrimPrefix(cleanRoot(prefix), "/")
	if prefix != "" {
		prefix += "/"
	}
	return &PrefixedStore{store: store, prefix: prefix}
}

func (p *PrefixedStore) Get(ctx context.Context, key string) (*interfaces.Object, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *PrefixedStore) Put(ctx context.Context, key string, data []byte, opts interfaces.PutOptions) (string, error) {
	return p.store.Put(ctx, p.prefix+key, data, opts)
}

func (p *PrefixedStore) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.prefix+key)
}

// List returns keys relative to the prefix.
func (p *PrefixedStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.store.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, p.prefix)
	}
	return keys, nil
}

func (p *PrefixedStore) Name() string {
	return p.store.Name() + "/" + strings.TrimSuffix(p.prefix, "/")
}

// LocationURI returns the URI of the underlying store.
func (p *PrefixedStore) LocationURI() string {
	return p.store.LocationURI()
}
