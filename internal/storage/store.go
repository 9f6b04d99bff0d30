// Package storage holds the durable key/value namespace a browser device
// sees as its local and session storage.
package storage

import (
	"context"
)

// Store is a flat string key/value store. Get returns sentinel.ErrNotFound
// for absent keys. SetMany writes every pair or none.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Prefixed scopes every key of an underlying store under a namespace, so one
// backend can hold many devices.
type Prefixed struct {
	store  Store
	prefix string
}

// NewPrefixed returns a view of store whose keys are prefixed with prefix + ":".
func NewPrefixed(store Store, prefix string) *Prefixed {
	return &Prefixed{store: store, prefix: prefix + ":"}
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) SetMany(ctx context.Context, values map[string]string) error {
	scoped := make(map[string]string, len(values))
	for k, v := range values {
		scoped[p.prefix+k] = v
	}
	return p.store.SetMany(ctx, scoped)
}

func (p *Prefixed) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = p.prefix + k
	}
	return p.store.Delete(ctx, scoped...)
}
