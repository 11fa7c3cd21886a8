package cache

import (
	"context"
	"errors"
	"sync"
)

// Invalidator drops cached values after the underlying rows change.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...Key) error
}

// Memo is an explicit request-scoped memo table. Values are loaded once per
// key and stay until Invalidate is called.
type Memo struct {
	mu     sync.Mutex
	values map[Key]any
}

// NewMemo returns an empty memo table.
func NewMemo() *Memo {
	return &Memo{values: make(map[Key]any)}
}

// Get returns the memoized value of key.
func (m *Memo) Get(key Key) (any, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Set stores v under key.
func (m *Memo) Set(key Key, v any) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[Key]any)
	}
	m.values[key] = v
}

// Invalidate removes the provided keys.
func (m *Memo) Invalidate(_ context.Context, keys ...Key) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Len returns the number of memoized values.
func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// Load returns the memoized value of key or calls fn and memoizes its result.
// A nil memo always calls fn.
func Load[T any](ctx context.Context, m *Memo, key Key, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := m.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	m.Set(key, v)
	return v, nil
}

// InvalidateAll invalidates keys on the memo attached to ctx and on every
// provided invalidator. All invalidators are attempted; errors are joined.
func InvalidateAll(ctx context.Context, invalidators []Invalidator, keys ...Key) error {
	var errs []error
	if memo, ok := FromContext(ctx); ok {
		if err := memo.Invalidate(ctx, keys...); err != nil {
			errs = append(errs, err)
		}
	}
	for _, inv := range invalidators {
		if inv == nil {
			continue
		}
		if err := inv.Invalidate(ctx, keys...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
