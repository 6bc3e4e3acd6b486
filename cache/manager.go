package cache

import (
	"context"
	"fmt"
	"reflect"

	"github.com/unkn0wn-root/weave"
)

// Manager inspects and evicts entries of one cache aspect without calling the
// intercepted service. Keys are resolved templates without the prefix, the
// same text a plan renders (e.g. "user-1").
type Manager struct {
	a *Aspect
}

func NewManager(a *Aspect) *Manager { return &Manager{a: a} }

// ManagerFor returns the manager of the cache aspect configured for contract
// I implemented by T in r.
func ManagerFor[I, T any](r *weave.Registry) (*Manager, error) {
	chain, ok := weave.LookupFor[I, T](r)
	if !ok {
		return nil, fmt.Errorf("cache: no chain for %s/%s", reflect.TypeFor[I](), reflect.TypeFor[T]())
	}
	a, ok := weave.AspectOf[*Aspect](chain)
	if !ok {
		return nil, fmt.Errorf("cache: aspect is not configured for %s", chain.Target())
	}
	return NewManager(a), nil
}

// FullKey is the storage key for key.
func (m *Manager) FullKey(key string) string { return m.a.prefix + key }

// Get returns the entry for key, trying memory first and then the
// distributed backend. Distributed hits come back as the raw payload since
// the caller's type is unknown here; use GetAs to decode.
func (m *Manager) Get(ctx context.Context, key string) (any, bool) {
	if v, ok := m.GetFrom(ctx, key, Memory); ok {
		return v, true
	}
	return m.GetFrom(ctx, key, Distributed)
}

// GetFrom reads key from one backend.
func (m *Manager) GetFrom(ctx context.Context, key string, p Provider) (any, bool) {
	return m.a.read(ctx, p, m.FullKey(key), nil)
}

// GetAs returns the entry for key as T. A memory value must be exactly T;
// a distributed payload is decoded as T.
func GetAs[T any](ctx context.Context, m *Manager, key string) (T, bool) {
	if v, ok := GetAsFrom[T](ctx, m, key, Memory); ok {
		return v, true
	}
	return GetAsFrom[T](ctx, m, key, Distributed)
}

// GetAsFrom is GetAs for one backend.
func GetAsFrom[T any](ctx context.Context, m *Manager, key string, p Provider) (T, bool) {
	var zero T
	want := reflect.TypeFor[T]()
	v, ok := m.a.read(ctx, p, m.FullKey(key), want)
	if !ok || v == nil || reflect.TypeOf(v) != want {
		return zero, false
	}
	return v.(T), true
}

// Remove deletes key from both backends. Missing keys are fine.
func (m *Manager) Remove(ctx context.Context, key string) {
	m.RemoveFrom(ctx, key, Memory)
	m.RemoveFrom(ctx, key, Distributed)
}

// RemoveFrom deletes key from one backend.
func (m *Manager) RemoveFrom(ctx context.Context, key string, p Provider) {
	m.a.remove(ctx, p, "", m.FullKey(key))
}

// Plans lists the aspect's plans for diagnostics.
func (m *Manager) Plans() []PlanInfo { return m.a.Plans() }
