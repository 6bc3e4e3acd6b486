package weave

import (
	"reflect"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

type chainKey struct {
	contract reflect.Type
	impl     reflect.Type
}

// RegistryOptions tune a Registry. The zero value is usable.
type RegistryOptions struct {
	Logger Logger // if nil, NopLogger is used
}

// Registry owns the chains of one configuration scope, keyed by
// (contract, implementation). Proxies built from the same registry share
// chains; separate registries never see each other's aspects.
type Registry struct {
	chains *xsync.MapOf[chainKey, *Chain]
	log    Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		chains: xsync.NewMapOf[chainKey, *Chain](),
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
	}
}

// Chain returns the chain for t, creating it on first use. The method set of
// the first call wins.
func (r *Registry) Chain(t Target) *Chain {
	c, _ := r.chains.LoadOrCompute(chainKey{t.Contract, t.Implementation}, func() *Chain {
		return NewChain(t, r.log)
	})
	return c
}

// Lookup returns an existing chain without creating one.
func (r *Registry) Lookup(contract, impl reflect.Type) (*Chain, bool) {
	return r.chains.Load(chainKey{contract, impl})
}

// Targets lists every registered target ordered by name.
func (r *Registry) Targets() []Target {
	out := make([]Target, 0, r.chains.Size())
	r.chains.Range(func(_ chainKey, c *Chain) bool {
		out = append(out, c.Target())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// For returns the chain for contract I implemented by T.
func For[I, T any](r *Registry, methods ...Method) *Chain {
	return r.Chain(TargetFor[I, T](methods...))
}

// LookupFor is the generic form of Lookup.
func LookupFor[I, T any](r *Registry) (*Chain, bool) {
	return r.Lookup(reflect.TypeFor[I](), reflect.TypeFor[T]())
}
