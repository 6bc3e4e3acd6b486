package cache

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/codec"
	"github.com/unkn0wn-root/weave/genstore"
	pr "github.com/unkn0wn-root/weave/provider"
)

// SetCostFunc computes the cost passed to a distributed Provider on Set.
type SetCostFunc func(key string, payload []byte) int64

// Options wire the aspect to its backends. At least one of Memory and
// Distributed is required; plans selecting a missing backend fail to configure.
type Options struct {
	Memory      pr.Store
	Distributed pr.Provider

	Codec          codec.Codec       // distributed payloads; nil => codec.Msgpack{}
	Generations    genstore.GenStore // nil => no stale-write suppression
	Logger         weave.Logger      // if nil, NopLogger is used
	Hooks          Hooks             // if nil, NopHooks is used
	ComputeSetCost SetCostFunc       // default len(payload)
}

func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Memory,
			validation.When(o.Distributed == nil, validation.Required.Error("memory or distributed backend is required"))),
	)
}

func (o Options) withDefaults() Options {
	o.Codec = coalesce[codec.Codec](o.Codec, codec.Msgpack{})
	o.Logger = coalesce[weave.Logger](o.Logger, weave.NopLogger{})
	o.Hooks = coalesce[Hooks](o.Hooks, NopHooks{})
	if o.ComputeSetCost == nil {
		o.ComputeSetCost = func(_ string, payload []byte) int64 { return int64(len(payload)) }
	}
	return o
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
