package cache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/internal/wire"
)

// read fetches key from one backend. Distributed entries are unframed,
// checked against the codec and the key's current generation, and decoded
// into typ; entries failing any check are deleted. With a nil typ the raw
// payload is returned.
func (a *Aspect) read(ctx context.Context, p Provider, key string, typ reflect.Type) (any, bool) {
	switch p {
	case Memory:
		if a.opts.Memory == nil {
			return nil, false
		}
		v, ok, err := a.opts.Memory.Get(ctx, key)
		if err != nil {
			a.providerError("get", p, key, err)
			return nil, false
		}
		return v, ok && v != nil
	case Distributed:
		if a.opts.Distributed == nil {
			return nil, false
		}
		b, ok, err := a.opts.Distributed.Get(ctx, key)
		if err != nil {
			a.providerError("get", p, key, err)
			return nil, false
		}
		if !ok {
			return nil, false
		}
		e, err := wire.Decode(b)
		if err != nil {
			a.selfHeal(ctx, key, "corrupt", err)
			return nil, false
		}
		if e.Codec != a.opts.Codec.Name() {
			a.selfHeal(ctx, key, "codec_mismatch", fmt.Errorf("entry codec %q, configured %q", e.Codec, a.opts.Codec.Name()))
			return nil, false
		}
		if a.opts.Generations != nil {
			cur, err := a.opts.Generations.Snapshot(ctx, key)
			if err != nil {
				a.log.Warn("generation snapshot failed", weave.Fields{"key": key, "err": err})
				a.hooks.GenError(key, err)
				return nil, false
			}
			if cur != e.Gen {
				a.selfHeal(ctx, key, "gen_mismatch", fmt.Errorf("entry generation %d, current %d", e.Gen, cur))
				return nil, false
			}
		}
		if typ == nil {
			return e.Payload, true
		}
		v, err := a.opts.Codec.Decode(e.Payload, typ)
		if err != nil {
			a.selfHeal(ctx, key, "value_decode", err)
			return nil, false
		}
		return v, true
	}
	return nil, false
}

func (a *Aspect) selfHeal(ctx context.Context, key, reason string, err error) {
	a.log.Warn("unusable distributed entry; deleting", weave.Fields{"key": key, "reason": reason, "err": err})
	a.hooks.SelfHeal(key, reason)
	if err := a.opts.Distributed.Del(ctx, key); err != nil {
		a.providerError("del", Distributed, key, err)
	}
}

// write stores v. Distributed values are encoded and framed with gen.
func (a *Aspect) write(ctx context.Context, p Provider, method, key string, v any, ttl time.Duration, gen uint64) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch p {
	case Memory:
		ok, err = a.opts.Memory.Set(ctx, key, v, ttl)
	case Distributed:
		var payload []byte
		payload, err = a.opts.Codec.Encode(v)
		if err != nil {
			a.log.Error("cache value could not be encoded", weave.Fields{"method": method, "key": key, "codec": a.opts.Codec.Name(), "err": err})
			a.hooks.Skipped(method, key, "encode")
			return false, err
		}
		b := wire.Encode(wire.Entry{Gen: gen, Codec: a.opts.Codec.Name(), Payload: payload})
		ok, err = a.opts.Distributed.Set(ctx, key, b, a.opts.ComputeSetCost(key, b), ttl)
	}
	if err != nil {
		a.providerError("set", p, key, err)
	}
	return ok, err
}

// remove deletes key from one backend and bumps its generation. An
// unconfigured backend is a no-op.
func (a *Aspect) remove(ctx context.Context, p Provider, method, key string) {
	var err error
	switch {
	case p == Memory && a.opts.Memory != nil:
		err = a.opts.Memory.Del(ctx, key)
	case p == Distributed && a.opts.Distributed != nil:
		err = a.opts.Distributed.Del(ctx, key)
	default:
		return
	}
	a.bumpGen(ctx, key)
	if err != nil {
		a.providerError("del", p, key, err)
		return
	}
	a.hooks.Removed(method, key, p)
}

func (a *Aspect) providerError(op string, p Provider, key string, err error) {
	a.log.Warn("cache provider error", weave.Fields{"op": op, "provider": p.String(), "key": key, "err": err})
	a.hooks.ProviderError(op, key, err)
}

type genCtxKey struct{}

type genSnapshot struct {
	key string
	gen uint64
}

// snapshotGen records the key's generation on the call so the after-phase
// can tell whether a Remove happened while the method ran.
func (a *Aspect) snapshotGen(call *weave.Call, key string) {
	if a.opts.Generations == nil {
		return
	}
	ctx := call.Context()
	g, err := a.opts.Generations.Snapshot(ctx, key)
	if err != nil {
		a.log.Warn("generation snapshot failed", weave.Fields{"key": key, "err": err})
		a.hooks.GenError(key, err)
		return
	}
	call.WithContext(context.WithValue(ctx, genCtxKey{}, genSnapshot{key: key, gen: g}))
}

// writeGen returns the generation to stamp on a write and whether the write
// is stale: the key was removed while the method ran. Without a snapshot for
// key the current generation is used. If the generation cannot be read the
// write is stale.
func (a *Aspect) writeGen(call *weave.Call, key string) (gen uint64, stale bool) {
	if a.opts.Generations == nil {
		return 0, false
	}
	ctx := call.Context()
	cur, err := a.opts.Generations.Snapshot(ctx, key)
	if err != nil {
		a.log.Warn("generation snapshot failed", weave.Fields{"key": key, "err": err})
		a.hooks.GenError(key, err)
		return 0, true
	}
	snap, ok := ctx.Value(genCtxKey{}).(genSnapshot)
	if !ok || snap.key != key {
		return cur, false
	}
	return cur, cur != snap.gen
}

func (a *Aspect) bumpGen(ctx context.Context, key string) {
	if a.opts.Generations == nil {
		return
	}
	if _, err := a.opts.Generations.Bump(ctx, key); err != nil {
		a.log.Warn("generation bump failed", weave.Fields{"key": key, "err": err})
		a.hooks.GenError(key, err)
	}
}
