package cache

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/internal/util"
)

// Aspect caches method results according to its plans.
//
// Before (Set plans): a usable entry disables the method and this aspect's
// after-phase and becomes the return value. After: successful results are
// stored (Set) or their key deleted (Remove), subject to the plan's condition.
// Cache faults never fail the call; they are logged and the call proceeds
// as if no cache existed.
type Aspect struct {
	opts  Options
	setup *Setup
	log   weave.Logger
	hooks Hooks

	mu     sync.Mutex // configuration only
	bound  bool
	target weave.Target
	prefix string
	plans  map[string]*Plan
}

var (
	_ weave.Aspect       = (*Aspect)(nil)
	_ weave.Configurable = (*Aspect)(nil)
)

// New validates opts and returns an unbound aspect. Plans are compiled when
// the aspect joins a chain. A nil setup means "declared markers only".
func New(opts Options, setup *Setup) (*Aspect, error) {
	if err := opts.Validate(); err != nil {
		return nil, &weave.ConfigError{Msg: "cache options", Err: err}
	}
	if setup == nil {
		setup = NewSetup()
	}
	opts = opts.withDefaults()
	return &Aspect{
		opts:  opts,
		setup: setup,
		log:   opts.Logger,
		hooks: opts.Hooks,
	}, nil
}

// Factory adapts New for weave.Chain.Configure.
func Factory(opts Options, setup *Setup) weave.Factory {
	return func() (weave.Aspect, error) {
		a, err := New(opts, setup)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Configure compiles the plans for t. An aspect binds to exactly one target.
func (a *Aspect) Configure(t weave.Target) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bound {
		return &weave.ConfigError{Target: t.String(), Msg: "cache aspect is already bound to " + a.target.String()}
	}

	prefix := util.DefaultKeyPrefix(t.Implementation)
	if a.setup.keyPrefix != nil {
		prefix = *a.setup.keyPrefix
	}

	rules, err := a.collectRules(t)
	if err != nil {
		return err
	}
	plans := make(map[string]*Plan, len(rules))
	for _, r := range rules {
		p, err := a.compile(t, r, prefix)
		if err != nil {
			return err
		}
		plans[p.Method.Name] = p
	}

	a.target, a.prefix, a.plans, a.bound = t, prefix, plans, true
	a.log.Info("cache plans compiled", weave.Fields{"target": t.String(), "plans": len(plans), "prefix": prefix})
	return nil
}

// Plans returns the diagnostic view of every plan, ordered by method.
func (a *Aspect) Plans() []PlanInfo { return sortedInfos(a.plans) }

// Plan returns the plan of a method, if any.
func (a *Aspect) Plan(method string) (*Plan, bool) {
	p, ok := a.plans[method]
	return p, ok
}

// KeyPrefix is prepended to every resolved template.
func (a *Aspect) KeyPrefix() string { return a.prefix }

func (a *Aspect) Before(call *weave.Call, ret any, mainDisabled bool) (any, weave.Signal) {
	p := a.plans[call.Method.Name]
	if p == nil || mainDisabled {
		return ret, weave.Signal{DisableAfter: true}
	}
	if p.Action != Set {
		return ret, weave.Signal{}
	}

	key, ok := a.resolveKey(p, call.Args, nil)
	if !ok {
		return ret, weave.Signal{}
	}
	if v, hit := a.lookup(call.Context(), p, key); hit {
		a.hooks.Hit(p.Method.Name, key, p.Provider)
		return v, weave.Signal{DisableMain: true, DisableAfter: true}
	}
	a.hooks.Miss(p.Method.Name, key, p.Provider)
	a.snapshotGen(call, key)
	return ret, weave.Signal{}
}

func (a *Aspect) After(call *weave.Call, ret any, mainDisabled bool, mainErr error) any {
	p := a.plans[call.Method.Name]
	if p == nil || mainDisabled || mainErr != nil {
		return ret
	}

	key, ok := a.resolveKey(p, call.Args, ret)
	if !ok {
		a.hooks.Skipped(p.Method.Name, "", "no_key")
		return ret
	}
	if p.Action == Set && isNil(ret) {
		a.log.Debug("nil result is not cached", weave.Fields{"method": p.Method.Name, "key": key})
		a.hooks.Skipped(p.Method.Name, key, "nil_result")
		return ret
	}
	if !a.eligible(p, ret) {
		a.hooks.Skipped(p.Method.Name, key, "condition")
		return ret
	}

	ctx := call.Context()
	switch p.Action {
	case Set:
		a.store(ctx, call, p, key, ret)
	case Remove:
		a.remove(ctx, p.Provider, p.Method.Name, key)
	}
	return ret
}

// lookup reads key from the plan's backend and checks the value against the
// method's result type. Mismatches are misses.
func (a *Aspect) lookup(ctx context.Context, p *Plan, key string) (any, bool) {
	v, ok := a.read(ctx, p.Provider, key, p.Method.Result)
	if !ok {
		return nil, false
	}
	if !compatible(v, p.Method.Result) {
		got := fmt.Sprintf("%T", v)
		a.log.Warn("cached value has wrong type; treating as miss", weave.Fields{
			"method": p.Method.Name, "key": key, "got": got, "want": p.Method.Result.String(),
		})
		a.hooks.TypeMismatch(p.Method.Name, key, got, p.Method.Result.String())
		return nil, false
	}
	return v, true
}

func (a *Aspect) store(ctx context.Context, call *weave.Call, p *Plan, key string, ret any) {
	name := p.Method.Name
	ttl := p.TTL + a.offset(p, ret)
	if ttl <= 0 {
		a.log.Warn("cache timeout must be greater than zero; result not cached", weave.Fields{"method": name, "key": key, "ttl": ttl.String()})
		a.hooks.Skipped(name, key, "ttl")
		return
	}
	gen, stale := a.writeGen(call, key)
	if stale {
		a.log.Debug("key invalidated while method ran; result not cached", weave.Fields{"method": name, "key": key})
		a.hooks.Skipped(name, key, "stale_gen")
		return
	}

	ok, err := a.write(ctx, p.Provider, name, key, ret, ttl, gen)
	switch {
	case err != nil:
		// logged by write
	case !ok:
		a.log.Debug("cache write rejected by provider (pressure)", weave.Fields{"method": name, "key": key})
		a.hooks.Skipped(name, key, "rejected")
	default:
		a.hooks.Stored(name, key, p.Provider, ttl)
	}
}

// resolveKey builds the full key for a call. A blank resolved key means no key.
func (a *Aspect) resolveKey(p *Plan, args []any, ret any) (string, bool) {
	type res struct {
		key string
		ok  bool
	}
	r := try(a, "key", p, res{}, func() res {
		k, ok := p.tpl.Resolve(args, ret)
		if !ok || strings.TrimSpace(k) == "" {
			return res{}
		}
		return res{p.KeyPrefix + k, true}
	})
	return r.key, r.ok
}

func (a *Aspect) eligible(p *Plan, ret any) bool {
	if p.condition == nil {
		return true
	}
	return try(a, "condition", p, false, func() bool { return p.condition(ret) })
}

func (a *Aspect) offset(p *Plan, ret any) time.Duration {
	if p.ttlOffset == nil {
		return 0
	}
	return try(a, "ttl offset", p, time.Duration(0), func() time.Duration { return p.ttlOffset(ret) })
}

// try runs a user-supplied function and turns a panic into def.
func try[T any](a *Aspect, what string, p *Plan, def T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("cache "+what+" function failed", weave.Fields{
				"method":   p.Method.Name,
				"template": p.tpl.String(),
				"panic":    fmt.Sprint(r),
			})
			out = def
		}
	}()
	return fn()
}

func compatible(v any, want reflect.Type) bool {
	if v == nil || want == nil {
		return false
	}
	return reflect.TypeOf(v).AssignableTo(want)
}

// isNil reports nil interfaces and nil values of nilable kinds.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
