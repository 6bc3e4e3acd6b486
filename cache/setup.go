package cache

import (
	"reflect"
	"time"

	"github.com/unkn0wn-root/weave"
)

// Setup is the imperative configuration of a cache aspect. The zero value is
// not usable; start from NewSetup.
//
//	s := cache.NewSetup().DefaultTTL(10 * time.Minute)
//	cache.SetFor[*User](s, getUser, "user-{id}").When(func(u *User) bool { return u.Active })
//	cache.RemoveFor[bool](s, updateUser, "user-{user.Id}")
//
// Rules are compiled and validated when the aspect joins a chain.
type Setup struct {
	importDeclared bool
	keyPrefix      *string
	provider       Provider
	ttl            time.Duration
	rules          []*rule
}

func NewSetup() *Setup {
	return &Setup{provider: defaultProvider, ttl: defaultTTL}
}

// ImportDeclared keeps the implementation's declared markers even though
// explicit rules exist. Explicit rules win for the same method.
func (s *Setup) ImportDeclared() *Setup {
	s.importDeclared = true
	return s
}

// KeyPrefix overrides "<process>.<implementation type>." for every key.
// An empty prefix is allowed.
func (s *Setup) KeyPrefix(p string) *Setup {
	s.keyPrefix = &p
	return s
}

// DefaultProvider applies to rules and markers that do not pick one.
func (s *Setup) DefaultProvider(p Provider) *Setup {
	s.provider = p
	return s
}

// DefaultTTL applies to Set rules and markers without their own TTL.
func (s *Setup) DefaultTTL(d time.Duration) *Setup {
	s.ttl = d
	return s
}

// Empty reports whether no explicit rule was added.
func (s *Setup) Empty() bool { return len(s.rules) == 0 }

// rule is the type-erased form of SetRule and RemoveRule.
type rule struct {
	method     weave.Method
	action     Action
	key        string
	resultType reflect.Type // R of the typed builder
	provider   Provider
	ttl        time.Duration
	ttlSet     bool
	condition  func(any) bool
	ttlOffset  func(any) time.Duration
	noResult   bool // key template may not bind the return value
}

func (s *Setup) add(r *rule) { s.rules = append(s.rules, r) }

// SetRule refines a Set rule for a method returning R.
type SetRule[R any] struct{ r *rule }

// SetFor caches the results of m under key template tpl.
func SetFor[R any](s *Setup, m weave.Method, tpl string) *SetRule[R] {
	r := &rule{method: m, action: Set, key: tpl, resultType: reflect.TypeFor[R]()}
	s.add(r)
	return &SetRule[R]{r: r}
}

// TTL overrides the default TTL. Zero or negative values are rejected at configuration.
func (b *SetRule[R]) TTL(d time.Duration) *SetRule[R] {
	b.r.ttl, b.r.ttlSet = d, true
	return b
}

func (b *SetRule[R]) Provider(p Provider) *SetRule[R] {
	b.r.provider = p
	return b
}

// When caches only results for which fn returns true.
func (b *SetRule[R]) When(fn func(R) bool) *SetRule[R] {
	b.r.condition = erasePredicate(fn)
	return b
}

// TTLOffset adds a per-result amount to the base TTL. A non-positive sum skips caching.
func (b *SetRule[R]) TTLOffset(fn func(R) time.Duration) *SetRule[R] {
	if fn == nil {
		b.r.ttlOffset = nil
		return b
	}
	b.r.ttlOffset = func(v any) time.Duration {
		r, _ := v.(R)
		return fn(r)
	}
	return b
}

// RemoveRule refines a Remove rule for a method returning R.
type RemoveRule[R any] struct{ r *rule }

// RemoveFor deletes the entry at tpl after m succeeded.
func RemoveFor[R any](s *Setup, m weave.Method, tpl string) *RemoveRule[R] {
	r := &rule{method: m, action: Remove, key: tpl, resultType: reflect.TypeFor[R]()}
	s.add(r)
	return &RemoveRule[R]{r: r}
}

// RemoveForVoid binds no return value: tpl may only reference parameters.
// It is the form for methods declared with weave.Proc.
func RemoveForVoid(s *Setup, m weave.Method, tpl string) *RemoveRule[any] {
	b := RemoveFor[any](s, m, tpl)
	b.r.noResult = true
	return b
}

func (b *RemoveRule[R]) Provider(p Provider) *RemoveRule[R] {
	b.r.provider = p
	return b
}

// When removes only for results where fn returns true.
func (b *RemoveRule[R]) When(fn func(R) bool) *RemoveRule[R] {
	b.r.condition = erasePredicate(fn)
	return b
}

func erasePredicate[R any](fn func(R) bool) func(any) bool {
	if fn == nil {
		return nil
	}
	return func(v any) bool {
		r, _ := v.(R)
		return fn(r)
	}
}

// markerRule turns a declared marker into a rule bound to the contract method.
func markerRule(m weave.Method, mk Marker) *rule {
	return &rule{
		method:     m,
		action:     mk.Action,
		key:        mk.Key,
		resultType: m.Result,
		provider:   mk.Provider,
		ttl:        mk.TTL,
		ttlSet:     mk.TTL != 0,
	}
}
