package weave

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Chain is the ordered aspect list bound to one Target. Insertion order is
// significant: before-phases run in it, after-phases in reverse.
//
// Configure is serialized; Aspects is lock-free and returns the snapshot
// published by the last successful Configure.
type Chain struct {
	target Target
	log    Logger

	mu      sync.Mutex
	aspects atomic.Pointer[[]Aspect]
}

// NewChain returns an empty chain bound to t. Most callers get chains from a Registry.
func NewChain(t Target, log Logger) *Chain {
	c := &Chain{target: t, log: LoggerOr(log)}
	c.aspects.Store(&[]Aspect{})
	return c
}

func (c *Chain) Target() Target { return c.target }

// Configure instantiates an aspect with f and appends it.
func (c *Chain) Configure(f Factory) error {
	if f == nil {
		return &ConfigError{Target: c.target.String(), Err: ErrNilAspect}
	}
	a, err := f()
	if err != nil {
		if IsConfigError(err) {
			return err
		}
		return &ConfigError{Target: c.target.String(), Msg: "aspect factory failed", Err: err}
	}
	return c.ConfigureAspect(a)
}

// ConfigureAspect appends a. It fails when an aspect of the same concrete type
// is already present or when a Configurable aspect rejects the target.
func (c *Chain) ConfigureAspect(a Aspect) error {
	if a == nil {
		return &ConfigError{Target: c.target.String(), Err: ErrNilAspect}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	at := reflect.TypeOf(a)
	cur := *c.aspects.Load()
	for _, have := range cur {
		if reflect.TypeOf(have) == at {
			return &ConfigError{
				Target: c.target.String(),
				Msg:    fmt.Sprintf("another %s is already defined", at),
				Err:    ErrDuplicateAspect,
			}
		}
	}

	if cfg, ok := a.(Configurable); ok {
		if err := cfg.Configure(c.target); err != nil {
			if IsConfigError(err) {
				return err
			}
			return &ConfigError{Target: c.target.String(), Msg: fmt.Sprintf("configure %s", at), Err: err}
		}
	}

	next := make([]Aspect, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, a)
	c.aspects.Store(&next)

	c.log.Debug("aspect configured", Fields{"target": c.target.String(), "aspect": at.String(), "position": len(next) - 1})
	return nil
}

// Aspects returns the chain in insertion order. The slice must not be modified.
func (c *Chain) Aspects() []Aspect {
	return *c.aspects.Load()
}

// Len is the number of configured aspects.
func (c *Chain) Len() int { return len(c.Aspects()) }

// AspectOf returns the chain's aspect of type A, if any.
func AspectOf[A Aspect](c *Chain) (A, bool) {
	for _, a := range c.Aspects() {
		if v, ok := a.(A); ok {
			return v, true
		}
	}
	var zero A
	return zero, false
}
