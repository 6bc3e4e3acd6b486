package weave

import "context"

// Signal carries the control decisions of a before-phase.
type Signal struct {
	// DisableMain suppresses the real call. Once any aspect sets it, it stays
	// set for every aspect that follows.
	DisableMain bool
	// DisableAfter skips this aspect's own after-phase only.
	DisableAfter bool
}

// Aspect is a unit of cross-cutting behavior around intercepted calls.
//
// Before runs in registration order and receives the running return value,
// which it may replace. After runs in reverse registration order with the
// value produced by the main method (or by the before-phases when the main
// method was disabled) and the captured main error, and may transform it.
//
// One instance serves every concurrent call on its chain, so any state it
// keeps must be immutable after configuration or guarded.
type Aspect interface {
	Before(call *Call, ret any, mainDisabled bool) (any, Signal)
	After(call *Call, ret any, mainDisabled bool, mainErr error) any
}

// Configurable aspects compile their configuration against the chain target
// when they are added. A returned error rejects the aspect.
type Configurable interface {
	Configure(t Target) error
}

// Factory builds one aspect instance for a chain.
type Factory func() (Aspect, error)

// Call is the per-invocation context handed to aspects. It is created at
// call entry and dropped at exit; never share it between calls.
type Call struct {
	ctx    context.Context
	Method Method
	Target any
	Args   []any
}

// Context returns the context the call runs under.
func (c *Call) Context() context.Context { return c.ctx }

// WithContext replaces the context for later phases and for the main method.
func (c *Call) WithContext(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
}

// Arg returns the named argument, if the method declares it.
func (c *Call) Arg(name string) (any, bool) {
	i := c.Method.Param(name)
	if i < 0 || i >= len(c.Args) {
		return nil, false
	}
	return c.Args[i], true
}
