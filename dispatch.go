package weave

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
)

// MainFunc invokes the real implementation.
type MainFunc func(ctx context.Context) (any, error)

// Dispatcher routes calls on one target instance through a chain.
// A proxy usually holds one Dispatcher for its whole life.
type Dispatcher struct {
	chain  *Chain
	target any
}

func NewDispatcher(chain *Chain, target any) *Dispatcher {
	return &Dispatcher{chain: chain, target: target}
}

func (d *Dispatcher) Chain() *Chain { return d.chain }

// Invoke runs one intercepted call:
//
//  1. before-phases in registration order; DisableMain is sticky,
//     DisableAfter only affects the aspect that set it
//  2. main, unless disabled; its error or panic is captured
//  3. after-phases in reverse order, minus the aspects that opted out
//  4. the captured error is returned unchanged, or the panic re-raised
func (d *Dispatcher) Invoke(ctx context.Context, m Method, args []any, main MainFunc) (any, error) {
	if len(args) != len(m.Params) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArgCount, m.Name, len(m.Params), len(args))
	}

	aspects := d.chain.Aspects()
	call := &Call{ctx: ctx, Method: m, Target: d.target, Args: args}

	var (
		ret      any
		disabled bool
		skip     = make([]bool, len(aspects))
	)
	for i, a := range aspects {
		var sig Signal
		ret, sig = a.Before(call, ret, disabled)
		disabled = disabled || sig.DisableMain
		skip[i] = sig.DisableAfter
	}

	var (
		mainErr error
		pe      *PanicError
	)
	if !disabled {
		ret, pe, mainErr = runMain(call, main)
	}

	for i := len(aspects) - 1; i >= 0; i-- {
		if skip[i] {
			continue
		}
		ret = aspects[i].After(call, ret, disabled, mainErr)
	}

	if pe != nil {
		panic(pe.Value)
	}
	if mainErr != nil {
		return nil, mainErr
	}
	return ret, nil
}

func runMain(call *Call, main MainFunc) (ret any, pe *PanicError, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe = &PanicError{Method: call.Method.Name, Value: r, Stack: debug.Stack()}
			ret, err = nil, pe
		}
	}()
	ret, err = main(call.Context())
	return ret, nil, err
}

// Invoke is the typed entry point for proxies of methods returning (R, error).
//
//	func (p *proxy) GetUser(ctx context.Context, id int) (*User, error) {
//		return weave.Invoke(ctx, p.d, getUser, func(ctx context.Context) (*User, error) {
//			return p.impl.GetUser(ctx, id)
//		}, id)
//	}
func Invoke[R any](ctx context.Context, d *Dispatcher, m Method, main func(context.Context) (R, error), args ...any) (R, error) {
	var zero R
	ret, err := d.Invoke(ctx, m, args, func(ctx context.Context) (any, error) {
		return main(ctx)
	})
	if err != nil {
		return zero, err
	}
	if ret == nil {
		return zero, nil
	}
	r, ok := ret.(R)
	if !ok {
		return zero, &ResultTypeError{Method: m.Name, Got: reflect.TypeOf(ret), Want: reflect.TypeFor[R]()}
	}
	return r, nil
}

// InvokeVoid is Invoke for methods returning only an error.
func InvokeVoid(ctx context.Context, d *Dispatcher, m Method, main func(context.Context) error, args ...any) error {
	_, err := d.Invoke(ctx, m, args, func(ctx context.Context) (any, error) {
		return nil, main(ctx)
	})
	return err
}
