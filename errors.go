package weave

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrDuplicateAspect is returned when a chain already holds an aspect of the same concrete type.
	ErrDuplicateAspect = errors.New("weave: duplicate aspect")
	// ErrArgCount is returned by Invoke when the argument list does not match the method.
	ErrArgCount = errors.New("weave: argument count mismatch")
	// ErrNilAspect is returned when a factory yields no aspect.
	ErrNilAspect = errors.New("weave: nil aspect")
)

// ConfigError reports a setup mistake. It is returned while chains and
// aspects are configured, never while calls are served.
type ConfigError struct {
	Target string // contract/implementation, may be empty
	Method string // may be empty
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	var prefix string
	switch {
	case e.Target != "" && e.Method != "":
		prefix = fmt.Sprintf("weave: %s.%s: ", e.Target, e.Method)
	case e.Target != "":
		prefix = fmt.Sprintf("weave: %s: ", e.Target)
	case e.Method != "":
		prefix = fmt.Sprintf("weave: %s: ", e.Method)
	default:
		prefix = "weave: "
	}
	if e.Err != nil && e.Msg != "" {
		return prefix + e.Msg + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return prefix + e.Err.Error()
	}
	return prefix + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err (or anything it wraps) is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// PanicError is what after-phases see when the main method panicked.
// The dispatcher re-raises Value once every after-phase ran.
type PanicError struct {
	Method string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("weave: %s panicked: %v", e.Method, e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ResultTypeError is returned by Invoke when the final return value, possibly
// rewritten by aspects, is not assignable to the proxy's result type.
type ResultTypeError struct {
	Method string
	Got    reflect.Type
	Want   reflect.Type
}

func (e *ResultTypeError) Error() string {
	return fmt.Sprintf("weave: %s returned %s, want %s", e.Method, typeName(e.Got), typeName(e.Want))
}
