// Package codec serializes method results for byte-oriented cache providers.
//
// Codecs are type-erased: values go in as any and come back decoded into the
// reflect.Type the intercepted method declares.
package codec

import "reflect"

// Codec encodes values to []byte and decodes them back into a given type.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(b []byte, t reflect.Type) (any, error)
}

// Checker is implemented by codecs that can reject a type up front.
type Checker interface {
	Check(t reflect.Type) error
}

// decodeInto allocates a T, lets unmarshal fill it and returns the value.
func decodeInto(t reflect.Type, unmarshal func(ptr any) error) (any, error) {
	ptr := reflect.New(t)
	if err := unmarshal(ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
