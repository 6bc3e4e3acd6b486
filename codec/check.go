package codec

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	binaryMarshaler = reflect.TypeFor[encoding.BinaryMarshaler]()
	textMarshaler   = reflect.TypeFor[encoding.TextMarshaler]()
	jsonMarshaler   = reflect.TypeFor[json.Marshaler]()
)

// Check reports whether values of type t survive a trip through c: the codec's
// own Checker first, then an encode/decode of a sample value.
func Check(c Codec, t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("codec %s: no type", c.Name())
	}
	if ch, ok := c.(Checker); ok {
		if err := ch.Check(t); err != nil {
			return err
		}
	}
	b, err := c.Encode(sample(t))
	if err != nil {
		return fmt.Errorf("codec %s: encode %s: %w", c.Name(), t, err)
	}
	if _, err := c.Decode(b, t); err != nil {
		return fmt.Errorf("codec %s: decode %s: %w", c.Name(), t, err)
	}
	return nil
}

// sample returns a zero value of t, allocating one level of pointer so the
// pointee's fields take part in the round trip.
func sample(t reflect.Type) any {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.Zero(t).Interface()
}

// CheckReflect walks t and rejects what reflection-based codecs cannot
// restore: funcs, channels, unsafe pointers, interface-typed values and
// structs whose state lives in unexported fields (unless they marshal themselves).
func CheckReflect(t reflect.Type) error {
	return walk(t, map[reflect.Type]bool{})
}

func walk(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true

	if marshalsItself(t) {
		return nil
	}
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Uintptr:
		return fmt.Errorf("%s is not serializable", t)
	case reflect.Interface:
		return fmt.Errorf("%s is an interface; concrete type cannot be restored", t)
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return walk(t.Elem(), seen)
	case reflect.Map:
		if err := walk(t.Key(), seen); err != nil {
			return err
		}
		return walk(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				if f.Name == "_" {
					continue
				}
				return fmt.Errorf("%s has unexported field %s", t, f.Name)
			}
			if err := walk(f.Type, seen); err != nil {
				return fmt.Errorf("%s.%s: %w", t, f.Name, err)
			}
		}
	}
	return nil
}

func marshalsItself(t reflect.Type) bool {
	for _, m := range []reflect.Type{binaryMarshaler, textMarshaler, jsonMarshaler} {
		if t.Implements(m) || reflect.PointerTo(t).Implements(m) {
			return true
		}
	}
	return false
}
