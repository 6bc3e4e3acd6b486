package keytpl

import (
	"fmt"
	"reflect"
)

type opKind uint8

const (
	opDeref   opKind = iota // pointer -> element
	opField                 // struct field by index
	opMethod                // getter method by index on the current type
	opMapKey                // string-keyed map entry
	opDynamic               // resolved by name on the runtime value
)

type op struct {
	kind   opKind
	name   string
	index  []int
	method int
	key    reflect.Value
}

// compileSegment resolves one dotted segment against static type t and
// returns the ops reaching it plus the type it yields. A nil result type
// means everything after this point is resolved dynamically.
func compileSegment(t reflect.Type, name string) ([]op, reflect.Type, error) {
	var ops []op
	for {
		if t == nil || t.Kind() == reflect.Interface {
			return append(ops, op{kind: opDynamic, name: name}), nil, nil
		}
		if m, ok := t.MethodByName(name); ok && isGetter(m.Type, 1) {
			return append(ops, op{kind: opMethod, name: name, method: m.Index}), m.Type.Out(0), nil
		}
		switch t.Kind() {
		case reflect.Pointer:
			ops = append(ops, op{kind: opDeref})
			t = t.Elem()
			continue
		case reflect.Struct:
			if f, ok := t.FieldByName(name); ok && f.IsExported() {
				return append(ops, op{kind: opField, name: name, index: f.Index}), f.Type, nil
			}
		case reflect.Map:
			if t.Key().Kind() == reflect.String {
				k := reflect.ValueOf(name).Convert(t.Key())
				return append(ops, op{kind: opMapKey, name: name, key: k}), t.Elem(), nil
			}
		}
		return nil, nil, fmt.Errorf("%w %q on %s", ErrUnknownProperty, name, t)
	}
}

// isGetter reports a method with no arguments and exactly one result. in is
// the number of inputs expected (1 when t includes the receiver).
func isGetter(t reflect.Type, in int) bool {
	return t.NumIn() == in && t.NumOut() == 1
}

func (o op) apply(v reflect.Value) (reflect.Value, bool) {
	switch o.kind {
	case opDeref:
		if v.IsNil() {
			return reflect.Value{}, false
		}
		return v.Elem(), true
	case opField:
		f, err := v.FieldByIndexErr(o.index)
		if err != nil {
			return reflect.Value{}, false
		}
		return f, true
	case opMethod:
		if nilable(v.Kind()) && v.IsNil() {
			return reflect.Value{}, false
		}
		return v.Method(o.method).Call(nil)[0], true
	case opMapKey:
		if v.IsNil() {
			return reflect.Value{}, false
		}
		e := v.MapIndex(o.key)
		return e, e.IsValid()
	default:
		return lookup(v, o.name)
	}
}

// lookup resolves name on the runtime value v.
func lookup(v reflect.Value, name string) (reflect.Value, bool) {
	for v.IsValid() {
		if v.Kind() != reflect.Interface && v.CanInterface() {
			if m := v.MethodByName(name); m.IsValid() && isGetter(m.Type(), 0) {
				if v.Kind() == reflect.Pointer && v.IsNil() {
					return reflect.Value{}, false
				}
				return m.Call(nil)[0], true
			}
		}
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface:
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		case reflect.Struct:
			f, ok := v.Type().FieldByName(name)
			if !ok || !f.IsExported() {
				return reflect.Value{}, false
			}
			fv, err := v.FieldByIndexErr(f.Index)
			if err != nil {
				return reflect.Value{}, false
			}
			return fv, true
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String || v.IsNil() {
				return reflect.Value{}, false
			}
			e := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
			return e, e.IsValid()
		default:
			return reflect.Value{}, false
		}
	}
	return reflect.Value{}, false
}

func resolveDynamic(v reflect.Value, names []string) (string, bool) {
	for _, n := range names {
		var ok bool
		if v, ok = lookup(v, n); !ok {
			return "", false
		}
	}
	return format(v)
}

// format renders a resolved value the way fmt prints it, after unwrapping
// pointers and interfaces. Nil values of any kind are absent.
func format(v reflect.Value) (string, bool) {
	for {
		if !v.IsValid() {
			return "", false
		}
		if nilable(v.Kind()) && v.IsNil() {
			return "", false
		}
		if !v.CanInterface() {
			return "", false
		}
		if v.Kind() != reflect.Pointer && v.Kind() != reflect.Interface {
			break
		}
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String(), true
		}
		v = v.Elem()
	}
	return fmt.Sprint(v.Interface()), true
}

func nilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
