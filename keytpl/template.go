// Package keytpl compiles cache key templates such as "user-{id}" or
// "user-{_ret.Profile.Id}" against a method signature.
//
// A placeholder's first segment names a parameter, or "_ret" for the return
// value. Further dotted segments select exported struct fields, zero-argument
// getter methods or entries of string-keyed maps. Segments are checked against
// the static types at compile time; interface-typed hops are resolved by name
// per call.
package keytpl

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Result is the placeholder root for the method's return value.
const Result = "_ret"

var (
	ErrUnknownField    = errors.New("keytpl: unknown field")
	ErrUnknownProperty = errors.New("keytpl: unknown property")
	ErrVoidResult      = errors.New("keytpl: method has no return value")
)

// Var is a named, typed template root.
type Var struct {
	Name string
	Type reflect.Type
}

// Template is a compiled key template. It is immutable and safe for concurrent use.
type Template struct {
	raw        string
	lits       []string // len(lits) == len(accs)+1
	accs       []accessor
	usesResult bool
}

type accessor struct {
	field    string
	root     int // parameter index, -1 for the return value
	rootType reflect.Type
	ops      []op
}

// Compile parses tpl and binds every placeholder to params or to the result.
// result is nil for methods without a return value.
func Compile(tpl string, params []Var, result reflect.Type) (*Template, error) {
	lits, fields := split(tpl)
	t := &Template{raw: tpl, lits: lits, accs: make([]accessor, 0, len(fields))}

	for _, field := range fields {
		segs := strings.Split(field, ".")
		for _, s := range segs {
			if s == "" {
				return nil, fmt.Errorf("%w {%s} in %q", ErrUnknownField, field, tpl)
			}
		}

		acc := accessor{field: field, root: -1}
		if segs[0] == Result {
			if result == nil {
				return nil, fmt.Errorf("%w {%s} in %q", ErrVoidResult, field, tpl)
			}
			acc.rootType = result
			t.usesResult = true
		} else {
			acc.root = indexOf(params, segs[0])
			if acc.root < 0 {
				return nil, fmt.Errorf("%w {%s} in %q", ErrUnknownField, field, tpl)
			}
			acc.rootType = params[acc.root].Type
		}

		cur := acc.rootType
		for _, name := range segs[1:] {
			ops, next, err := compileSegment(cur, name)
			if err != nil {
				return nil, fmt.Errorf("%w (template %q)", err, tpl)
			}
			acc.ops = append(acc.ops, ops...)
			cur = next
		}
		t.accs = append(t.accs, acc)
	}
	return t, nil
}

// Resolve renders the key for one call. It reports false when any referenced
// value is absent (nil pointer, nil interface, missing map entry and so on).
// Getter methods run as part of resolution and their panics are not recovered.
func (t *Template) Resolve(args []any, ret any) (string, bool) {
	if len(t.accs) == 0 {
		return t.raw, true
	}
	var b strings.Builder
	b.Grow(len(t.raw) + 8*len(t.accs))
	for i, acc := range t.accs {
		b.WriteString(t.lits[i])
		s, ok := acc.resolve(args, ret)
		if !ok {
			return "", false
		}
		b.WriteString(s)
	}
	b.WriteString(t.lits[len(t.accs)])
	return b.String(), true
}

// Fields returns the distinct placeholders in order of appearance.
func (t *Template) Fields() []string {
	out := make([]string, 0, len(t.accs))
	seen := make(map[string]bool, len(t.accs))
	for _, a := range t.accs {
		if !seen[a.field] {
			seen[a.field] = true
			out = append(out, a.field)
		}
	}
	return out
}

// UsesResult reports whether any placeholder reads the return value.
func (t *Template) UsesResult() bool { return t.usesResult }

func (t *Template) String() string { return t.raw }

func (a accessor) resolve(args []any, ret any) (string, bool) {
	var root any
	if a.root < 0 {
		root = ret
	} else {
		if a.root >= len(args) {
			return "", false
		}
		root = args[a.root]
	}
	if root == nil {
		return "", false
	}

	v := reflect.ValueOf(root)
	if a.rootType == nil || (v.Type() != a.rootType && a.rootType.Kind() != reflect.Interface) {
		// the proxy passed something other than the declared type
		return resolveDynamic(v, a.names())
	}
	for _, o := range a.ops {
		var ok bool
		if v, ok = o.apply(v); !ok {
			return "", false
		}
	}
	return format(v)
}

func (a accessor) names() []string {
	segs := strings.Split(a.field, ".")
	return segs[1:]
}

// split cuts tpl into literal text and placeholder names. An opening brace
// without a closing one is kept as literal text.
func split(tpl string) (lits, fields []string) {
	rest := tpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open+1:], '}')
		if end < 0 {
			break
		}
		end += open + 1
		lits = append(lits, rest[:open])
		fields = append(fields, rest[open+1:end])
		rest = rest[end+1:]
	}
	return append(lits, rest), fields
}

func indexOf(params []Var, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}
