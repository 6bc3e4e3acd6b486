package weave

import (
	"reflect"
	"strings"
)

// Param is a named method parameter. Go does not keep parameter names at
// runtime, so contracts declare them once next to the proxy.
type Param struct {
	Name string
	Type reflect.Type
}

// Arg declares a parameter of type T.
func Arg[T any](name string) Param {
	return Param{Name: name, Type: reflect.TypeFor[T]()}
}

// Method describes one method of an intercepted contract. Result is nil for
// methods that only return an error.
//
//	var getUser = weave.Func[*User]("GetUser", weave.Arg[int]("id"))
//	var purge   = weave.Proc("Purge")
type Method struct {
	Name   string
	Params []Param
	Result reflect.Type
}

// Func declares a method returning (R, error).
func Func[R any](name string, params ...Param) Method {
	return Method{Name: name, Params: params, Result: reflect.TypeFor[R]()}
}

// Proc declares a method returning only an error.
func Proc(name string, params ...Param) Method {
	return Method{Name: name, Params: params}
}

// Void reports whether the method has no result value.
func (m Method) Void() bool { return m.Result == nil }

// Param returns the index of the named parameter or -1.
func (m Method) Param(name string) int {
	for i, p := range m.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (m Method) String() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != nil {
			b.WriteByte(' ')
			b.WriteString(p.Type.String())
		}
	}
	b.WriteByte(')')
	if m.Result != nil {
		b.WriteByte(' ')
		b.WriteString(m.Result.String())
	}
	return b.String()
}

// Target is what a chain is bound to: a contract interface, the concrete
// implementation behind it and the contract's method set.
type Target struct {
	Contract       reflect.Type
	Implementation reflect.Type
	Methods        []Method
}

// TargetFor builds a Target for contract I implemented by T.
func TargetFor[I, T any](methods ...Method) Target {
	return Target{
		Contract:       reflect.TypeFor[I](),
		Implementation: reflect.TypeFor[T](),
		Methods:        methods,
	}
}

// Method looks up a contract method by name.
func (t Target) Method(name string) (Method, bool) {
	for _, m := range t.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

func (t Target) String() string {
	return typeName(t.Contract) + "/" + typeName(t.Implementation)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
