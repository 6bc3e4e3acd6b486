package codec

import "reflect"

var (
	bytesType  = reflect.TypeFor[[]byte]()
	stringType = reflect.TypeFor[string]()
)

// Raw stores []byte and string results as-is and hands every other type to
// Inner. Useful when most cached methods already return encoded payloads.
type Raw struct {
	Inner Codec // nil => Msgpack
}

var _ Codec = Raw{}

func (c Raw) inner() Codec {
	if c.Inner == nil {
		return Msgpack{}
	}
	return c.Inner
}

func (c Raw) Name() string { return "raw+" + c.inner().Name() }

func (c Raw) Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return c.inner().Encode(v)
}

func (c Raw) Decode(b []byte, t reflect.Type) (any, error) {
	switch t {
	case bytesType:
		return b, nil
	case stringType:
		return string(b), nil
	}
	return c.inner().Decode(b, t)
}

func (c Raw) Check(t reflect.Type) error {
	if t == bytesType || t == stringType {
		return nil
	}
	return Check(c.inner(), t)
}
