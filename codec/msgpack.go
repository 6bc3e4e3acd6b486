package codec

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is a Codec that serializes values using vmihailenco/msgpack/v5.
// The zero value is ready to use and is the default for distributed caching.
//
// Msgpack is compact and fast; be mindful of struct tag differences vs JSON.
// Use `msgpack:"fieldName"` tags if you need explicit control.
type Msgpack struct{}

var _ Codec = Msgpack{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Decode(b []byte, t reflect.Type) (any, error) {
	return decodeInto(t, func(p any) error { return msgpack.Unmarshal(b, p) })
}

func (Msgpack) Check(t reflect.Type) error { return CheckReflect(t) }
