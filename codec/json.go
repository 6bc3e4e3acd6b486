package codec

import (
	"encoding/json"
	"reflect"
)

type JSON struct{}

var _ Codec = JSON{}

func (JSON) Name() string                 { return "json" }
func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }
func (JSON) Decode(b []byte, t reflect.Type) (any, error) {
	return decodeInto(t, func(p any) error { return json.Unmarshal(b, p) })
}
func (JSON) Check(t reflect.Type) error { return CheckReflect(t) }
