package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

var protoMessage = reflect.TypeFor[proto.Message]()

// Protobuf serializes results whose type is a generated message pointer
// (e.g. *userpb.User). Any other type is rejected by Check.
type Protobuf struct{}

var _ Codec = Protobuf{}

func (Protobuf) Name() string { return "protobuf" }

func (Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf codec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (p Protobuf) Decode(b []byte, t reflect.Type) (any, error) {
	if err := p.Check(t); err != nil {
		return nil, err
	}
	m := reflect.New(t.Elem()).Interface().(proto.Message)
	if err := proto.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (Protobuf) Check(t reflect.Type) error {
	if t == nil || t.Kind() != reflect.Pointer || !t.Implements(protoMessage) {
		return fmt.Errorf("protobuf codec: %v is not a generated message pointer", t)
	}
	return nil
}
