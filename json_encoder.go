package eventflow

import (
	"encoding/json"
	"errors"
	"reflect"
)

// ErrEventNotRegistered is returned when an event or notification type has
// not been registered with the encoder
var ErrEventNotRegistered = errors.New("event not registered")

// NewJsonEncoder constructs a json encoder with the provided event and
// notification types registered
func NewJsonEncoder(evts ...any) *JsonEncoder {
	enc := JsonEncoder{
		types: make(map[string]reflect.Type),
	}

	for _, evt := range evts {
		t := reflect.TypeOf(evt)
		enc.types[t.Name()] = t
	}

	return &enc
}

// JsonEncoder provides default json Encoder implementation
// It will marshal and unmarshal payloads to/from json and store the type name
type JsonEncoder struct {
	types map[string]reflect.Type
}

// Encode marshals incoming payload to it's json representation
func (e *JsonEncoder) Encode(data any) (*EncodedEvt, error) {
	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &EncodedEvt{
		Type: reflect.TypeOf(data).Name(),
		Data: string(out),
	}, nil
}

// Decode unmarshals incoming payload to it's corresponding go type
func (e *JsonEncoder) Decode(evt *EncodedEvt) (any, error) {
	t, ok := e.types[evt.Type]
	if !ok {
		return nil, ErrEventNotRegistered
	}

	v := reflect.New(t)

	err := json.Unmarshal([]byte(evt.Data), v.Interface())
	if err != nil {
		return nil, err
	}

	return v.Elem().Interface(), nil
}
