package serializer

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-future-publish/contract/errors"
)

// Serializer converts message values to payload bytes and back.
type Serializer interface {
	MessageToBytes(msg any) ([]byte, error)
	BytesToMessage(t reflect.Type, body []byte) (any, error)
}

// ContentTypeJSON is the content type of JSON payloads.
const ContentTypeJSON = "application/json"

// JSON is the default Serializer.
type JSON struct{}

var _ Serializer = JSON{}

func (JSON) MessageToBytes(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serialize %T: %w", msg, errors.Join(berr.ErrSerializationFailed, err))
	}

	return b, nil
}

// BytesToMessage decodes body into a new value of t. Pointer types decode into their element
// type and the returned value is the element, not the pointer.
func (JSON) BytesToMessage(t reflect.Type, body []byte) (any, error) {
	t = Indirect(t)
	if t == nil {
		return nil, fmt.Errorf("deserialize: %w", berr.ErrSerializationFailed)
	}

	v := reflect.New(t)
	if err := json.Unmarshal(body, v.Interface()); err != nil {
		return nil, fmt.Errorf("deserialize %s: %w", t, errors.Join(berr.ErrSerializationFailed, err))
	}

	return v.Elem().Interface(), nil
}

// ContentType reports the payload content type.
func (JSON) ContentType() string { return ContentTypeJSON }
