package serializer

import (
	"fmt"
	"reflect"
	"sync"

	berr "github.com/next-trace/scg-future-publish/contract/errors"
)

// TypeNameSerializer maps a Go type to a stable name and back.
type TypeNameSerializer interface {
	Serialize(t reflect.Type) string
	Deserialize(name string) (reflect.Type, error)
}

// TypeNames is the default TypeNameSerializer. Named types serialize as "Name:package/path";
// pointers are dereferenced first so T and *T share a name. Every serialized type is remembered
// so Deserialize can resolve names produced by this process; types from other processes must be
// registered up front.
//
// TypeNames is safe for concurrent use.
type TypeNames struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

var _ TypeNameSerializer = (*TypeNames)(nil)

// NewTypeNames returns a registry pre-populated with the types of samples.
func NewTypeNames(samples ...any) *TypeNames {
	n := &TypeNames{types: make(map[string]reflect.Type)}
	n.Register(samples...)

	return n
}

// Register records the types of samples so their names can be deserialized.
func (n *TypeNames) Register(samples ...any) {
	for _, s := range samples {
		if s == nil {
			continue
		}

		n.Serialize(reflect.TypeOf(s))
	}
}

func (n *TypeNames) Serialize(t reflect.Type) string {
	t = Indirect(t)
	name := nameOf(t)

	n.mu.RLock()
	_, known := n.types[name]
	n.mu.RUnlock()

	if !known {
		n.mu.Lock()
		n.types[name] = t
		n.mu.Unlock()
	}

	return name
}

func (n *TypeNames) Deserialize(name string) (reflect.Type, error) {
	n.mu.RLock()
	t, ok := n.types[name]
	n.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("deserialize type name %q: %w", name, berr.ErrUnknownTypeName)
	}

	return t, nil
}

// Indirect strips pointer indirections from t.
func Indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t
}

func nameOf(t reflect.Type) string {
	if t == nil {
		return "nil"
	}

	if t.Name() == "" || t.PkgPath() == "" { // builtin or unnamed (e.g., map/struct literal)
		return t.String()
	}

	return t.Name() + ":" + t.PkgPath()
}
