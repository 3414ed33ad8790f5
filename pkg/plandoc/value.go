// Package plandoc models venture plan documents as an immutable JSON-like
// tree and computes structural differences between two snapshots of one.
//
// A document is a Value: Null, Bool, Number, String, Object or Array.
// Objects remember key insertion order so that diffs come out in document
// order. Values are never mutated after construction, which also means a
// document can never contain itself.
package plandoc

// Kind identifies the concrete type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a node of a plan document. A nil Value stands for "undefined",
// i.e. the absence of a value, and is only meaningful inside a Diff.
type Value interface {
	Kind() Kind
	MarshalJSON() ([]byte, error)
}

type Null struct{}

type Bool bool

type Number float64

type String string

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Object) Kind() Kind { return KindObject }
func (Array) Kind() Kind  { return KindArray }

// Field is a key/value pair used to build an Object.
type Field struct {
	Key   string
	Value Value
}

// Object is an ordered, immutable string-keyed map. The zero Object is empty.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject builds an Object from fields. A repeated key keeps its first
// position and its last value. Fields with a nil Value are dropped.
func NewObject(fields ...Field) Object {
	b := newObjectBuilder(len(fields))
	for _, f := range fields {
		b.set(f.Key, f.Value)
	}
	return b.build()
}

func (o Object) Len() int {
	return len(o.keys)
}

// Keys returns the object's keys in insertion order.
func (o Object) Keys() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

func (o Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// With returns a copy of o with key set to v. New keys are appended; a nil v
// removes the key.
func (o Object) With(key string, v Value) Object {
	if v == nil {
		return o.Without(key)
	}
	b := newObjectBuilder(len(o.keys) + 1)
	for _, k := range o.keys {
		b.set(k, o.fields[k])
	}
	b.set(key, v)
	return b.build()
}

// Without returns a copy of o with key removed.
func (o Object) Without(key string) Object {
	if _, ok := o.fields[key]; !ok {
		return o
	}
	b := newObjectBuilder(len(o.keys))
	for _, k := range o.keys {
		if k != key {
			b.set(k, o.fields[k])
		}
	}
	return b.build()
}

type objectBuilder struct {
	keys   []string
	fields map[string]Value
}

func newObjectBuilder(capacity int) *objectBuilder {
	return &objectBuilder{
		keys:   make([]string, 0, capacity),
		fields: make(map[string]Value, capacity),
	}
}

func (b *objectBuilder) set(key string, v Value) {
	if v == nil {
		return
	}
	if _, exists := b.fields[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.fields[key] = v
}

func (b *objectBuilder) build() Object {
	return Object{keys: b.keys, fields: b.fields}
}

// Array is an immutable ordered list of values.
type Array struct {
	items []Value
}

// NewArray builds an Array. Nil items become Null, as they would in JSON.
func NewArray(items ...Value) Array {
	copied := make([]Value, len(items))
	for i, item := range items {
		if item == nil {
			item = Null{}
		}
		copied[i] = item
	}
	return Array{items: copied}
}

func (a Array) Len() int {
	return len(a.items)
}

func (a Array) At(i int) Value {
	return a.items[i]
}

func (a Array) Items() []Value {
	items := make([]Value, len(a.items))
	copy(items, a.items)
	return items
}

// Equal reports whether a and b are structurally equal. Object key order is
// ignored; array order is not. Numbers compare with ==, so NaN is never
// equal to itself.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Object:
		bv := b.(Object)
		if len(av.keys) != len(bv.keys) {
			return false
		}
		for _, k := range av.keys {
			other, ok := bv.fields[k]
			if !ok || !Equal(av.fields[k], other) {
				return false
			}
		}
		return true
	case Array:
		bv := b.(Array)
		if len(av.items) != len(bv.items) {
			return false
		}
		for i := range av.items {
			if !Equal(av.items[i], bv.items[i]) {
				return false
			}
		}
		return true
	default:
		return leafEqual(a, b)
	}
}

func leafEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	default:
		return false
	}
}
