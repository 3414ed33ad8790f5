package plandoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MaxDepth bounds object/array nesting accepted by Parse.
const MaxDepth = 256

var ErrInvalidDocument = errors.New("invalid plan document")

// Parse decodes a JSON document, preserving object key order.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec, 0)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidDocument)
	}

	return v, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

func parseValue(dec *json.Decoder, depth int) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	switch t := tok.(type) {
	case json.Delim:
		if depth >= MaxDepth {
			return nil, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidDocument, MaxDepth)
		}
		switch t {
		case '{':
			return parseObject(dec, depth)
		case '[':
			return parseArray(dec, depth)
		}
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidDocument, t)
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %s out of range", ErrInvalidDocument, t)
		}
		return Number(f), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null{}, nil
	}

	return nil, fmt.Errorf("%w: unexpected token %v", ErrInvalidDocument, tok)
}

func parseObject(dec *json.Decoder, depth int) (Value, error) {
	b := newObjectBuilder(8)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key must be a string", ErrInvalidDocument)
		}

		v, err := parseValue(dec, depth+1)
		if err != nil {
			return nil, err
		}
		b.set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	return b.build(), nil
}

func parseArray(dec *json.Decoder, depth int) (Value, error) {
	var items []Value
	for dec.More() {
		v, err := parseValue(dec, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	return Array{items: items}, nil
}

// Encode writes the canonical JSON form of v: object keys in insertion order,
// no insignificant whitespace, non-finite numbers as null. A nil v encodes as
// null.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeTo(&buf, v)
	return buf.Bytes()
}

func encodeTo(buf *bytes.Buffer, v Value) {
	switch t := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(t)))
	case Number:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			return
		}
		b, _ := json.Marshal(f)
		buf.Write(b)
	case String:
		encodeString(buf, string(t))
	case Object:
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			encodeTo(buf, t.fields[k])
		}
		buf.WriteByte('}')
	case Array:
		buf.WriteByte('[')
		for i, item := range t.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeTo(buf, item)
		}
		buf.WriteByte(']')
	}
}

func encodeString(buf *bytes.Buffer, s string) {
	// json.Marshal never fails for strings
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func (n Null) MarshalJSON() ([]byte, error)   { return Encode(n), nil }
func (b Bool) MarshalJSON() ([]byte, error)   { return Encode(b), nil }
func (n Number) MarshalJSON() ([]byte, error) { return Encode(n), nil }
func (s String) MarshalJSON() ([]byte, error) { return Encode(s), nil }
func (o Object) MarshalJSON() ([]byte, error) { return Encode(o), nil }
func (a Array) MarshalJSON() ([]byte, error)  { return Encode(a), nil }

// Document embeds a plan Value in structs that go through encoding/json.
type Document struct {
	Root Value
}

func NewDocument(v Value) Document {
	return Document{Root: v}
}

// Value returns the root value, or Null when the document is empty.
func (d Document) Value() Value {
	if d.Root == nil {
		return Null{}
	}
	return d.Root
}

func (d Document) IsZero() bool {
	return d.Root == nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	return Encode(d.Root), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	d.Root = v
	return nil
}
