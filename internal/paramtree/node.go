// Package paramtree models rule variables as an ordered JSON tree and
// rewrites the global object references inside it.
//
// Objects keep their key order and scalars keep their literal encoding, so a
// tree that is decoded and encoded again without a rewrite reproduces the
// input modulo whitespace.
package paramtree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field is one key of an object node.
type Field struct {
	Key   string
	Value Node
}

// Node is an immutable JSON value. The zero Node is JSON null.
type Node struct {
	kind   Kind
	fields []Field
	items  []Node
	raw    json.RawMessage
}

// Object builds an object node with fields in the given order.
func Object(fields ...Field) Node {
	return Node{kind: KindObject, fields: append([]Field(nil), fields...)}
}

// Array builds an array node.
func Array(items ...Node) Node {
	return Node{kind: KindArray, items: append([]Node(nil), items...)}
}

// String builds a string scalar.
func String(s string) Node {
	return Node{kind: KindScalar, raw: encodeString(s)}
}

// Scalar builds a scalar from its JSON literal, e.g. `42`, `true` or `"x"`.
func Scalar(literal string) (Node, error) {
	var n Node
	if err := n.UnmarshalJSON([]byte(literal)); err != nil {
		return Node{}, err
	}
	if n.kind == KindObject || n.kind == KindArray {
		return Node{}, fmt.Errorf("%s is not a scalar", literal)
	}
	return n, nil
}

func (n Node) Kind() Kind { return n.kind }

// Fields returns a copy of an object's fields, nil for other kinds.
func (n Node) Fields() []Field {
	if n.kind != KindObject {
		return nil
	}
	return append([]Field(nil), n.fields...)
}

// Items returns a copy of an array's elements, nil for other kinds.
func (n Node) Items() []Node {
	if n.kind != KindArray {
		return nil
	}
	return append([]Node(nil), n.items...)
}

// Get looks up a field of an object node.
func (n Node) Get(key string) (Node, bool) {
	for _, f := range n.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Node{}, false
}

// Has reports whether an object node carries the key, whatever its value.
func (n Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Str returns the value of a string scalar.
func (n Node) Str() (string, bool) {
	if n.kind != KindScalar || len(n.raw) == 0 || n.raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(n.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Literal returns the JSON encoding of a scalar or null node.
func (n Node) Literal() string {
	if n.kind == KindNull {
		return "null"
	}
	return string(n.raw)
}

// with returns a copy of an object node with key set to v, appended when absent.
func (n Node) with(key string, v Node) Node {
	fields := make([]Field, len(n.fields))
	copy(fields, n.fields)
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = v
			return Node{kind: KindObject, fields: fields}
		}
	}
	return Node{kind: KindObject, fields: append(fields, Field{Key: key, Value: v})}
}

func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	n.encode(&buf)
	return buf.Bytes(), nil
}

func (n Node) encode(buf *bytes.Buffer) {
	switch n.kind {
	case KindObject:
		buf.WriteByte('{')
		for i, f := range n.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(encodeString(f.Key))
			buf.WriteByte(':')
			f.Value.encode(buf)
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.encode(buf)
		}
		buf.WriteByte(']')
	case KindScalar:
		buf.Write(n.raw)
	default:
		buf.WriteString("null")
	}
}

func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := parse(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

func parse(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Node{}, fmt.Errorf("paramtree: empty value")
	}

	switch data[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return Node{}, fmt.Errorf("paramtree: %w", err)
		}
		obj := Node{kind: KindObject, fields: []Field{}}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return Node{}, fmt.Errorf("paramtree: %w", err)
			}
			key, ok := tok.(string)
			if !ok {
				return Node{}, fmt.Errorf("paramtree: unexpected object key %v", tok)
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return Node{}, fmt.Errorf("paramtree: field %q: %w", key, err)
			}
			child, err := parse(raw)
			if err != nil {
				return Node{}, err
			}
			obj.fields = append(obj.fields, Field{Key: key, Value: child})
		}
		if _, err := dec.Token(); err != nil {
			return Node{}, fmt.Errorf("paramtree: %w", err)
		}
		return obj, nil

	case '[':
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return Node{}, fmt.Errorf("paramtree: %w", err)
		}
		arr := Node{kind: KindArray, items: []Node{}}
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return Node{}, fmt.Errorf("paramtree: item %d: %w", len(arr.items), err)
			}
			child, err := parse(raw)
			if err != nil {
				return Node{}, err
			}
			arr.items = append(arr.items, child)
		}
		if _, err := dec.Token(); err != nil {
			return Node{}, fmt.Errorf("paramtree: %w", err)
		}
		return arr, nil

	default:
		if !json.Valid(data) {
			return Node{}, fmt.Errorf("paramtree: invalid literal %q", data)
		}
		if string(data) == "null" {
			return Node{}, nil
		}
		return Node{kind: KindScalar, raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// encodeString quotes s as a JSON string without HTML escaping.
func encodeString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}
