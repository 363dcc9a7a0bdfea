package paramtree

// Marker tags an object node as a reference to global objects; the referenced
// ids (or names) live in its ValueField.
const (
	Marker     = "global_param_type"
	ValueField = "value"
)

// Mapper translates one reference. It reports false when the reference is unknown.
type Mapper func(string) (string, bool)

// MapOf adapts a plain lookup table to a Mapper.
func MapOf(m map[string]string) Mapper {
	return func(s string) (string, bool) {
		v, ok := m[s]
		return v, ok
	}
}

// Rewrite returns a copy of n where the value of every reference node has
// been passed through m. A reference value is either a string or an array;
// array elements are mapped one by one. Strings m does not know are kept
// as they are and returned as misses, in traversal order. Reference nodes
// are not descended into, and everything outside reference values is
// carried over unchanged. n itself is never modified.
func Rewrite(n Node, m Mapper) (Node, []string) {
	var misses []string
	out := rewrite(n, m, &misses)
	return out, misses
}

func rewrite(n Node, m Mapper, misses *[]string) Node {
	switch n.kind {
	case KindObject:
		if n.Has(Marker) {
			value, ok := n.Get(ValueField)
			if !ok {
				return n
			}
			return n.with(ValueField, mapValue(value, m, misses))
		}
		fields := make([]Field, len(n.fields))
		for i, f := range n.fields {
			fields[i] = Field{Key: f.Key, Value: rewrite(f.Value, m, misses)}
		}
		return Node{kind: KindObject, fields: fields}

	case KindArray:
		items := make([]Node, len(n.items))
		for i, item := range n.items {
			items[i] = rewrite(item, m, misses)
		}
		return Node{kind: KindArray, items: items}

	default:
		return n
	}
}

func mapValue(v Node, m Mapper, misses *[]string) Node {
	if v.kind == KindArray {
		items := make([]Node, len(v.items))
		for i, item := range v.items {
			items[i] = mapScalar(item, m, misses)
		}
		return Node{kind: KindArray, items: items}
	}
	return mapScalar(v, m, misses)
}

func mapScalar(v Node, m Mapper, misses *[]string) Node {
	s, ok := v.Str()
	if !ok || s == "" {
		return v
	}
	mapped, ok := m(s)
	if !ok {
		*misses = append(*misses, s)
		return v
	}
	return String(mapped)
}

// References lists the string values held by reference nodes in n.
func References(n Node) []string {
	var refs []string
	collect := func(s string) (string, bool) {
		refs = append(refs, s)
		return s, true
	}
	Rewrite(n, collect)
	return refs
}
