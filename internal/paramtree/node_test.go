package paramtree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Node {
	t.Helper()
	var n Node
	require.NoError(t, json.Unmarshal([]byte(s), &n))
	return n
}

func TestNode_RoundTripPreservesOrderAndLiterals(t *testing.T) {
	in := `{"z":1.50,"a":[true,null,"xé"],"m":{"k":-0,"e":1e3},"empty":{},"none":[]}`

	n := mustParse(t, in)
	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestNode_Kinds(t *testing.T) {
	n := mustParse(t, `{"s":"v","n":3,"o":{},"a":[],"z":null}`)
	assert.Equal(t, KindObject, n.Kind())

	s, _ := n.Get("s")
	assert.Equal(t, KindScalar, s.Kind())
	str, ok := s.Str()
	assert.True(t, ok)
	assert.Equal(t, "v", str)

	num, _ := n.Get("n")
	_, ok = num.Str()
	assert.False(t, ok)
	assert.Equal(t, "3", num.Literal())

	o, _ := n.Get("o")
	assert.Equal(t, KindObject, o.Kind())
	a, _ := n.Get("a")
	assert.Equal(t, KindArray, a.Kind())
	z, ok := n.Get("z")
	assert.True(t, ok)
	assert.Equal(t, KindNull, z.Kind())
	assert.Equal(t, "null", z.Literal())

	_, ok = n.Get("missing")
	assert.False(t, ok)
}

func TestNode_ZeroIsNull(t *testing.T) {
	out, err := json.Marshal(Node{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestNode_InStruct(t *testing.T) {
	type rule struct {
		Name      string `json:"rule_name"`
		Variables Node   `json:"variables"`
	}
	var r rule
	require.NoError(t, json.Unmarshal([]byte(`{"rule_name":"R1","variables":{"b":[1,2],"a":"x"}}`), &r))

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"rule_name":"R1","variables":{"b":[1,2],"a":"x"}}`, string(out))
}

func TestNode_Builders(t *testing.T) {
	n := Object(
		Field{Key: "name", Value: String("a<b>")},
		Field{Key: "list", Value: Array(String("x"), Node{})},
	)
	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a<b>","list":["x",null]}`, string(out))
}

func TestScalar(t *testing.T) {
	n, err := Scalar(`42`)
	require.NoError(t, err)
	assert.Equal(t, "42", n.Literal())

	_, err = Scalar(`{"a":1}`)
	require.Error(t, err)

	_, err = Scalar(`nope`)
	require.Error(t, err)
}

func TestNode_InvalidJSON(t *testing.T) {
	var n Node
	assert.Error(t, json.Unmarshal([]byte(`{"a":}`), &n))
	assert.Error(t, n.UnmarshalJSON([]byte(`  `)))
}

func TestNode_AccessorsReturnCopies(t *testing.T) {
	n := mustParse(t, `{"a":[1,2]}`)
	fields := n.Fields()
	fields[0].Key = "changed"
	_, ok := n.Get("a")
	assert.True(t, ok)

	arr, _ := n.Get("a")
	items := arr.Items()
	items[0] = String("x")
	again, _ := n.Get("a")
	assert.Equal(t, "1", again.Items()[0].Literal())

	assert.Nil(t, arr.Fields())
	assert.Nil(t, n.Items())
}
