package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/paramtree"
)

func TestIndex_Bidirectional(t *testing.T) {
	idx := NewIndex("global list", []model.NamedItem{
		{ID: "id-1", Name: "L1"},
		{ID: "id-2", Name: "L2"},
	})

	name, ok := idx.Name("id-2")
	assert.True(t, ok)
	assert.Equal(t, "L2", name)

	id, ok := idx.ID("L1")
	assert.True(t, ok)
	assert.Equal(t, "id-1", id)

	_, ok = idx.ID("L3")
	assert.False(t, ok)
	_, ok = idx.Name("id-3")
	assert.False(t, ok)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, "global list", idx.Kind())
	assert.Empty(t, idx.Collisions())
}

// Names are the cross-tenant join key. When two objects share one, the
// reverse lookup picks the first in collection order; which object that is
// depends on the API's ordering, so the test only pins determinism.
func TestIndex_NameCollisionIsDeterministic(t *testing.T) {
	items := []model.NamedItem{
		{ID: "a", Name: "dup"},
		{ID: "b", Name: "unique"},
		{ID: "c", Name: "dup"},
	}

	for i := 0; i < 10; i++ {
		idx := NewIndex("action", items)
		id, ok := idx.ID("dup")
		assert.True(t, ok)
		assert.Equal(t, "a", id)
	}

	idx := NewIndex("action", items)
	assert.True(t, idx.Ambiguous("dup"))
	assert.False(t, idx.Ambiguous("unique"))
	assert.False(t, idx.Ambiguous("missing"))
	assert.Equal(t, []string{"a", "c"}, idx.IDs("dup"))
	assert.Equal(t, []Collision{{Name: "dup", IDs: []string{"a", "c"}}}, idx.Collisions())
}

func TestIndex_DuplicateIDKeepsFirst(t *testing.T) {
	idx := NewIndex("rule", []model.NamedItem{
		{ID: "x", Name: "first"},
		{ID: "x", Name: "second"},
	})
	name, _ := idx.Name("x")
	assert.Equal(t, "first", name)
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.IDs("second"))
}

func TestIndex_First(t *testing.T) {
	_, ok := NewIndex("vendor template", nil).First()
	assert.False(t, ok)

	first, ok := NewIndex("vendor template", []model.NamedItem{{ID: "v1", Name: "Base"}, {ID: "v2", Name: "Other"}}).First()
	assert.True(t, ok)
	assert.Equal(t, "v1", first.ID)
}

func TestIndex_MappersDriveRewrite(t *testing.T) {
	src := NewIndex("global list", []model.NamedItem{{ID: "src-1", Name: "L1"}})
	dst := NewIndex("global list", []model.NamedItem{{ID: "dst-9", Name: "L1"}})

	tree := paramtree.Object(paramtree.Field{Key: "ips", Value: paramtree.Object(
		paramtree.Field{Key: paramtree.Marker, Value: paramtree.String("LIST")},
		paramtree.Field{Key: paramtree.ValueField, Value: paramtree.Array(paramtree.String("src-1"))},
	)})

	named, misses := paramtree.Rewrite(tree, src.NameMapper())
	assert.Empty(t, misses)
	assert.Equal(t, []string{"L1"}, paramtree.References(named))

	restored, misses := paramtree.Rewrite(named, dst.IDMapper())
	assert.Empty(t, misses)
	assert.Equal(t, []string{"dst-9"}, paramtree.References(restored))
}
