package resolver

import (
	"sort"

	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/paramtree"
)

// Index is a bidirectional id<->name table for one object class of one
// tenant. Ids are unique; names are not guaranteed to be. When several ids
// share a name, ID returns the first one in collection order and the name is
// reported by Ambiguous and Collisions.
type Index struct {
	kind   string
	items  []model.NamedItem
	byID   map[string]string
	byName map[string][]string
}

// Collision is a name carried by more than one object.
type Collision struct {
	Name string
	IDs  []string
}

func NewIndex(kind string, items []model.NamedItem) *Index {
	x := &Index{
		kind:   kind,
		items:  append([]model.NamedItem(nil), items...),
		byID:   make(map[string]string, len(items)),
		byName: make(map[string][]string, len(items)),
	}
	for _, it := range items {
		if _, seen := x.byID[it.ID]; seen {
			continue
		}
		x.byID[it.ID] = it.Name
		x.byName[it.Name] = append(x.byName[it.Name], it.ID)
	}
	return x
}

func (x *Index) Kind() string { return x.kind }

func (x *Index) Len() int { return len(x.byID) }

// Items returns the indexed objects in collection order.
func (x *Index) Items() []model.NamedItem {
	return append([]model.NamedItem(nil), x.items...)
}

// First returns the first object of the collection.
func (x *Index) First() (model.NamedItem, bool) {
	if len(x.items) == 0 {
		return model.NamedItem{}, false
	}
	return x.items[0], true
}

func (x *Index) Name(id string) (string, bool) {
	name, ok := x.byID[id]
	return name, ok
}

// ID returns the id for name, the first encountered one if the name is ambiguous.
func (x *Index) ID(name string) (string, bool) {
	ids := x.byName[name]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// IDs returns every id carrying name, in collection order.
func (x *Index) IDs(name string) []string {
	return append([]string(nil), x.byName[name]...)
}

func (x *Index) Ambiguous(name string) bool {
	return len(x.byName[name]) > 1
}

// Collisions lists every ambiguous name, sorted by name.
func (x *Index) Collisions() []Collision {
	var out []Collision
	for name, ids := range x.byName {
		if len(ids) > 1 {
			out = append(out, Collision{Name: name, IDs: append([]string(nil), ids...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NameMapper maps ids to names, for backing up references.
func (x *Index) NameMapper() paramtree.Mapper {
	return x.Name
}

// IDMapper maps names to ids, for restoring references.
func (x *Index) IDMapper() paramtree.Mapper {
	return x.ID
}
