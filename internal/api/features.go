package api

import (
	"sort"
	"sync"

	"github.com/Dans-labs/laf-fabric/internal/model"
)

// Feature gives the values of one node or edge feature. Values of the
// annotation package override those of the main source.
type Feature struct {
	key   model.FeatureKey
	kind  model.Kind
	api   *API
	main  map[int32]string
	annox map[int32]string

	indexOnce sync.Once
	index     map[string][]int32
	indexErr  error
}

// Key is the feature key
func (f *Feature) Key() model.FeatureKey { return f.key }

// Kind tells whether the feature is about nodes or edges
func (f *Feature) Kind() model.Kind { return f.kind }

// Lookup returns the value of a node or edge and whether it has one
func (f *Feature) Lookup(n int32) (string, bool) {
	if v, ok := f.annox[n]; ok {
		return v, true
	}
	v, ok := f.main[n]
	return v, ok
}

// V returns the value of a node or edge, empty when it has none
func (f *Feature) V(n int32) string {
	v, _ := f.Lookup(n)
	return v
}

// Len is the number of nodes or edges with a value
func (f *Feature) Len() int {
	n := len(f.main)
	for k := range f.annox {
		if _, ok := f.main[k]; !ok {
			n++
		}
	}
	return n
}

// Each calls fn for every node or edge with a value, in index order
func (f *Feature) Each(fn func(n int32, value string)) {
	keys := make([]int32, 0, f.Len())
	for k := range f.main {
		keys = append(keys, k)
	}
	for k := range f.annox {
		if _, ok := f.main[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		fn(k, f.V(k))
	}
}

// S returns the nodes with the given value, in node order. For edge
// features the edges are returned in index order.
func (f *Feature) S(value string) ([]int32, error) {
	f.indexOnce.Do(f.buildIndex)
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return append([]int32(nil), f.index[value]...), nil
}

func (f *Feature) buildIndex() {
	f.index = make(map[string][]int32)
	if f.kind == model.KindEdge {
		f.Each(func(n int32, v string) { f.index[v] = append(f.index[v], n) })
		return
	}
	order, err := f.api.NodeOrder()
	if err != nil {
		f.indexErr = err
		return
	}
	for _, n := range order {
		if v, ok := f.Lookup(n); ok {
			f.index[v] = append(f.index[v], n)
		}
	}
}

// Connectivity gives the neighbours of nodes along edges carrying a feature
type Connectivity struct {
	key   model.FeatureKey
	main  map[int32][]model.Neighbour
	annox map[int32][]model.Neighbour
}

// Key is the edge feature key
func (c *Connectivity) Key() model.FeatureKey { return c.key }

// V returns the neighbours of a node with the edge feature values. An
// annotation package entry for the same neighbour replaces the main one.
func (c *Connectivity) V(n int32) []model.Neighbour {
	main, extra := c.main[n], c.annox[n]
	if len(extra) == 0 {
		return append([]model.Neighbour(nil), main...)
	}
	override := make(map[int32]string, len(extra))
	for _, nb := range extra {
		override[nb.Node] = nb.Value
	}
	out := make([]model.Neighbour, 0, len(main)+len(extra))
	for _, nb := range main {
		if v, ok := override[nb.Node]; ok {
			nb.Value = v
			delete(override, nb.Node)
		}
		out = append(out, nb)
	}
	for _, nb := range extra {
		if _, ok := override[nb.Node]; ok {
			out = append(out, nb)
			delete(override, nb.Node)
		}
	}
	return out
}

// E returns the neighbours of a node without values
func (c *Connectivity) E(n int32) []int32 {
	nbs := c.V(n)
	out := make([]int32, len(nbs))
	for i, nb := range nbs {
		out[i] = nb.Node
	}
	return out
}

// XMLIDs maps between xml identifiers and node or edge indices
type XMLIDs struct {
	fwd map[string]int32
	bwd map[int32]string
}

// R returns the xml identifier of an index
func (x *XMLIDs) R(n int32) (string, bool) {
	if x.bwd == nil {
		for id, i := range x.fwd {
			if i == n {
				return id, true
			}
		}
		return "", false
	}
	id, ok := x.bwd[n]
	return id, ok
}

// I returns the index of an xml identifier
func (x *XMLIDs) I(id string) (int32, bool) {
	if x.fwd == nil {
		for i, xid := range x.bwd {
			if xid == id {
				return i, true
			}
		}
		return 0, false
	}
	n, ok := x.fwd[id]
	return n, ok
}

// Primary gives the primary data slices that nodes are anchored to
type Primary struct {
	text    []rune
	anchors []int32
	offsets []int32
}

// Slice is one anchored stretch of primary data
type Slice struct {
	Anchor model.Anchor
	Text   string
}

// Data returns the stretches of primary data of a node, empty when the
// node has no anchors
func (p *Primary) Data(n int32) []Slice {
	if n < 0 || int(n)+1 >= len(p.offsets) {
		return nil
	}
	var out []Slice
	for i := p.offsets[n]; i+1 < p.offsets[n+1]; i += 2 {
		start, end := p.anchors[i], p.anchors[i+1]
		if start < 0 || int(end) > len(p.text) || start > end {
			continue
		}
		out = append(out, Slice{
			Anchor: model.Anchor{Start: start, End: end},
			Text:   string(p.text[start:end]),
		})
	}
	return out
}

// Text returns the primary data of a node, with its stretches concatenated
func (p *Primary) Text(n int32) string {
	var text []rune
	for _, s := range p.Data(n) {
		text = append(text, []rune(s.Text)...)
	}
	return string(text)
}
