// Package api gives tasks access to the loaded data items.
package api

import (
	"sort"
	"strings"
	"sync"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/names"
)

// Well known data keys
const (
	KeyNodeSort    = "mG00(node_sort)"
	KeyNodeSortInv = "mG00(node_sort_inv)"
	KeyPrepSort    = "zG00(node_sort)"
	KeyPrepSortInv = "zG00(node_sort_inv)"
	KeyAnchorMin   = "mG00(node_anchor_min)"
	KeyAnchorMax   = "mG00(node_anchor_max)"
	KeyAnchor      = "mP00(node_anchor)"
	KeyAnchorItems = "mP00(node_anchor_items)"
	KeyEvents      = "mP00(node_events)"
	KeyEventsItems = "mP00(node_events_items)"
	KeyEventsK     = "mP00(node_events_k)"
	KeyEventsN     = "mP00(node_events_n)"
	KeyEdgesFrom   = "mG00(edges_from)"
	KeyEdgesTo     = "mG00(edges_to)"
	KeyPrimary     = "mP00(primary_data)"
	KeyXMLNodesFwd = "mXnf()"
	KeyXMLNodesBwd = "mXnb()"
	KeyXMLEdgesFwd = "mXef()"
	KeyXMLEdgesBwd = "mXeb()"
)

// API is the view of a task on the loaded data. It is read only and safe
// for concurrent use.
type API struct {
	source string
	annox  string
	items  map[string]interface{}
	otype  model.FeatureKey

	features map[model.Kind]map[model.FeatureKey]*Feature
	conn     map[model.FeatureKey]*Connectivity
	connInv  map[model.FeatureKey]*Connectivity

	layerOnce sync.Once
	layer     *Layer
	layerErr  error
}

// New creates an API over loaded items keyed by data key. otype names the
// feature that holds object types, used by the layer API.
func New(source, annox string, items map[string]interface{}, otype model.FeatureKey) *API {
	a := &API{
		source:   source,
		annox:    annox,
		items:    items,
		otype:    otype,
		features: map[model.Kind]map[model.FeatureKey]*Feature{model.KindNode: {}, model.KindEdge: {}},
		conn:     make(map[model.FeatureKey]*Connectivity),
		connInv:  make(map[model.FeatureKey]*Connectivity),
	}

	for dkey, v := range items {
		p, err := names.DecompFull(dkey)
		if err != nil || (p.Group != names.GroupFeatures && p.Group != names.GroupConnectivity) {
			continue
		}
		key, err := model.FeatureKeyFromComps(p.Comps)
		if err != nil {
			continue
		}
		annox := p.Origin == names.OriginAnnox

		switch p.Group {
		case names.GroupFeatures:
			kind := model.KindNode
			if p.Kind == 'e' {
				kind = model.KindEdge
			}
			f := a.features[kind][key]
			if f == nil {
				f = &Feature{key: key, kind: kind, api: a}
				a.features[kind][key] = f
			}
			values, _ := v.(map[int32]string)
			if annox {
				f.annox = values
			} else {
				f.main = values
			}
		case names.GroupConnectivity:
			target := a.conn
			if p.Direction == 'b' {
				target = a.connInv
			}
			c := target[key]
			if c == nil {
				c = &Connectivity{key: key}
				target[key] = c
			}
			lists, _ := v.(map[int32][]model.Neighbour)
			if annox {
				c.annox = lists
			} else {
				c.main = lists
			}
		}
	}
	return a
}

// Source is the name of the loaded source
func (a *API) Source() string { return a.source }

// Annox is the name of the loaded annotation package, empty when none
func (a *API) Annox() string { return a.annox }

// Has reports whether a data item is loaded
func (a *API) Has(dkey string) bool {
	_, ok := a.items[dkey]
	return ok
}

// Keys lists the loaded data keys, sorted
func (a *API) Keys() []string {
	keys := make([]string, 0, len(a.items))
	for k := range a.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func item[T any](a *API, dkey, what string) (T, error) {
	var zero T
	v, ok := a.items[dkey]
	if !ok {
		return zero, fabricerrors.NotLoaded(dkey, what)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fabricerrors.CorruptedData("data item "+dkey+" has an unexpected type", nil)
	}
	return t, nil
}

// Array returns a loaded array item
func (a *API) Array(dkey string) ([]int32, error) {
	return item[[]int32](a, dkey, "array")
}

// lookupKey accepts both namespace_label_name and namespace:label.name
func (a *API) lookupKey(kind model.Kind, name string) (model.FeatureKey, bool) {
	if ns, bare, ok := strings.Cut(name, ":"); ok && !strings.Contains(bare, ".") {
		return a.lookupBare(kind, ns, bare)
	}
	if strings.Contains(name, ":") {
		key, err := model.ParseFeatureKey(name)
		if err != nil {
			return model.FeatureKey{}, false
		}
		_, ok := a.features[kind][key]
		if !ok && kind == model.KindEdge {
			_, ok = a.conn[key]
		}
		return key, ok
	}
	for key := range a.features[kind] {
		if key.APIName() == name {
			return key, true
		}
	}
	if kind == model.KindEdge {
		for key := range a.conn {
			if key.APIName() == name {
				return key, true
			}
		}
	}
	return model.FeatureKey{}, false
}

// lookupBare finds a feature by namespace and name under any label. When
// several labels carry the name the first in key order is taken.
func (a *API) lookupBare(kind model.Kind, ns, name string) (model.FeatureKey, bool) {
	var found []model.FeatureKey
	for key := range a.features[kind] {
		if key.Namespace == ns && key.Name == name {
			found = append(found, key)
		}
	}
	if kind == model.KindEdge {
		for key := range a.conn {
			if key.Namespace == ns && key.Name == name {
				found = append(found, key)
			}
		}
	}
	if len(found) == 0 {
		return model.FeatureKey{}, false
	}
	sort.Slice(found, func(i, j int) bool { return found[i].String() < found[j].String() })
	return found[0], true
}

// F returns a loaded node feature by API name (ns_label_name) or by
// ns:label.name
func (a *API) F(name string) (*Feature, error) {
	return a.feature(model.KindNode, name)
}

// FE returns a loaded edge feature
func (a *API) FE(name string) (*Feature, error) {
	return a.feature(model.KindEdge, name)
}

func (a *API) feature(kind model.Kind, name string) (*Feature, error) {
	key, ok := a.lookupKey(kind, name)
	if !ok {
		return nil, fabricerrors.NotLoaded(string(kind)+" feature "+name, "feature")
	}
	f, ok := a.features[kind][key]
	if !ok {
		return nil, fabricerrors.NotLoaded(string(kind)+" feature "+name, "feature")
	}
	return f, nil
}

// Features lists the loaded features of a kind, sorted
func (a *API) Features(kind model.Kind) []*Feature {
	fs := make([]*Feature, 0, len(a.features[kind]))
	for _, f := range a.features[kind] {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].key.String() < fs[j].key.String() })
	return fs
}

// C returns the forward connectivity of an edge feature
func (a *API) C(name string) (*Connectivity, error) {
	return a.connectivity(a.conn, name, "connectivity")
}

// Ci returns the backward connectivity of an edge feature
func (a *API) Ci(name string) (*Connectivity, error) {
	return a.connectivity(a.connInv, name, "inverse connectivity")
}

func (a *API) connectivity(m map[model.FeatureKey]*Connectivity, name, what string) (*Connectivity, error) {
	if ns, bare, ok := strings.Cut(name, ":"); ok && !strings.Contains(bare, ".") {
		var found []model.FeatureKey
		for key := range m {
			if key.Namespace == ns && key.Name == bare {
				found = append(found, key)
			}
		}
		if len(found) == 0 {
			return nil, fabricerrors.NotLoaded(name, what)
		}
		sort.Slice(found, func(i, j int) bool { return found[i].String() < found[j].String() })
		return m[found[0]], nil
	}
	if strings.Contains(name, ":") {
		key, err := model.ParseFeatureKey(name)
		if err == nil {
			if c, ok := m[key]; ok {
				return c, nil
			}
		}
		return nil, fabricerrors.NotLoaded(name, what)
	}
	for key, c := range m {
		if key.APIName() == name {
			return c, nil
		}
	}
	return nil, fabricerrors.NotLoaded(name, what)
}

// NodeOrder returns all nodes in node order: the prepared order when a
// preparer computed one, the compiled order otherwise
func (a *API) NodeOrder() ([]int32, error) {
	if v, ok := a.items[KeyPrepSort]; ok {
		if order, ok := v.([]int32); ok {
			return order, nil
		}
	}
	return item[[]int32](a, KeyNodeSort, "node order")
}

// NodeRank returns the position of every node in node order
func (a *API) NodeRank() (map[int32]int32, error) {
	if v, ok := a.items[KeyPrepSortInv]; ok {
		if inv, ok := v.(map[int32]int32); ok {
			return inv, nil
		}
	}
	return item[map[int32]int32](a, KeyNodeSortInv, "node rank")
}

// NN returns the nodes in node order. With a test feature it returns only
// the nodes whose value for that feature is one of values, or that have any
// value at all when no values are given.
func (a *API) NN(test *Feature, values ...string) ([]int32, error) {
	order, err := a.NodeOrder()
	if err != nil {
		return nil, err
	}
	if test == nil {
		return append([]int32(nil), order...), nil
	}

	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	var nodes []int32
	for _, n := range order {
		v, ok := test.Lookup(n)
		if !ok {
			continue
		}
		if len(want) == 0 || want[v] {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// NE returns all node events in primary data order
func (a *API) NE() ([]model.NodeEvent, error) {
	nodes, err := item[[]int32](a, KeyEvents, "node events")
	if err != nil {
		return nil, err
	}
	kinds, err := item[[]int32](a, KeyEventsItems, "node event kinds")
	if err != nil {
		return nil, err
	}
	positions, err := item[[]int32](a, KeyEventsK, "node event anchors")
	if err != nil {
		return nil, err
	}
	offsets, err := item[[]int32](a, KeyEventsN, "node event offsets")
	if err != nil {
		return nil, err
	}
	if len(nodes) != len(kinds) || len(offsets) != len(positions)+1 {
		return nil, fabricerrors.CorruptedData("node event items do not match", nil)
	}

	events := make([]model.NodeEvent, 0, len(nodes))
	for i, pos := range positions {
		for j := offsets[i]; j < offsets[i+1]; j++ {
			events = append(events, model.NodeEvent{Anchor: pos, Node: nodes[j], Kind: model.NodeEventKind(kinds[j])})
		}
	}
	return events, nil
}

// X returns the xml identifier maps of a kind
func (a *API) X(kind model.Kind) (*XMLIDs, error) {
	fwdKey, bwdKey := KeyXMLNodesFwd, KeyXMLNodesBwd
	if kind == model.KindEdge {
		fwdKey, bwdKey = KeyXMLEdgesFwd, KeyXMLEdgesBwd
	}
	x := &XMLIDs{}
	if v, ok := a.items[fwdKey]; ok {
		x.fwd, _ = v.(map[string]int32)
	}
	if v, ok := a.items[bwdKey]; ok {
		x.bwd, _ = v.(map[int32]string)
	}
	if x.fwd == nil && x.bwd == nil {
		return nil, fabricerrors.NotLoaded(fwdKey, string(kind)+" xml ids")
	}
	return x, nil
}

// P returns access to the primary data
func (a *API) P() (*Primary, error) {
	text, err := item[string](a, KeyPrimary, "primary data")
	if err != nil {
		return nil, err
	}
	anchors, err := item[[]int32](a, KeyAnchor, "node anchors")
	if err != nil {
		return nil, err
	}
	offsets, err := item[[]int32](a, KeyAnchorItems, "node anchor offsets")
	if err != nil {
		return nil, err
	}
	return &Primary{text: []rune(text), anchors: anchors, offsets: offsets}, nil
}

// Edges returns the parallel edge source and target arrays
func (a *API) Edges() ([]int32, []int32, error) {
	from, err := item[[]int32](a, KeyEdgesFrom, "edge sources")
	if err != nil {
		return nil, nil, err
	}
	to, err := item[[]int32](a, KeyEdgesTo, "edge targets")
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// L returns the layer API, built on the object type feature
func (a *API) L() (*Layer, error) {
	a.layerOnce.Do(func() {
		a.layer, a.layerErr = newLayer(a)
	})
	return a.layer, a.layerErr
}
