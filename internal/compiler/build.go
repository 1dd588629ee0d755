package compiler

import (
	"sort"

	"github.com/Dans-labs/laf-fabric/internal/graf"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/names"
)

// Items maps data keys to their values: []int32 for arrays, string for the
// primary data, and maps for dicts.
type Items map[string]interface{}

func (it Items) put(origin byte, rest string, comps []string, value interface{}) {
	names.Deliver(value, string(origin)+rest, comps, it)
}

// BuildMain computes every main data item of a graph
func BuildMain(g *graf.Graph) Items {
	items := make(Items)
	n := len(g.NodeIDs)

	anchors := inheritAnchors(g)

	flat := make([]int32, 0, 2*n)
	offsets := make([]int32, 0, n+1)
	mins := make([]int32, n)
	maxs := make([]int32, n)
	for i, as := range anchors {
		offsets = append(offsets, int32(len(flat)))
		for _, a := range as {
			flat = append(flat, a.Start, a.End)
		}
		if len(as) == 0 {
			mins[i], maxs[i] = -1, -1
			continue
		}
		mins[i], maxs[i] = as[0].Start, as[len(as)-1].End
	}
	offsets = append(offsets, int32(len(flat)))

	order := SortNodes(mins, maxs)
	inv := make(map[int32]int32, n)
	for pos, node := range order {
		inv[node] = int32(pos)
	}

	evNodes, evKinds, evAnchors, evOffsets := nodeEvents(anchors, inv)

	main := byte(names.OriginMain)
	items.put(main, "P00", []string{"node_anchor"}, flat)
	items.put(main, "P00", []string{"node_anchor_items"}, offsets)
	items.put(main, "G00", []string{"node_anchor_min"}, mins)
	items.put(main, "G00", []string{"node_anchor_max"}, maxs)
	items.put(main, "G00", []string{"node_sort"}, order)
	items.put(main, "G00", []string{"node_sort_inv"}, inv)
	items.put(main, "P00", []string{"node_events"}, evNodes)
	items.put(main, "P00", []string{"node_events_items"}, evKinds)
	items.put(main, "P00", []string{"node_events_k"}, evAnchors)
	items.put(main, "P00", []string{"node_events_n"}, evOffsets)
	items.put(main, "G00", []string{"edges_from"}, append([]int32{}, g.EdgeFrom...))
	items.put(main, "G00", []string{"edges_to"}, append([]int32{}, g.EdgeTo...))
	items.put(main, "P00", []string{"primary_data"}, g.Primary)

	nodesF := make(map[string]int32, n)
	nodesB := make(map[int32]string, n)
	for i, id := range g.NodeIDs {
		nodesF[id] = int32(i)
		nodesB[int32(i)] = id
	}
	edgesF := make(map[string]int32, len(g.EdgeIDs))
	edgesB := make(map[int32]string, len(g.EdgeIDs))
	for i, id := range g.EdgeIDs {
		edgesF[id] = int32(i)
		edgesB[int32(i)] = id
	}
	items.put(main, "Xnf", nil, nodesF)
	items.put(main, "Xnb", nil, nodesB)
	items.put(main, "Xef", nil, edgesF)
	items.put(main, "Xeb", nil, edgesB)

	addFeatures(items, main, g.NodeFeatures, g.EdgeFeatures, g.EdgeFrom, g.EdgeTo)
	return items
}

// BuildAnnox computes the annox data items from feature values resolved
// against the main graph
func BuildAnnox(nodeFeatures, edgeFeatures graf.FeatureValues, edgesFrom, edgesTo []int32) Items {
	items := make(Items)
	addFeatures(items, names.OriginAnnox, nodeFeatures, edgeFeatures, edgesFrom, edgesTo)
	return items
}

func addFeatures(items Items, origin byte, nodeFeatures, edgeFeatures graf.FeatureValues, from, to []int32) {
	for key, values := range nodeFeatures {
		items.put(origin, "Fn0", key.Comps(), map[int32]string(values))
	}
	for key, values := range edgeFeatures {
		items.put(origin, "Fe0", key.Comps(), map[int32]string(values))

		edges := make([]int32, 0, len(values))
		for e := range values {
			edges = append(edges, e)
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })

		fw := make(map[int32][]model.Neighbour)
		bw := make(map[int32][]model.Neighbour)
		for _, e := range edges {
			if int(e) >= len(from) {
				continue
			}
			f, t, v := from[e], to[e], values[e]
			fw[f] = append(fw[f], model.Neighbour{Node: t, Value: v})
			bw[t] = append(bw[t], model.Neighbour{Node: f, Value: v})
		}
		items.put(origin, "C0f", key.Comps(), fw)
		items.put(origin, "C0b", key.Comps(), bw)
	}
}

// inheritAnchors gives nodes without regions the anchors of the nodes they
// point to, repeated until nothing changes
func inheritAnchors(g *graf.Graph) [][]model.Anchor {
	anchors := make([][]model.Anchor, len(g.NodeAnchors))
	copy(anchors, g.NodeAnchors)

	targets := make(map[int32][]int32)
	for e, from := range g.EdgeFrom {
		if len(g.NodeAnchors[from]) == 0 {
			targets[from] = append(targets[from], g.EdgeTo[e])
		}
	}
	if len(targets) == 0 {
		return anchors
	}

	unanchored := make([]int32, 0, len(targets))
	for node := range targets {
		unanchored = append(unanchored, node)
	}
	sort.Slice(unanchored, func(i, j int) bool { return unanchored[i] < unanchored[j] })

	for changed := true; changed; {
		changed = false
		for _, node := range unanchored {
			var union []model.Anchor
			for _, t := range targets[node] {
				union = append(union, anchors[t]...)
			}
			merged := graf.NormalizeAnchors(union)
			if !sameAnchors(merged, anchors[node]) {
				anchors[node] = merged
				changed = true
			}
		}
	}
	return anchors
}

func sameAnchors(a, b []model.Anchor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SortNodes orders nodes by first anchor ascending, then last anchor
// descending, then index. Nodes without anchors come last.
func SortNodes(mins, maxs []int32) []int32 {
	order := make([]int32, len(mins))
	for i := range order {
		order[i] = int32(i)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if (mins[a] < 0) != (mins[b] < 0) {
			return mins[b] < 0
		}
		if mins[a] != mins[b] {
			return mins[a] < mins[b]
		}
		if maxs[a] != maxs[b] {
			return maxs[a] > maxs[b]
		}
		return a < b
	})
	return order
}

type event struct {
	anchor int32
	node   int32
	kind   model.NodeEventKind
	empty  bool
}

func (e event) closing() bool {
	return e.kind == model.EventSuspend || e.kind == model.EventEnd
}

// bucket groups the events at one position: closings of ranges that end
// there, then the open and close pairs of empty ranges, then openings
func (e event) bucket() int {
	switch {
	case e.empty:
		return 1
	case e.closing():
		return 0
	default:
		return 2
	}
}

// nodeEvents lists per anchor position the nodes that start, resume,
// suspend or end there. The result is four arrays: event nodes, event
// kinds, the distinct anchor positions, and for each position the offset of
// its first event (with a final sentinel).
func nodeEvents(anchors [][]model.Anchor, rank map[int32]int32) ([]int32, []int32, []int32, []int32) {
	var events []event
	for node, as := range anchors {
		for i, a := range as {
			open, shut := model.EventResume, model.EventSuspend
			if i == 0 {
				open = model.EventStart
			}
			if i == len(as)-1 {
				shut = model.EventEnd
			}
			empty := a.Start == a.End
			events = append(events,
				event{anchor: a.Start, node: int32(node), kind: open, empty: empty},
				event{anchor: a.End, node: int32(node), kind: shut, empty: empty})
		}
	}

	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.anchor != b.anchor {
			return a.anchor < b.anchor
		}
		if a.bucket() != b.bucket() {
			return a.bucket() < b.bucket()
		}
		ra, rb := rank[a.node], rank[b.node]
		if a.bucket() == 0 {
			ra, rb = rb, ra
		}
		if ra != rb {
			return ra < rb
		}
		// an empty range opens before it closes
		return !a.closing() && b.closing()
	})

	nodes := make([]int32, len(events))
	kinds := make([]int32, len(events))
	var positions, offsets []int32
	for i, e := range events {
		nodes[i] = e.node
		kinds[i] = int32(e.kind)
		if i == 0 || e.anchor != events[i-1].anchor {
			positions = append(positions, e.anchor)
			offsets = append(offsets, int32(i))
		}
	}
	offsets = append(offsets, int32(len(events)))
	return nodes, kinds, positions, offsets
}

// FeatureInventory lists the features of the given values with their counts
func FeatureInventory(nodeFeatures, edgeFeatures graf.FeatureValues) []model.FeatureInfo {
	var inv []model.FeatureInfo
	for key, values := range nodeFeatures {
		inv = append(inv, model.FeatureInfo{Key: key, Kind: model.KindNode, Count: len(values)})
	}
	for key, values := range edgeFeatures {
		inv = append(inv, model.FeatureInfo{Key: key, Kind: model.KindEdge, Count: len(values)})
	}
	sort.Slice(inv, func(i, j int) bool {
		if inv[i].Kind != inv[j].Kind {
			return inv[i].Kind > inv[j].Kind
		}
		return inv[i].Key.String() < inv[j].Key.String()
	})
	return inv
}
