package graf

import (
	"fmt"
	"sort"
	"unicode/utf8"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/model"
)

// FeatureValues maps node or edge indices to values, per feature
type FeatureValues map[model.FeatureKey]map[int32]string

func (fv FeatureValues) set(key model.FeatureKey, idx int32, value string) {
	m, ok := fv[key]
	if !ok {
		m = make(map[int32]string)
		fv[key] = m
	}
	m[idx] = value
}

// Graph is a complete LAF resource with dense node and edge indices
type Graph struct {
	Primary    string
	PrimaryLen int32

	NodeIDs     []string
	NodeIndex   map[string]int32
	NodeAnchors [][]model.Anchor

	EdgeIDs   []string
	EdgeIndex map[string]int32
	EdgeFrom  []int32
	EdgeTo    []int32

	NodeFeatures FeatureValues
	EdgeFeatures FeatureValues
}

// Assemble links the parsed annotation files of a source into a graph.
// Files are taken in order, so indices follow header and document order.
func Assemble(primary string, files []*File) (*Graph, error) {
	g := &Graph{
		Primary:      primary,
		PrimaryLen:   int32(utf8.RuneCountInString(primary)),
		NodeIndex:    make(map[string]int32),
		EdgeIndex:    make(map[string]int32),
		NodeFeatures: make(FeatureValues),
		EdgeFeatures: make(FeatureValues),
	}

	regions := make(map[string][]model.Anchor)
	owner := make(map[string]string)
	claim := func(file, id string) error {
		if prev, ok := owner[id]; ok {
			return fabricerrors.MalformedGraF(file, fmt.Sprintf("duplicate xml id %s (first seen in %s)", id, prev), nil)
		}
		owner[id] = file
		return nil
	}

	for _, f := range files {
		for _, r := range f.Regions {
			if err := claim(f.Name, r.ID); err != nil {
				return nil, err
			}
			for _, a := range r.Anchors {
				if a.End > g.PrimaryLen {
					return nil, fabricerrors.MalformedGraF(f.Name,
						fmt.Sprintf("region %s anchor %d beyond primary data of length %d", r.ID, a.End, g.PrimaryLen), nil)
				}
			}
			regions[r.ID] = r.Anchors
		}
	}

	for _, f := range files {
		for _, n := range f.Nodes {
			if err := claim(f.Name, n.ID); err != nil {
				return nil, err
			}
			var anchors []model.Anchor
			for _, rid := range n.Regions {
				ra, ok := regions[rid]
				if !ok {
					return nil, fabricerrors.UnknownXMLID(f.Name, rid)
				}
				anchors = append(anchors, ra...)
			}
			g.NodeIndex[n.ID] = int32(len(g.NodeIDs))
			g.NodeIDs = append(g.NodeIDs, n.ID)
			g.NodeAnchors = append(g.NodeAnchors, NormalizeAnchors(anchors))
		}
	}

	for _, f := range files {
		for _, e := range f.Edges {
			if err := claim(f.Name, e.ID); err != nil {
				return nil, err
			}
			from, ok := g.NodeIndex[e.From]
			if !ok {
				return nil, fabricerrors.UnknownXMLID(f.Name, e.From)
			}
			to, ok := g.NodeIndex[e.To]
			if !ok {
				return nil, fabricerrors.UnknownXMLID(f.Name, e.To)
			}
			g.EdgeIndex[e.ID] = int32(len(g.EdgeIDs))
			g.EdgeIDs = append(g.EdgeIDs, e.ID)
			g.EdgeFrom = append(g.EdgeFrom, from)
			g.EdgeTo = append(g.EdgeTo, to)
		}
	}

	annotated, err := CollectFeatures(files, g.NodeIndex, g.EdgeIndex, g.NodeFeatures, g.EdgeFeatures)
	if err != nil {
		return nil, err
	}
	for e := range g.EdgeIDs {
		key := model.EdgeUnannotated
		if annotated[int32(e)] {
			key = model.EdgeAnnotated
		}
		g.EdgeFeatures.set(key, int32(e), "")
	}

	return g, nil
}

// CollectFeatures resolves the annotations of files against node and edge
// indices and records their features. It returns the set of annotated
// edges. Later annotations override earlier values of the same feature.
func CollectFeatures(files []*File, nodes, edges map[string]int32, nodeFeatures, edgeFeatures FeatureValues) (map[int32]bool, error) {
	annotated := make(map[int32]bool)
	for _, f := range files {
		for _, a := range f.Annotations {
			if idx, ok := nodes[a.Ref]; ok {
				for _, feat := range a.Features {
					nodeFeatures.set(model.FeatureKey{Namespace: a.Space, Label: a.Label, Name: feat.Name}, idx, feat.Value)
				}
				continue
			}
			if idx, ok := edges[a.Ref]; ok {
				annotated[idx] = true
				for _, feat := range a.Features {
					edgeFeatures.set(model.FeatureKey{Namespace: a.Space, Label: a.Label, Name: feat.Name}, idx, feat.Value)
				}
				continue
			}
			return nil, fabricerrors.UnknownXMLID(f.Name, a.Ref)
		}
	}
	return annotated, nil
}

// NormalizeAnchors sorts ranges and merges the ones that touch or overlap
func NormalizeAnchors(anchors []model.Anchor) []model.Anchor {
	if len(anchors) == 0 {
		return nil
	}
	sorted := append([]model.Anchor(nil), anchors...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	out := sorted[:1]
	for _, a := range sorted[1:] {
		last := &out[len(out)-1]
		if a.Start <= last.End {
			if a.End > last.End {
				last.End = a.End
			}
			continue
		}
		out = append(out, a)
	}
	return out
}
