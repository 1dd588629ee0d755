package api

// Layer relates objects of different types by the stretch of primary data
// they span. It compares the full anchor sets of nodes when node anchors are
// loaded, and their first and last anchors otherwise.
type Layer struct {
	otype  *Feature
	order  []int32
	rank   map[int32]int32
	mins   []int32
	maxs   []int32
	byType map[string][]int32

	anchors []int32
	offsets []int32
}

func newLayer(a *API) (*Layer, error) {
	otype, err := a.F(a.otype.String())
	if err != nil {
		return nil, err
	}
	order, err := a.NodeOrder()
	if err != nil {
		return nil, err
	}
	rank, err := a.NodeRank()
	if err != nil {
		return nil, err
	}
	mins, err := item[[]int32](a, KeyAnchorMin, "node anchor minima")
	if err != nil {
		return nil, err
	}
	maxs, err := item[[]int32](a, KeyAnchorMax, "node anchor maxima")
	if err != nil {
		return nil, err
	}

	l := &Layer{otype: otype, order: order, rank: rank, mins: mins, maxs: maxs, byType: make(map[string][]int32)}
	if a.Has(KeyAnchor) && a.Has(KeyAnchorItems) {
		l.anchors, _ = item[[]int32](a, KeyAnchor, "node anchors")
		l.offsets, _ = item[[]int32](a, KeyAnchorItems, "node anchor offsets")
	}
	for _, n := range order {
		if t, ok := otype.Lookup(n); ok {
			l.byType[t] = append(l.byType[t], n)
		}
	}
	return l, nil
}

// OType is the object type feature the layer is built on
func (l *Layer) OType() *Feature { return l.otype }

func (l *Layer) span(n int32) (int32, int32, bool) {
	if n < 0 || int(n) >= len(l.mins) || l.mins[n] < 0 {
		return 0, 0, false
	}
	return l.mins[n], l.maxs[n], true
}

// contains reports whether the text of m covers the text of n
func (l *Layer) contains(m, n int32) bool {
	mlo, mhi, ok := l.span(m)
	lo, hi, ok2 := l.span(n)
	if !ok || !ok2 || mlo > lo || mhi < hi {
		return false
	}
	if l.offsets == nil || int(m)+1 >= len(l.offsets) || int(n)+1 >= len(l.offsets) {
		return true
	}
	// ranges are sorted and disjoint: each range of n must lie inside the
	// first range of m that ends at or after it
	mi, mEnd := l.offsets[m], l.offsets[m+1]
	for i := l.offsets[n]; i+1 < l.offsets[n+1]; i += 2 {
		start, end := l.anchors[i], l.anchors[i+1]
		for mi+1 < mEnd && l.anchors[mi+1] < end {
			mi += 2
		}
		if mi+1 >= mEnd || l.anchors[mi] > start {
			return false
		}
	}
	return true
}

// U returns the object of type otype that embeds node n most closely. When
// several objects span the same text, the one that comes last in node order
// before n wins.
func (l *Layer) U(otype string, n int32) (int32, bool) {
	lo, hi, ok := l.span(n)
	if !ok {
		return 0, false
	}
	best, found := int32(0), false
	for _, m := range l.byType[otype] {
		if m == n {
			continue
		}
		if !l.contains(m, n) {
			continue
		}
		mlo, mhi, _ := l.span(m)
		if mlo == lo && mhi == hi && l.rank[m] > l.rank[n] {
			continue
		}
		if !found || mhi-mlo < l.maxs[best]-l.mins[best] ||
			(mhi-mlo == l.maxs[best]-l.mins[best] && l.rank[m] > l.rank[best]) {
			best, found = m, true
		}
	}
	return best, found
}

// D returns the objects of type otype embedded in node n, in node order
func (l *Layer) D(otype string, n int32) []int32 {
	lo, hi, ok := l.span(n)
	if !ok {
		return nil
	}
	var out []int32
	for _, m := range l.byType[otype] {
		if m == n {
			continue
		}
		if !l.contains(n, m) {
			continue
		}
		mlo, mhi, _ := l.span(m)
		if mlo == lo && mhi == hi && l.rank[m] < l.rank[n] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Nodes returns the objects of a type in node order
func (l *Layer) Nodes(otype string) []int32 {
	return append([]int32(nil), l.byType[otype]...)
}

// Type returns the object type of a node
func (l *Layer) Type(n int32) string {
	return l.otype.V(n)
}
