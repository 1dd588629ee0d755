package prepare

import (
	"sort"

	"github.com/Dans-labs/laf-fabric/internal/api"
)

// EtcbcSortName is the name of the ETCBC node order preparer
const EtcbcSortName = "etcbc-sort"

// EtcbcSort refines the compiled node order: nodes that span the same text
// are put in the order of their object types, largest type first.
type EtcbcSort struct {
	rank map[string]int
}

// NewEtcbcSort creates the preparer for object types ranked from largest to
// smallest
func NewEtcbcSort(otypeRank []string) *EtcbcSort {
	rank := make(map[string]int, len(otypeRank))
	for i, t := range otypeRank {
		rank[t] = i
	}
	return &EtcbcSort{rank: rank}
}

// Name implements Preparer
func (s *EtcbcSort) Name() string { return EtcbcSortName }

// Keys implements Preparer
func (s *EtcbcSort) Keys() []string {
	return []string{api.KeyPrepSort, api.KeyPrepSortInv}
}

// Compute implements Preparer
func (s *EtcbcSort) Compute(a *api.API) (map[string]interface{}, error) {
	order, err := a.Array(api.KeyNodeSort)
	if err != nil {
		return nil, err
	}
	mins, err := a.Array(api.KeyAnchorMin)
	if err != nil {
		return nil, err
	}
	maxs, err := a.Array(api.KeyAnchorMax)
	if err != nil {
		return nil, err
	}
	l, err := a.L()
	if err != nil {
		return nil, err
	}

	typeRank := func(n int32) int {
		if r, ok := s.rank[l.Type(n)]; ok {
			return r
		}
		return len(s.rank)
	}

	sorted := append([]int32(nil), order...)
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && mins[sorted[j]] == mins[sorted[i]] && maxs[sorted[j]] == maxs[sorted[i]] {
			j++
		}
		if j-i > 1 {
			group := sorted[i:j]
			sort.SliceStable(group, func(x, y int) bool { return typeRank(group[x]) < typeRank(group[y]) })
		}
		i = j
	}

	inv := make(map[int32]int32, len(sorted))
	for pos, n := range sorted {
		inv[n] = int32(pos)
	}
	return map[string]interface{}{
		api.KeyPrepSort:    sorted,
		api.KeyPrepSortInv: inv,
	}, nil
}
