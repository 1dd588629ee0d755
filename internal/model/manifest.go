package model

import (
	"sort"
	"time"
)

// FeatureInfo describes one compiled feature
type FeatureInfo struct {
	Key   FeatureKey `json:"key"`
	Kind  Kind       `json:"kind"`
	Count int        `json:"count"`
}

// Manifest records the outcome of a compilation
type Manifest struct {
	Source     string            `json:"source"`
	Annox      string            `json:"annox,omitempty"`
	CompiledAt time.Time         `json:"compiled_at"`
	Inputs     map[string]string `json:"inputs"`
	Nodes      int               `json:"nodes"`
	Edges      int               `json:"edges"`
	Features   []FeatureInfo     `json:"features"`
	Items      []string          `json:"items"`
}

// FeaturesOf returns the compiled features of a kind, sorted by key
func (m *Manifest) FeaturesOf(kind Kind) []FeatureKey {
	if m == nil {
		return nil
	}
	var keys []FeatureKey
	for _, f := range m.Features {
		if f.Kind == kind {
			keys = append(keys, f.Key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// HasFeature reports whether a feature of the given kind was compiled
func (m *Manifest) HasFeature(kind Kind, key FeatureKey) bool {
	for _, f := range m.Features {
		if f.Kind == kind && f.Key == key {
			return true
		}
	}
	return false
}

// SameInputs reports whether the recorded input digests equal the given ones
func (m *Manifest) SameInputs(inputs map[string]string) bool {
	if len(m.Inputs) != len(inputs) {
		return false
	}
	for file, dgst := range inputs {
		if m.Inputs[file] != dgst {
			return false
		}
	}
	return true
}
