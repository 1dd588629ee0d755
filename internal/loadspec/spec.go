// Package loadspec describes which compiled data a task wants loaded.
package loadspec

import (
	"fmt"
	"sort"
	"strings"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/model"
)

// FeatureRef names a feature in a load spec. A ref without a label matches
// every label carrying the name.
type FeatureRef struct {
	Namespace string
	Label     string
	Name      string
	AnyLabel  bool
}

func (r FeatureRef) String() string {
	if r.AnyLabel {
		return fmt.Sprintf("%s:%s", r.Namespace, r.Name)
	}
	return fmt.Sprintf("%s:%s.%s", r.Namespace, r.Label, r.Name)
}

// Matches reports whether a compiled feature key satisfies the ref
func (r FeatureRef) Matches(k model.FeatureKey) bool {
	return r.Namespace == k.Namespace && r.Name == k.Name && (r.AnyLabel || r.Label == k.Label)
}

// XMLIDs selects the xml identifier maps
type XMLIDs struct {
	Node bool
	Edge bool
}

// Spec is a complete set of load instructions
type Spec struct {
	NodeFeatures []FeatureRef
	EdgeFeatures []FeatureRef
	XMLIDs       XMLIDs
	Primary      bool
	Prepare      []string
}

// Features returns the refs of a kind
func (s *Spec) Features(kind model.Kind) []FeatureRef {
	if kind == model.KindEdge {
		return s.EdgeFeatures
	}
	return s.NodeFeatures
}

// ParseFeatures parses the compact form "db:otype ft:text,suffix sft:book".
// Each item is a namespace, a colon, and comma separated names, where a
// name is either label.name or a bare name.
func ParseFeatures(s string) ([]FeatureRef, error) {
	var refs []FeatureRef
	for _, item := range strings.Fields(s) {
		ns, list, ok := strings.Cut(item, ":")
		if !ok || ns == "" {
			return nil, fmt.Errorf("feature item %q should look like namespace:name,...", item)
		}
		for _, name := range strings.Split(list, ",") {
			if name == "" {
				return nil, fmt.Errorf("feature item %q has an empty name", item)
			}
			ref, err := parseName(ns, name)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func parseName(ns, name string) (FeatureRef, error) {
	if label, fname, ok := strings.Cut(name, "."); ok {
		if fname == "" {
			return FeatureRef{}, fmt.Errorf("feature %s:%s has an empty name", ns, name)
		}
		return FeatureRef{Namespace: ns, Label: label, Name: fname}, nil
	}
	return FeatureRef{Namespace: ns, Name: name, AnyLabel: true}, nil
}

// MustParseFeatures is ParseFeatures for literal specs in code; it panics on error
func MustParseFeatures(s string) []FeatureRef {
	refs, err := ParseFeatures(s)
	if err != nil {
		panic(err)
	}
	return refs
}

// Inventory is what the compiled data of a source (and annox) offers
type Inventory interface {
	FeaturesOf(kind model.Kind) []model.FeatureKey
}

// Resolved lists the concrete feature keys a spec asks for
type Resolved struct {
	NodeFeatures []model.FeatureKey
	EdgeFeatures []model.FeatureKey
}

// Resolve turns feature refs into compiled feature keys. A ref matching
// nothing in any inventory is an error; all such refs are reported at once.
func (s *Spec) Resolve(inventories ...Inventory) (*Resolved, error) {
	res := &Resolved{}
	var problems []string

	for _, kind := range []model.Kind{model.KindNode, model.KindEdge} {
		var available []model.FeatureKey
		for _, inv := range inventories {
			if inv != nil {
				available = append(available, inv.FeaturesOf(kind)...)
			}
		}

		seen := make(map[model.FeatureKey]bool)
		var keys []model.FeatureKey
		for _, ref := range s.Features(kind) {
			found := false
			for _, k := range available {
				if !ref.Matches(k) {
					continue
				}
				found = true
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
			if !found {
				problems = append(problems, fabricerrors.UnknownFeature(string(kind), ref.String()).Error())
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

		if kind == model.KindNode {
			res.NodeFeatures = keys
		} else {
			res.EdgeFeatures = keys
		}
	}

	if len(problems) > 0 {
		return nil, fabricerrors.NewFabricError(fabricerrors.ErrCodeUnknownFeature,
			strings.Join(problems, "\n"), nil).WithDetail("problems", problems)
	}
	return res, nil
}
