package model

import (
	"fmt"
	"strings"
)

// Kind distinguishes node data from edge data
type Kind string

const (
	KindNode Kind = "node"
	KindEdge Kind = "edge"
)

// Letter returns the single letter used for the kind inside data keys
func (k Kind) Letter() string {
	if k == KindEdge {
		return "e"
	}
	return "n"
}

// NodeID is the dense index of a node, assigned in document order
type NodeID = int32

// EdgeID is the dense index of an edge, assigned in document order
type EdgeID = int32

// Anchor is a half-open character range [Start, End) into the primary data
type Anchor struct {
	Start int32
	End   int32
}

// FeatureKey identifies a feature by annotation space, annotation label and feature name
type FeatureKey struct {
	Namespace string
	Label     string
	Name      string
}

// Implicit edge features, added to every edge by the compiler
var (
	EdgeAnnotated   = FeatureKey{Namespace: "laf", Label: "", Name: "y"}
	EdgeUnannotated = FeatureKey{Namespace: "laf", Label: "", Name: "x"}
)

// String renders the key as namespace:label.name
func (k FeatureKey) String() string {
	return fmt.Sprintf("%s:%s.%s", k.Namespace, k.Label, k.Name)
}

// APIName renders the key as namespace_label_name
func (k FeatureKey) APIName() string {
	return strings.Join(k.Comps(), "_")
}

// Comps returns the key as data key components
func (k FeatureKey) Comps() []string {
	return []string{k.Namespace, k.Label, k.Name}
}

// FeatureKeyFromComps is the inverse of Comps
func FeatureKeyFromComps(comps []string) (FeatureKey, error) {
	if len(comps) != 3 {
		return FeatureKey{}, fmt.Errorf("feature key needs 3 components, got %d", len(comps))
	}
	return FeatureKey{Namespace: comps[0], Label: comps[1], Name: comps[2]}, nil
}

// ParseFeatureKey parses namespace:label.name
func ParseFeatureKey(s string) (FeatureKey, error) {
	ns, rest, ok := strings.Cut(s, ":")
	if !ok {
		return FeatureKey{}, fmt.Errorf("feature %q has no namespace", s)
	}
	label, name, ok := strings.Cut(rest, ".")
	if !ok {
		return FeatureKey{}, fmt.Errorf("feature %q has no label", s)
	}
	if name == "" {
		return FeatureKey{}, fmt.Errorf("feature %q has no name", s)
	}
	return FeatureKey{Namespace: ns, Label: label, Name: name}, nil
}

// Neighbour is one connectivity target together with the edge feature value
type Neighbour struct {
	Node  NodeID `json:"n"`
	Value string `json:"v"`
}

// NodeEventKind tells what happens to a node at an anchor position
type NodeEventKind int32

const (
	EventStart   NodeEventKind = 0
	EventResume  NodeEventKind = 1
	EventSuspend NodeEventKind = 2
	EventEnd     NodeEventKind = 3
)

func (k NodeEventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventResume:
		return "resume"
	case EventSuspend:
		return "suspend"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// NodeEvent is a node starting, ending, suspending or resuming at an anchor
type NodeEvent struct {
	Anchor int32
	Node   NodeID
	Kind   NodeEventKind
}
