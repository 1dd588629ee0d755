// Package names manages the keys of compiled LAF data items.
//
// A key has the format
//
//	origin group kind direction ( components )
//
// where origin is m (main), a (annox) or z (prepared by a preparer, never
// compiled), group is one of P (primary data), G (regions, nodes, edges),
// X (xml identifiers), F (features), C (connectivity) or T (temporary during
// compiling), kind is n (node), e (edge) or 0, and direction is f
// (forward), b (backward) or 0. Components are comma separated; features
// have three of them: namespace, label, name.
package names

import (
	"fmt"
	"strings"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
)

// Origins
const (
	OriginMain     = 'm'
	OriginAnnox    = 'a'
	OriginPrepared = 'z'
)

// Groups
const (
	GroupPrimary      = 'P'
	GroupGraph        = 'G'
	GroupXMLIDs       = 'X'
	GroupFeatures     = 'F'
	GroupConnectivity = 'C'
	GroupTemporary    = 'T'
)

// DataType is the in-memory shape of a data item
type DataType string

const (
	TypeArray  DataType = "arr"
	TypeDict   DataType = "dct"
	TypeString DataType = "str"
)

// CompSep separates components inside a key
const CompSep = ","

// CondMode says how a request condition selects data items
type CondMode int

const (
	// CondOff skips the items
	CondOff CondMode = iota
	// CondOn selects the items as they are registered
	CondOn
	// CondList selects one item per component list
	CondList
	// CondNone marks items that are only present when a preparer provides them
	CondNone
)

// Condition is the load condition of every item sharing a key prefix
type Condition struct {
	Mode  CondMode
	Comps [][]string
}

// On is the condition that selects registered items
func On() Condition { return Condition{Mode: CondOn} }

// Off is the condition that skips items
func Off() Condition { return Condition{Mode: CondOff} }

// List is the condition that selects one item per component list
func List(comps ...[]string) Condition {
	return Condition{Mode: CondList, Comps: comps}
}

// Add appends a component list to a list condition
func (c *Condition) Add(comps []string) {
	c.Mode = CondList
	c.Comps = append(c.Comps, comps)
}

type itemDef struct {
	key   string
	cond  Condition
	dtype DataType
}

var itemsTpl = []struct {
	raw   string
	cond  Condition
	dtype DataType
}{
	{"mP00 node_anchor", Off(), TypeArray},
	{"mP00 node_anchor_items", Off(), TypeArray},
	{"mG00 node_anchor_min", On(), TypeArray},
	{"mG00 node_anchor_max", On(), TypeArray},
	{"mP00 node_events", Off(), TypeArray},
	{"mP00 node_events_items", Off(), TypeArray},
	{"mP00 node_events_k", Off(), TypeArray},
	{"mP00 node_events_n", Off(), TypeArray},
	{"mG00 node_sort", On(), TypeArray},
	{"mG00 node_sort_inv", On(), TypeDict},
	{"mG00 edges_from", On(), TypeArray},
	{"mG00 edges_to", On(), TypeArray},
	{"mP00 primary_data", Off(), TypeString},
	{"mXnf", List(), TypeDict},
	{"mXef", List(), TypeDict},
	{"mXnb", List(), TypeDict},
	{"mXeb", List(), TypeDict},
	{"mFn0", List(), TypeDict},
	{"mFe0", List(), TypeDict},
	{"mC0f", List(), TypeDict},
	{"mC0b", List(), TypeDict},
	{"aFn0", List(), TypeDict},
	{"aFe0", List(), TypeDict},
	{"aC0f", List(), TypeDict},
	{"aC0b", List(), TypeDict},
	{"zG00 node_sort", Condition{Mode: CondNone}, TypeArray},
	{"zG00 node_sort_inv", Condition{Mode: CondNone}, TypeDict},
}

var (
	itemDefs  []itemDef
	itemIndex map[string]int
)

func init() {
	itemIndex = make(map[string]int, len(itemsTpl))
	for _, t := range itemsTpl {
		parts := strings.Split(t.raw, " ")
		key := t.raw
		if len(parts) > 1 {
			key = Comp(parts[0], parts[1:])
		}
		itemIndex[key] = len(itemDefs)
		itemDefs = append(itemDefs, itemDef{key: key, cond: t.cond, dtype: t.dtype})
	}
}

// Comp composes a key from its prefix and components
func Comp(prefix string, comps []string) string {
	return fmt.Sprintf("%s(%s)", prefix, strings.Join(comps, CompSep))
}

// CompFile composes the file name of a data item; the origin is left out
// because it is encoded in the directory.
func CompFile(group, kind, dir byte, comps []string) string {
	return fmt.Sprintf("%c%c%c(%s)", group, kind, dir, strings.Join(comps, CompSep))
}

// Decomp splits a key into its prefix and its parenthesized component part
func Decomp(dkey string) (string, string) {
	prefix, rest, ok := strings.Cut(dkey, "(")
	if !ok {
		return dkey, ""
	}
	return prefix, "(" + rest
}

// Parts is a fully decomposed key
type Parts struct {
	Origin    byte
	Group     byte
	Kind      byte
	Direction byte
	Comps     []string
}

// DecompFull splits a key into its single letter parts and components
func DecompFull(dkey string) (Parts, error) {
	prefix, rest := Decomp(dkey)
	if len(prefix) != 4 {
		return Parts{}, fabricerrors.UnknownDataKey(dkey)
	}
	p := Parts{Origin: prefix[0], Group: prefix[1], Kind: prefix[2], Direction: prefix[3]}
	inner := strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	if inner != "" {
		p.Comps = strings.Split(inner, CompSep)
	}
	return p, nil
}

// APIName joins components the way the task API names them
func APIName(comps []string) string {
	return strings.Join(comps, "_")
}

// OrigKey maps the key of a prepared item to the key of the item it replaces
func OrigKey(dkey string) string {
	if strings.HasPrefix(dkey, string(OriginPrepared)) {
		return string(OriginMain) + dkey[1:]
	}
	return dkey
}

// Query lists registered keys, optionally restricted to an origin and a group.
// A zero byte means any.
func Query(origin, group byte) []string {
	var keys []string
	for _, d := range itemDefs {
		if (origin == 0 || d.key[0] == origin) && (group == 0 || d.key[1] == group) {
			keys = append(keys, d.key)
		}
	}
	return keys
}

// TypeOf returns the data type of a key, looking up the prefix when the key
// itself carries components that are not registered.
func TypeOf(dkey string) (DataType, error) {
	d, ok := lookup(dkey)
	if !ok {
		return "", fabricerrors.UnknownDataKey(dkey)
	}
	return d.dtype, nil
}

func lookup(dkey string) (itemDef, bool) {
	if i, ok := itemIndex[dkey]; ok {
		return itemDefs[i], true
	}
	prefix, _ := Decomp(dkey)
	if i, ok := itemIndex[prefix]; ok {
		return itemDefs[i], true
	}
	return itemDef{}, false
}

// Msg describes a key for progress messages
func Msg(dkey string) string {
	p, err := DecompFull(dkey)
	if err != nil {
		return dkey
	}
	var b strings.Builder
	switch p.Origin {
	case OriginMain:
		b.WriteString("main")
	case OriginAnnox:
		b.WriteString("annox")
	default:
		b.WriteString("prep")
	}
	b.WriteString(": ")
	b.WriteByte(p.Group)
	if len(p.Comps) > 0 {
		b.WriteString(".")
		b.WriteString(APIName(p.Comps))
	}
	switch p.Kind {
	case 'n':
		b.WriteString(" [node]")
	case 'e':
		b.WriteString(" [edge]")
	}
	switch p.Direction {
	case 'f':
		b.WriteString(" ->")
	case 'b':
		b.WriteString(" <-")
	}
	return b.String()
}

// Deliver stores a computed item under its composed key; empty results are dropped
func Deliver(computed interface{}, prefix string, comps []string, items map[string]interface{}) {
	if computed == nil {
		return
	}
	items[Comp(prefix, comps)] = computed
}
