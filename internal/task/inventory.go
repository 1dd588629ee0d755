package task

import (
	"context"
	"encoding/xml"
	"sort"

	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/model"
)

// Inventory counts the values of every loaded feature and writes the
// frequencies as XML
type Inventory struct {
	spec string
}

// NewInventory creates the inventory task. Without features it counts the
// object types only.
func NewInventory(features ...string) *Inventory {
	spec := "db:otype"
	if len(features) > 0 {
		spec = features[0]
	}
	return &Inventory{spec: spec}
}

// Name implements Task
func (i *Inventory) Name() string { return "inventory" }

// Spec implements Task
func (i *Inventory) Spec() *loadspec.Spec {
	return &loadspec.Spec{NodeFeatures: loadspec.MustParseFeatures(i.spec)}
}

type inventoryDoc struct {
	XMLName  xml.Name           `xml:"inventory"`
	Source   string             `xml:"source,attr"`
	Annox    string             `xml:"annox,attr,omitempty"`
	Features []inventoryFeature `xml:"feature"`
}

type inventoryFeature struct {
	Kind   model.Kind       `xml:"kind,attr"`
	Name   string           `xml:"name,attr"`
	Count  int              `xml:"count,attr"`
	Values []inventoryValue `xml:"value"`
}

type inventoryValue struct {
	Count int    `xml:"count,attr"`
	Value string `xml:",chardata"`
}

// Run implements Task
func (i *Inventory) Run(ctx context.Context, r *Run) error {
	doc := inventoryDoc{Source: r.Source, Annox: r.Annox}
	for _, kind := range []model.Kind{model.KindNode, model.KindEdge} {
		for _, f := range r.API.Features(kind) {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc.Features = append(doc.Features, countValues(f.Key().String(), kind, f.Len(), f.Each))
		}
	}
	r.Msg("Counted values of %d features", len(doc.Features))

	out, err := r.AddXMLResult("inventory.xml", "")
	if err != nil {
		return err
	}
	out.WriteString(xml.Header)
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err = out.WriteString("\n")
	return err
}

func countValues(name string, kind model.Kind, total int, each func(func(int32, string))) inventoryFeature {
	counts := make(map[string]int)
	each(func(_ int32, v string) { counts[v]++ })

	f := inventoryFeature{Kind: kind, Name: name, Count: total}
	for v, c := range counts {
		f.Values = append(f.Values, inventoryValue{Count: c, Value: v})
	}
	// most frequent first
	sort.Slice(f.Values, func(i, j int) bool {
		if f.Values[i].Count != f.Values[j].Count {
			return f.Values[i].Count > f.Values[j].Count
		}
		return f.Values[i].Value < f.Values[j].Value
	})
	return f
}
