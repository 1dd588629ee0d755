package task

import (
	"context"
	"strings"

	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/model"
)

// Trees writes the node events as bracketed trees, one line per outermost
// stretch. An interrupted node is closed with "~)" and reopened with a "~"
// after its type. Nodes without embedded events show their text.
type Trees struct{}

// NewTrees creates the trees task
func NewTrees() *Trees { return &Trees{} }

// Name implements Task
func (t *Trees) Name() string { return "trees" }

// Spec implements Task
func (t *Trees) Spec() *loadspec.Spec {
	return &loadspec.Spec{NodeFeatures: loadspec.MustParseFeatures("db:otype"), Primary: true}
}

// Run implements Task
func (t *Trees) Run(ctx context.Context, r *Run) error {
	events, err := r.API.NE()
	if err != nil {
		return err
	}
	l, err := r.API.L()
	if err != nil {
		return err
	}
	p, err := r.API.P()
	if err != nil {
		return err
	}
	out, err := r.AddResult("trees.txt")
	if err != nil {
		return err
	}

	var (
		line    strings.Builder
		depth   int
		lines   int
		pending int32 = -1
	)
	open := func(s string) {
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(s)
	}
	for i, ev := range events {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		switch ev.Kind {
		case model.EventStart:
			open("(" + l.Type(ev.Node))
			depth++
			pending = ev.Node
		case model.EventResume:
			open("(" + l.Type(ev.Node) + "~")
			depth++
			pending = -1
		case model.EventEnd:
			if pending == ev.Node {
				line.WriteString(" " + p.Text(ev.Node))
			}
			line.WriteString(")")
			depth--
			pending = -1
		case model.EventSuspend:
			line.WriteString("~)")
			depth--
			pending = -1
		}
		if depth == 0 && line.Len() > 0 {
			out.WriteString(line.String() + "\n")
			line.Reset()
			lines++
		}
	}
	if line.Len() > 0 {
		out.WriteString(line.String() + "\n")
		lines++
	}
	r.Msg("Wrote %d lines of %d node events", lines, len(events))
	return nil
}
