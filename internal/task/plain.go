package task

import (
	"context"
	"strings"

	"github.com/Dans-labs/laf-fabric/internal/loadspec"
)

// TinySource is the name of the sample source for which plain prints book
// names instead of the text
const TinySource = "tiny"

const verseEnd = "׃"

// Plain writes the text of a source, one verse per line
type Plain struct{}

// NewPlain creates the plain task
func NewPlain() *Plain { return &Plain{} }

// Name implements Task
func (p *Plain) Name() string { return "plain" }

// Spec implements Task
func (p *Plain) Spec() *loadspec.Spec {
	return &loadspec.Spec{NodeFeatures: loadspec.MustParseFeatures("db:otype ft:text,suffix sft:book")}
}

// Run implements Task
func (p *Plain) Run(ctx context.Context, r *Run) error {
	books := r.Source == TinySource
	if books {
		r.Msg("Get the books ...")
	} else {
		r.Msg("Get the words ... ")
	}

	out, err := r.AddResult("output.txt")
	if err != nil {
		return err
	}
	otype, err := r.API.F("db:otype")
	if err != nil {
		return err
	}

	want := "word"
	if books {
		want = "book"
	}
	nodes, err := r.API.NN(otype, want)
	if err != nil {
		return err
	}

	if books {
		name, err := r.API.F("sft:book")
		if err != nil {
			return err
		}
		for _, n := range nodes {
			out.WriteString(name.V(n) + " ")
		}
	} else {
		text, err := r.API.F("ft:text")
		if err != nil {
			return err
		}
		suffix, err := r.API.F("ft:suffix")
		if err != nil {
			return err
		}
		for i, n := range nodes {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			s := suffix.V(n)
			out.WriteString(text.V(n) + s)
			if strings.Contains(s, verseEnd) {
				out.WriteString("\n")
			}
		}
	}
	r.Msg("Done: %d nodes", len(nodes))
	return nil
}
