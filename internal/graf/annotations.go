package graf

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/util/workerpool"
)

// Region is a named set of anchor ranges
type Region struct {
	ID      string
	Anchors []model.Anchor
}

// Node is a node with the regions it is linked to
type Node struct {
	ID      string
	Regions []string
}

// Edge connects two nodes
type Edge struct {
	ID   string
	From string
	To   string
}

// Feature is one name/value pair of a feature structure
type Feature struct {
	Name  string
	Value string
}

// Annotation attaches labeled features to a node or an edge
type Annotation struct {
	Label    string
	Ref      string
	Space    string
	Features []Feature
}

// File is one parsed annotation file
type File struct {
	Name        string
	Regions     []Region
	Nodes       []Node
	Edges       []Edge
	Annotations []Annotation
}

// ParseFile parses a single GrAF annotation file
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fabricerrors.SourceMissing(path, err)
	}
	defer f.Close()
	return parse(filepath.Base(path), f)
}

func parse(name string, r io.Reader) (*File, error) {
	out := &File{Name: name}
	dec := xml.NewDecoder(r)

	var (
		curNode *Node
		curAnn  *Annotation
		curFeat *Feature
		text    strings.Builder
	)
	bad := func(format string, args ...interface{}) error {
		return fabricerrors.MalformedGraF(name, fmt.Sprintf("%s: %s", position(dec), fmt.Sprintf(format, args...)), nil)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fabricerrors.MalformedGraF(name, "cannot parse annotations", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "region":
				id := xmlID(t)
				if id == "" {
					return nil, bad("region without xml:id")
				}
				anchors, err := parseAnchors(attr(t, "anchors"))
				if err != nil {
					return nil, bad("region %s: %v", id, err)
				}
				out.Regions = append(out.Regions, Region{ID: id, Anchors: anchors})
			case "node":
				id := xmlID(t)
				if id == "" {
					return nil, bad("node without xml:id")
				}
				out.Nodes = append(out.Nodes, Node{ID: id})
				curNode = &out.Nodes[len(out.Nodes)-1]
			case "link":
				if curNode == nil {
					return nil, bad("link outside node")
				}
				curNode.Regions = append(curNode.Regions, strings.Fields(attr(t, "targets"))...)
			case "edge":
				id := xmlID(t)
				from, to := attr(t, "from"), attr(t, "to")
				if id == "" || from == "" || to == "" {
					return nil, bad("edge needs xml:id, from and to")
				}
				out.Edges = append(out.Edges, Edge{ID: id, From: from, To: to})
			case "a":
				ref := attr(t, "ref")
				if ref == "" {
					return nil, bad("annotation without ref")
				}
				curAnn = &Annotation{Label: attr(t, "label"), Ref: ref, Space: attr(t, "as")}
			case "f":
				if curAnn == nil {
					return nil, bad("feature outside annotation")
				}
				fname := attr(t, "name")
				if fname == "" {
					return nil, bad("feature without name")
				}
				curFeat = &Feature{Name: fname, Value: attr(t, "value")}
				text.Reset()
			}
		case xml.CharData:
			if curFeat != nil {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "node":
				curNode = nil
			case "f":
				if curFeat != nil {
					if curFeat.Value == "" {
						curFeat.Value = strings.TrimSpace(text.String())
					}
					curAnn.Features = append(curAnn.Features, *curFeat)
					curFeat = nil
				}
			case "a":
				if curAnn != nil {
					out.Annotations = append(out.Annotations, *curAnn)
					curAnn = nil
				}
			}
		}
	}
	return out, nil
}

// parseAnchors reads "s e [s e ...]" into anchor ranges
func parseAnchors(s string) ([]model.Anchor, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields)%2 != 0 {
		return nil, fmt.Errorf("anchors %q should be pairs of offsets", s)
	}
	anchors := make([]model.Anchor, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		start, err := strconv.ParseInt(fields[i], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad anchor %q", fields[i])
		}
		end, err := strconv.ParseInt(fields[i+1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad anchor %q", fields[i+1])
		}
		if start < 0 || end < start {
			return nil, fmt.Errorf("anchor range %d-%d is not a valid range", start, end)
		}
		anchors = append(anchors, model.Anchor{Start: int32(start), End: int32(end)})
	}
	return anchors, nil
}

// ParseAll parses annotation files concurrently and returns them in the given order
func ParseAll(ctx context.Context, pool *workerpool.WorkerPool, dir string, files []string) ([]*File, error) {
	parsed := make([]*File, len(files))
	ids := make([]string, len(files))
	fns := make([]func(context.Context) error, len(files))
	for i, name := range files {
		i, path := i, filepath.Join(dir, name)
		ids[i] = "parse " + name
		fns[i] = func(context.Context) error {
			f, err := ParseFile(path)
			if err != nil {
				return err
			}
			parsed[i] = f
			return nil
		}
	}
	if err := pool.RunAll(ctx, ids, fns); err != nil {
		return nil, err
	}
	return parsed, nil
}
