package graf

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/graf/graftest"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/util/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T) *workerpool.WorkerPool {
	t.Helper()
	p := workerpool.NewWorkerPool(&workerpool.Config{Name: "graf", MaxWorkers: 2})
	t.Cleanup(func() { p.Stop(time.Second) })
	return p
}

func loadSample(t *testing.T) *Graph {
	t.Helper()
	hdr, err := ReadHeader(graftest.WriteSource(t, t.TempDir()))
	require.NoError(t, err)
	primary, err := hdr.ReadPrimary()
	require.NoError(t, err)
	files, err := ParseAll(context.Background(), newPool(t), hdr.Dir, hdr.Annotations)
	require.NoError(t, err)
	g, err := Assemble(primary, files)
	require.NoError(t, err)
	return g
}

func TestReadHeader(t *testing.T) {
	hdr, err := ReadHeader(graftest.WriteSource(t, t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "tiny.txt", hdr.Primary)
	assert.Equal(t, []string{"tiny_words.xml", "tiny_objects.xml"}, hdr.Annotations)
	assert.Equal(t, []string{"tiny.txt", "tiny_words.xml", "tiny_objects.xml"}, hdr.Files())

	primary, err := hdr.ReadPrimary()
	require.NoError(t, err)
	assert.Equal(t, graftest.Primary, primary)
}

func TestReadAnnoxHeader(t *testing.T) {
	hdr, err := ReadHeader(graftest.WriteAnnox(t, t.TempDir()))
	require.NoError(t, err)

	assert.Empty(t, hdr.Primary)
	assert.Equal(t, []string{"px_notes.xml"}, hdr.Files())
	_, err = hdr.ReadPrimary()
	assert.Equal(t, fabricerrors.ErrCodeMalformedGraF, fabricerrors.GetCode(err))
}

func TestReadHeaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadHeader(filepath.Join(dir, "absent.hdr"))
	assert.Equal(t, fabricerrors.ErrCodeSourceMissing, fabricerrors.GetCode(err))

	_, err = ReadHeader(graftest.WriteFile(t, dir, "wrong.hdr", "<graph/>"))
	assert.Equal(t, fabricerrors.ErrCodeMalformedGraF, fabricerrors.GetCode(err))

	_, err = ReadHeader(graftest.WriteFile(t, dir, "broken.hdr", "<documentHeader><annotation"))
	assert.Equal(t, fabricerrors.ErrCodeMalformedGraF, fabricerrors.GetCode(err))
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	graftest.WriteSource(t, dir)

	f, err := ParseFile(filepath.Join(dir, graftest.Source, "tiny_objects.xml"))
	require.NoError(t, err)

	assert.Equal(t, "tiny_objects.xml", f.Name)
	assert.Len(t, f.Regions, 2)
	assert.Equal(t, []string{"v1", "c1", "v2", "p1", "b1"}, []string{f.Nodes[0].ID, f.Nodes[1].ID, f.Nodes[2].ID, f.Nodes[3].ID, f.Nodes[4].ID})
	assert.Equal(t, []string{"r1", "r3"}, f.Nodes[3].Regions)
	assert.Empty(t, f.Nodes[4].Regions)
	assert.Equal(t, Edge{ID: "e3", From: "p1", To: "w1"}, f.Edges[2])

	var book Annotation
	for _, a := range f.Annotations {
		if a.Ref == "b1" && a.Space == "sft" {
			book = a
		}
	}
	assert.Equal(t, []Feature{{Name: "book", Value: "Genesis"}}, book.Features)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not xml", "<graph><node"},
		{"region without id", `<graph><region anchors="0 1"/></graph>`},
		{"odd anchors", `<graph><region xml:id="r" anchors="0 1 2"/></graph>`},
		{"reversed anchors", `<graph><region xml:id="r" anchors="5 1"/></graph>`},
		{"link outside node", `<graph><link targets="r"/></graph>`},
		{"edge without to", `<graph><edge xml:id="e" from="n"/></graph>`},
		{"annotation without ref", `<graph><a label="x"/></graph>`},
		{"feature without name", `<graph><a ref="n"><fs><f value="1"/></fs></a></graph>`},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile(graftest.WriteFile(t, dir, "bad.xml", tt.content))
			assert.Equal(t, fabricerrors.ErrCodeMalformedGraF, fabricerrors.GetCode(err))
			assert.Contains(t, err.Error(), "bad.xml")
		})
	}
}

func TestParseAllMissingFile(t *testing.T) {
	dir := t.TempDir()
	graftest.WriteSource(t, dir)

	_, err := ParseAll(context.Background(), newPool(t), filepath.Join(dir, graftest.Source), []string{"tiny_words.xml", "nope.xml"})
	assert.Equal(t, fabricerrors.ErrCodeSourceMissing, fabricerrors.GetCode(err))
}

func TestAssemble(t *testing.T) {
	g := loadSample(t)

	assert.Equal(t, int32(32), g.PrimaryLen)
	assert.Len(t, g.NodeIDs, graftest.NodeCount)
	assert.Equal(t, graftest.P1, g.NodeIndex["p1"])
	assert.Equal(t, graftest.B1, g.NodeIndex["b1"])

	assert.Equal(t, []model.Anchor{{Start: 0, End: 5}, {Start: 11, End: 16}}, g.NodeAnchors[graftest.P1])
	assert.Empty(t, g.NodeAnchors[graftest.B1])

	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, g.EdgeIDs)
	assert.Equal(t, []int32{graftest.B1, graftest.B1, graftest.P1, graftest.W2}, g.EdgeFrom)
	assert.Equal(t, []int32{graftest.V1, graftest.V2, graftest.W1, graftest.W3}, g.EdgeTo)

	text := g.NodeFeatures[model.FeatureKey{Namespace: "ft", Label: "word", Name: "text"}]
	assert.Equal(t, "gamma", text[graftest.W3])
	assert.Equal(t, "Genesis", g.NodeFeatures[model.FeatureKey{Namespace: "sft", Label: "book", Name: "book"}][graftest.B1])

	assert.Equal(t, map[int32]string{0: "", 1: "", 2: ""}, g.EdgeFeatures[model.EdgeAnnotated])
	assert.Equal(t, map[int32]string{3: ""}, g.EdgeFeatures[model.EdgeUnannotated])
	assert.Equal(t, map[int32]string{2: "subj"}, g.EdgeFeatures[model.FeatureKey{Namespace: "ft", Label: "rel", Name: "role"}])
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    fabricerrors.ErrorCode
	}{
		{"duplicate id", `<graph><region xml:id="r" anchors="0 1"/><node xml:id="r"/></graph>`, fabricerrors.ErrCodeMalformedGraF},
		{"anchor beyond primary", `<graph><region xml:id="r" anchors="0 99"/></graph>`, fabricerrors.ErrCodeMalformedGraF},
		{"dangling region", `<graph><node xml:id="n"><link targets="rx"/></node></graph>`, fabricerrors.ErrCodeUnknownXMLID},
		{"dangling edge", `<graph><node xml:id="n"/><edge xml:id="e" from="n" to="m"/></graph>`, fabricerrors.ErrCodeUnknownXMLID},
		{"dangling annotation", `<graph><a label="x" ref="zz" as="ft"/></graph>`, fabricerrors.ErrCodeUnknownXMLID},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFile(graftest.WriteFile(t, dir, "g.xml", tt.content))
			require.NoError(t, err)
			_, err = Assemble("0123456789", []*File{f})
			assert.Equal(t, tt.code, fabricerrors.GetCode(err))
		})
	}
}

func TestAnchorsCountRunes(t *testing.T) {
	f := &File{Name: "g.xml", Regions: []Region{{ID: "r", Anchors: []model.Anchor{{Start: 0, End: 3}}}}}
	_, err := Assemble("אבג", []*File{f})
	assert.NoError(t, err)
}

func TestNormalizeAnchors(t *testing.T) {
	tests := []struct {
		name string
		in   []model.Anchor
		want []model.Anchor
	}{
		{"empty", nil, nil},
		{"sorted", []model.Anchor{{Start: 5, End: 6}, {Start: 0, End: 2}}, []model.Anchor{{Start: 0, End: 2}, {Start: 5, End: 6}}},
		{"touching", []model.Anchor{{Start: 0, End: 2}, {Start: 2, End: 4}}, []model.Anchor{{Start: 0, End: 4}}},
		{"overlapping", []model.Anchor{{Start: 0, End: 5}, {Start: 1, End: 3}}, []model.Anchor{{Start: 0, End: 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAnchors(tt.in))
		})
	}
}
