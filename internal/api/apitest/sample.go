// Package apitest builds task APIs over the sample source for tests.
package apitest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dans-labs/laf-fabric/internal/api"
	"github.com/Dans-labs/laf-fabric/internal/compiler"
	"github.com/Dans-labs/laf-fabric/internal/graf"
	"github.com/Dans-labs/laf-fabric/internal/graf/graftest"
	"github.com/Dans-labs/laf-fabric/internal/model"
)

// OType is the object type feature of the sample source
var OType = model.FeatureKey{Namespace: "db", Label: "oid", Name: "otype"}

// Rank orders the object types of the sample source from large to small
var Rank = []string{"book", "verse", "clause", "phrase", "word"}

// Items compiles the sample source in memory, with its annotation package
// when withAnnox is set
func Items(t testing.TB, withAnnox bool) map[string]interface{} {
	t.Helper()
	dir := t.TempDir()
	hdr, err := graf.ReadHeader(graftest.WriteSource(t, dir))
	require.NoError(t, err)
	primary, err := hdr.ReadPrimary()
	require.NoError(t, err)

	g, err := graf.Assemble(primary, parse(t, hdr))
	require.NoError(t, err)

	items := map[string]interface{}(compiler.BuildMain(g))
	if withAnnox {
		ahdr, err := graf.ReadHeader(graftest.WriteAnnox(t, dir))
		require.NoError(t, err)
		nf, ef := make(graf.FeatureValues), make(graf.FeatureValues)
		_, err = graf.CollectFeatures(parse(t, ahdr), g.NodeIndex, g.EdgeIndex, nf, ef)
		require.NoError(t, err)
		for k, v := range compiler.BuildAnnox(nf, ef, g.EdgeFrom, g.EdgeTo) {
			items[k] = v
		}
	}
	return items
}

// New builds an API over the sample items
func New(t testing.TB, withAnnox bool) *api.API {
	t.Helper()
	annox := ""
	if withAnnox {
		annox = graftest.Annox
	}
	return api.New(graftest.Source, annox, Items(t, withAnnox), OType)
}

func parse(t testing.TB, h *graf.Header) []*graf.File {
	var files []*graf.File
	for _, name := range h.Annotations {
		f, err := graf.ParseFile(filepath.Join(h.Dir, name))
		require.NoError(t, err)
		files = append(files, f)
	}
	return files
}
