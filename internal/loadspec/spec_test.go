package loadspec

import (
	"testing"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeatures(t *testing.T) {
	refs, err := ParseFeatures("db:otype ft:text,suffix sft:book.name")
	require.NoError(t, err)
	assert.Equal(t, []FeatureRef{
		{Namespace: "db", Name: "otype", AnyLabel: true},
		{Namespace: "ft", Name: "text", AnyLabel: true},
		{Namespace: "ft", Name: "suffix", AnyLabel: true},
		{Namespace: "sft", Label: "book", Name: "name"},
	}, refs)

	refs, err = ParseFeatures("   ")
	require.NoError(t, err)
	assert.Empty(t, refs)

	for _, bad := range []string{"otype", ":otype", "ft:text,", "ft:word."} {
		_, err := ParseFeatures(bad)
		assert.Error(t, err, bad)
	}
}

func TestFeatureRefMatches(t *testing.T) {
	key := model.FeatureKey{Namespace: "ft", Label: "word", Name: "text"}

	assert.True(t, FeatureRef{Namespace: "ft", Name: "text", AnyLabel: true}.Matches(key))
	assert.True(t, FeatureRef{Namespace: "ft", Label: "word", Name: "text"}.Matches(key))
	assert.False(t, FeatureRef{Namespace: "ft", Label: "", Name: "text"}.Matches(key))
	assert.False(t, FeatureRef{Namespace: "db", Name: "text", AnyLabel: true}.Matches(key))
}

func testManifest() *model.Manifest {
	return &model.Manifest{Features: []model.FeatureInfo{
		{Key: model.FeatureKey{Namespace: "db", Label: "word", Name: "otype"}, Kind: model.KindNode},
		{Key: model.FeatureKey{Namespace: "db", Label: "phrase", Name: "otype"}, Kind: model.KindNode},
		{Key: model.FeatureKey{Namespace: "ft", Label: "word", Name: "text"}, Kind: model.KindNode},
		{Key: model.EdgeAnnotated, Kind: model.KindEdge},
		{Key: model.FeatureKey{Namespace: "syn", Label: "dep", Name: "rel"}, Kind: model.KindEdge},
	}}
}

func TestResolve(t *testing.T) {
	spec := &Spec{
		NodeFeatures: MustParseFeatures("db:otype ft:word.text"),
		EdgeFeatures: MustParseFeatures("laf:.y"),
	}
	annox := &model.Manifest{Features: []model.FeatureInfo{
		{Key: model.FeatureKey{Namespace: "px", Label: "word", Name: "gloss"}, Kind: model.KindNode},
	}}
	spec.NodeFeatures = append(spec.NodeFeatures, MustParseFeatures("px:gloss")...)

	res, err := spec.Resolve(testManifest(), annox)
	require.NoError(t, err)
	assert.Equal(t, []model.FeatureKey{
		{Namespace: "db", Label: "phrase", Name: "otype"},
		{Namespace: "db", Label: "word", Name: "otype"},
		{Namespace: "ft", Label: "word", Name: "text"},
		{Namespace: "px", Label: "word", Name: "gloss"},
	}, res.NodeFeatures)
	assert.Equal(t, []model.FeatureKey{model.EdgeAnnotated}, res.EdgeFeatures)
}

func TestResolveUnknown(t *testing.T) {
	spec := &Spec{
		NodeFeatures: MustParseFeatures("db:nope ft:text"),
		EdgeFeatures: MustParseFeatures("syn:other.rel"),
	}
	var nilManifest *model.Manifest

	_, err := spec.Resolve(testManifest(), nilManifest)
	require.Error(t, err)
	assert.Equal(t, fabricerrors.ErrCodeUnknownFeature, fabricerrors.GetCode(err))
	assert.Contains(t, err.Error(), "db:nope")
	assert.Contains(t, err.Error(), "syn:other.rel")
	assert.NotContains(t, err.Error(), "ft:text")
}
