package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/api"
	"github.com/Dans-labs/laf-fabric/internal/api/apitest"
	"github.com/Dans-labs/laf-fabric/internal/compiler"
	"github.com/Dans-labs/laf-fabric/internal/config"
	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/graf/graftest"
	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/logging"
	"github.com/Dans-labs/laf-fabric/internal/metrics"
	"github.com/Dans-labs/laf-fabric/internal/prepare"
	"github.com/Dans-labs/laf-fabric/internal/storage/datastore"
	"github.com/Dans-labs/laf-fabric/internal/util/workerpool"
)

type loaderFixture struct {
	cfg     *config.Config
	loader  *LoaderService
	cache   *CacheService
	comp    *compiler.Compiler
	metrics *metrics.Metrics
}

func newLoaderFixture(t *testing.T, compile bool) *loaderFixture {
	t.Helper()
	cfg := config.Default(filepath.Join(t.TempDir(), "laf"), filepath.Join(t.TempDir(), "work"))
	graftest.WriteSource(t, cfg.Locations.LafDir)
	graftest.WriteAnnox(t, cfg.Locations.LafDir)

	pool := workerpool.NewWorkerPool(&workerpool.Config{Name: "load", MaxWorkers: 2})
	t.Cleanup(func() { pool.Stop(time.Second) })

	logger := zap.NewNop()
	stamp := logging.NewStamp(logger, logging.Silent)
	m := metrics.NewMetrics()

	comp := compiler.New(&compiler.Config{
		Locations: cfg.Locations,
		Pool:      pool,
		Metrics:   m,
		Logger:    logger,
		Stamp:     stamp,
	})
	if compile {
		_, err := comp.Compile(context.Background(), graftest.Source, false)
		require.NoError(t, err)
		_, err = comp.CompileAnnox(context.Background(), graftest.Source, graftest.Annox, false)
		require.NoError(t, err)
	}

	cache := NewCacheService(&CacheConfig{MaxSize: 1 << 20, FrequencyWeight: 0.5, RecencyWeight: 0.5}, m, logger)
	loader := NewLoaderService(&LoaderConfig{
		Locations:    cfg.Locations,
		OTypeFeature: "db:otype",
		Pool:         pool,
		Cache:        cache,
		Preparers:    prepare.NewRegistry(prepare.NewEtcbcSort(apitest.Rank)),
		Metrics:      m,
		Logger:       logger,
		Stamp:        stamp,
	})
	return &loaderFixture{cfg: cfg, loader: loader, cache: cache, comp: comp, metrics: m}
}

func featureSpec(node, edge string) *loadspec.Spec {
	s := &loadspec.Spec{}
	if node != "" {
		s.NodeFeatures = loadspec.MustParseFeatures(node)
	}
	if edge != "" {
		s.EdgeFeatures = loadspec.MustParseFeatures(edge)
	}
	return s
}

func TestLoadIncremental(t *testing.T) {
	f := newLoaderFixture(t, true)
	ctx := context.Background()

	res, err := f.loader.Load(ctx, graftest.Source, "", featureSpec("ft:word.text", ""))
	require.NoError(t, err)
	assert.Contains(t, res.Plan.Load, "mFn0(ft,word,text)")
	assert.Contains(t, res.Plan.Load, "mFn0(db,oid,otype)")
	assert.Contains(t, res.Plan.Load, "mG00(node_sort)")
	assert.Empty(t, res.Plan.Clear)

	text, err := res.API.F("ft:word.text")
	require.NoError(t, err)
	assert.Equal(t, "alpha", text.V(graftest.W1))

	l, err := res.API.L()
	require.NoError(t, err)
	assert.Equal(t, "word", l.Type(graftest.W3))

	res, err = f.loader.Load(ctx, graftest.Source, config.NoAnnox, featureSpec("ft:word.text", ""))
	require.NoError(t, err)
	assert.Empty(t, res.Plan.Load)
	assert.Empty(t, res.Plan.Clear)
	assert.Len(t, res.Plan.Keep, f.loader.ItemCount())

	source, annox := f.loader.Current()
	assert.Equal(t, graftest.Source, source)
	assert.Equal(t, "", annox)
}

func TestLoadSwitchUsesCache(t *testing.T) {
	f := newLoaderFixture(t, true)
	ctx := context.Background()

	_, err := f.loader.Load(ctx, graftest.Source, "", featureSpec("ft:word.text", ""))
	require.NoError(t, err)

	res, err := f.loader.Load(ctx, graftest.Source, "", featureSpec("ft:word.suffix", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"mFn0(ft,word,text)"}, res.Plan.Clear)
	assert.Equal(t, []string{"mFn0(ft,word,suffix)"}, res.Plan.Load)
	assert.Equal(t, 1, f.cache.Stats().EntryCount)

	_, err = res.API.F("ft:word.text")
	assert.Equal(t, fabricerrors.ErrCodeNotLoaded, fabricerrors.GetCode(err))

	res, err = f.loader.Load(ctx, graftest.Source, "", featureSpec("ft:word.text", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CacheHit)
	text, err := res.API.F("ft:word.text")
	require.NoError(t, err)
	assert.Equal(t, "gamma", text.V(graftest.W3))
}

func TestLoadAnnox(t *testing.T) {
	f := newLoaderFixture(t, true)

	res, err := f.loader.Load(context.Background(), graftest.Source, graftest.Annox,
		featureSpec("ft:word.text px:note.comment", "px:rel.kind"))
	require.NoError(t, err)
	assert.Contains(t, res.Plan.Load, "aFn0(ft,word,text)")
	assert.Contains(t, res.Plan.Load, "aFn0(px,note,comment)")
	assert.NotContains(t, res.Plan.Load, "mFn0(px,note,comment)")

	text, err := res.API.F("ft:word.text")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", text.V(graftest.W1))
	assert.Equal(t, "beta", text.V(graftest.W2))

	comment, err := res.API.F("px_note_comment")
	require.NoError(t, err)
	assert.Equal(t, "second word", comment.V(graftest.W2))

	kind, err := res.API.C("px:rel.kind")
	require.NoError(t, err)
	require.Len(t, kind.V(graftest.W2), 1)
	assert.Equal(t, graftest.W3, kind.V(graftest.W2)[0].Node)
	assert.Equal(t, "next", kind.V(graftest.W2)[0].Value)
}

func TestLoadXMLIDsAndPrimary(t *testing.T) {
	f := newLoaderFixture(t, true)
	spec := featureSpec("", "")
	spec.XMLIDs = loadspec.XMLIDs{Node: true}
	spec.Primary = true

	res, err := f.loader.Load(context.Background(), graftest.Source, "", spec)
	require.NoError(t, err)

	x, err := res.API.X("node")
	require.NoError(t, err)
	n, ok := x.I("w2")
	require.True(t, ok)
	assert.Equal(t, graftest.W2, n)

	p, err := res.API.P()
	require.NoError(t, err)
	assert.Equal(t, "beta", p.Text(graftest.W2))
}

func TestLoadErrors(t *testing.T) {
	f := newLoaderFixture(t, true)
	ctx := context.Background()

	_, err := f.loader.Load(ctx, graftest.Source, "", featureSpec("ft:nonexistent", ""))
	assert.Equal(t, fabricerrors.ErrCodeUnknownFeature, fabricerrors.GetCode(err))

	spec := featureSpec("ft:word.text", "")
	spec.Prepare = []string{"no-such-preparer"}
	_, err = f.loader.Load(ctx, graftest.Source, "", spec)
	assert.Equal(t, fabricerrors.ErrCodeInvalidArgument, fabricerrors.GetCode(err))

	_, err = f.loader.Load(ctx, "absent", "", featureSpec("ft:word.text", ""))
	assert.Equal(t, fabricerrors.ErrCodeNotCompiled, fabricerrors.GetCode(err))

	fresh := newLoaderFixture(t, false)
	_, err = fresh.loader.Load(ctx, graftest.Source, "", featureSpec("ft:word.text", ""))
	assert.Equal(t, fabricerrors.ErrCodeNotCompiled, fabricerrors.GetCode(err))
}

func TestLoadPrepared(t *testing.T) {
	f := newLoaderFixture(t, true)
	ctx := context.Background()
	spec := featureSpec("ft:word.text", "")
	spec.Prepare = []string{prepare.EtcbcSortName}

	res, err := f.loader.Load(ctx, graftest.Source, "", spec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{api.KeyPrepSort, api.KeyPrepSortInv}, res.Prepared)

	order, err := res.API.NodeOrder()
	require.NoError(t, err)
	assert.Equal(t, []int32{9, 5, 8, 0, 1, 2, 7, 6, 3, 4}, order)

	dir := f.cfg.Locations.PreparedDir(graftest.Source)
	m, err := datastore.ReadManifest(dir)
	require.NoError(t, err)
	assert.Contains(t, m.Inputs, prepare.EtcbcSortName)
	_, err = os.Stat(filepath.Join(dir, "G00(node_sort)"))
	require.NoError(t, err)

	// the same request keeps the prepared items
	res, err = f.loader.Load(ctx, graftest.Source, "", spec)
	require.NoError(t, err)
	assert.Empty(t, res.Prepared)
	assert.Contains(t, res.Plan.Keep, api.KeyPrepSort)

	// a new loader finds them on disk
	other := newLoaderFixture(t, false)
	other.loader.cfg.Locations = f.cfg.Locations
	res, err = other.loader.Load(ctx, graftest.Source, "", spec)
	require.NoError(t, err)
	assert.Len(t, res.Prepared, 2)
	order, err = res.API.NodeOrder()
	require.NoError(t, err)
	assert.Equal(t, []int32{9, 5, 8, 0, 1, 2, 7, 6, 3, 4}, order)

	// recompiling invalidates them
	_, err = f.comp.Compile(ctx, graftest.Source, true)
	require.NoError(t, err)
	recompiled, err := datastore.ReadManifest(f.cfg.Locations.CompiledDir(graftest.Source))
	require.NoError(t, err)
	assert.NotEqual(t, m.Inputs[prepare.EtcbcSortName],
		preparerFingerprint(prepare.NewEtcbcSort(apitest.Rank), recompiled))
}

// flakySort fails its first computation
type flakySort struct {
	*prepare.EtcbcSort
	failures int
}

func (p *flakySort) Name() string { return "flaky-sort" }

func (p *flakySort) Compute(a *api.API) (map[string]interface{}, error) {
	if p.failures > 0 {
		p.failures--
		return nil, assert.AnError
	}
	return p.EtcbcSort.Compute(a)
}

func TestLoadRetryAfterFailedPreparer(t *testing.T) {
	f := newLoaderFixture(t, true)
	ctx := context.Background()
	f.loader.cfg.Preparers.Register(&flakySort{EtcbcSort: prepare.NewEtcbcSort(apitest.Rank), failures: 1})
	spec := featureSpec("ft:word.text", "")
	spec.Prepare = []string{"flaky-sort"}

	_, err := f.loader.Load(ctx, graftest.Source, "", spec)
	assert.Equal(t, fabricerrors.ErrCodePrepareFailed, fabricerrors.GetCode(err))
	assert.Equal(t, 0, f.loader.ItemCount())
	assert.Empty(t, f.loader.Loaded())

	res, err := f.loader.Load(ctx, graftest.Source, "", spec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{api.KeyPrepSort, api.KeyPrepSortInv}, res.Prepared)
	assert.NotContains(t, res.Plan.Keep, api.KeyPrepSort)
	assert.Positive(t, res.CacheHit)

	order, err := res.API.NodeOrder()
	require.NoError(t, err)
	assert.Equal(t, []int32{9, 5, 8, 0, 1, 2, 7, 6, 3, 4}, order)
}

func TestLoadAfterRecompile(t *testing.T) {
	f := newLoaderFixture(t, true)
	ctx := context.Background()
	spec := featureSpec("ft:word.text", "")

	_, err := f.loader.Load(ctx, graftest.Source, "", spec)
	require.NoError(t, err)

	_, err = f.comp.Compile(ctx, graftest.Source, true)
	require.NoError(t, err)

	res, err := f.loader.Load(ctx, graftest.Source, "", spec)
	require.NoError(t, err)
	assert.Empty(t, res.Plan.Keep)
	assert.Contains(t, res.Plan.Clear, "mFn0(ft,word,text)")
	assert.Contains(t, res.Plan.Load, "mFn0(ft,word,text)")
	assert.Equal(t, 0, res.CacheHit)

	text, err := res.API.F("ft:word.text")
	require.NoError(t, err)
	assert.Equal(t, "alpha", text.V(graftest.W1))
}
