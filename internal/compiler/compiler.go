// Package compiler turns GrAF resources into compiled data items.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/config"
	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/graf"
	"github.com/Dans-labs/laf-fabric/internal/logging"
	"github.com/Dans-labs/laf-fabric/internal/metrics"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/names"
	"github.com/Dans-labs/laf-fabric/internal/storage/datastore"
	"github.com/Dans-labs/laf-fabric/internal/util/workerpool"
)

// SpaceChecker refuses writes that would not fit on disk
type SpaceChecker interface {
	CheckBeforeWrite(estimatedBytes uint64) error
}

// Config holds the collaborators of a compiler
type Config struct {
	Locations config.LocationsConfig
	Pool      *workerpool.WorkerPool
	Space     SpaceChecker
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Stamp     *logging.Stamp
}

// Compiler compiles sources and annotation packages
type Compiler struct {
	loc     config.LocationsConfig
	pool    *workerpool.WorkerPool
	space   SpaceChecker
	metrics *metrics.Metrics
	logger  *zap.Logger
	stamp   *logging.Stamp
}

// Result describes a finished compilation
type Result struct {
	Dir      string
	Manifest *model.Manifest
	Skipped  bool
	Bytes    int64
}

// New creates a compiler
func New(cfg *Config) *Compiler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stamp := cfg.Stamp
	if stamp == nil {
		stamp = logging.NewStamp(logger, logging.Normal)
	}
	return &Compiler{
		loc:     cfg.Locations,
		pool:    cfg.Pool,
		space:   cfg.Space,
		metrics: cfg.Metrics,
		logger:  logger,
		stamp:   stamp,
	}
}

// Compile compiles the main data of a source. It is skipped when the inputs
// have not changed since the last compilation, unless forced.
func (c *Compiler) Compile(ctx context.Context, source string, force bool) (*Result, error) {
	start := time.Now()
	res, err := c.compileMain(ctx, source, force)
	c.metrics.RecordCompile("main", time.Since(start).Seconds(), res != nil && res.Skipped, err)
	if err != nil {
		return nil, compileError(source, err)
	}
	return res, nil
}

// CompileAnnox compiles an annotation package against a compiled source
func (c *Compiler) CompileAnnox(ctx context.Context, source, annox string, force bool) (*Result, error) {
	start := time.Now()
	res, err := c.compileAnnox(ctx, source, annox, force)
	c.metrics.RecordCompile("annox", time.Since(start).Seconds(), res != nil && res.Skipped, err)
	if err != nil {
		return nil, compileError(source+"/"+annox, err)
	}
	return res, nil
}

func compileError(what string, err error) error {
	if fabricerrors.IsFabricError(err) {
		return err
	}
	return fabricerrors.CompileFailed(what, err)
}

func (c *Compiler) compileMain(ctx context.Context, source string, force bool) (*Result, error) {
	dir := c.loc.CompiledDir(source)
	hdr, err := graf.ReadHeader(c.loc.SourceHeader(source))
	if err != nil {
		return nil, err
	}
	inputs, size, err := digestInputs(hdr)
	if err != nil {
		return nil, err
	}
	if res := c.upToDate(dir, inputs, force); res != nil {
		c.stamp.Imsg("COMPILING m: %s: UP TO DATE", source)
		return res, nil
	}

	c.stamp.Imsg("COMPILING m: %s: PARSING ANNOTATIONS", source)
	primary, err := hdr.ReadPrimary()
	if err != nil {
		return nil, err
	}
	files, err := graf.ParseAll(ctx, c.pool, hdr.Dir, hdr.Annotations)
	if err != nil {
		return nil, err
	}
	g, err := graf.Assemble(primary, files)
	if err != nil {
		return nil, err
	}
	c.stamp.Imsg("COMPILING m: %s: %d nodes, %d edges", source, len(g.NodeIDs), len(g.EdgeIDs))

	items := BuildMain(g)
	manifest := &model.Manifest{
		Source:   source,
		Inputs:   inputs,
		Nodes:    len(g.NodeIDs),
		Edges:    len(g.EdgeIDs),
		Features: FeatureInventory(g.NodeFeatures, g.EdgeFeatures),
	}
	return c.store(ctx, dir, names.OriginMain, items, manifest, size)
}

func (c *Compiler) compileAnnox(ctx context.Context, source, annox string, force bool) (*Result, error) {
	mainDir := c.loc.CompiledDir(source)
	mainManifest, err := datastore.ReadManifest(mainDir)
	if err != nil {
		return nil, err
	}

	dir := c.loc.AnnoxCompiledDir(source, annox)
	hdr, err := graf.ReadHeader(c.loc.AnnoxHeader(annox))
	if err != nil {
		return nil, err
	}
	inputs, size, err := digestInputs(hdr)
	if err != nil {
		return nil, err
	}
	for file, dgst := range mainManifest.Inputs {
		inputs[source+"/"+file] = dgst
	}
	if res := c.upToDate(dir, inputs, force); res != nil {
		c.stamp.Imsg("COMPILING a: %s on %s: UP TO DATE", annox, source)
		return res, nil
	}

	c.stamp.Imsg("COMPILING a: %s on %s: PARSING ANNOTATIONS", annox, source)
	files, err := graf.ParseAll(ctx, c.pool, hdr.Dir, hdr.Annotations)
	if err != nil {
		return nil, err
	}

	nm := names.New(map[byte]string{names.OriginMain: mainDir})
	nodes, err := loadValue[map[string]int32](nm, "mXnf()")
	if err != nil {
		return nil, err
	}
	edges, err := loadValue[map[string]int32](nm, "mXef()")
	if err != nil {
		return nil, err
	}
	edgesFrom, err := loadValue[[]int32](nm, "mG00(edges_from)")
	if err != nil {
		return nil, err
	}
	edgesTo, err := loadValue[[]int32](nm, "mG00(edges_to)")
	if err != nil {
		return nil, err
	}

	nodeFeatures, edgeFeatures := make(graf.FeatureValues), make(graf.FeatureValues)
	if _, err := graf.CollectFeatures(files, nodes, edges, nodeFeatures, edgeFeatures); err != nil {
		return nil, err
	}

	items := BuildAnnox(nodeFeatures, edgeFeatures, edgesFrom, edgesTo)
	manifest := &model.Manifest{
		Source:   source,
		Annox:    annox,
		Inputs:   inputs,
		Nodes:    mainManifest.Nodes,
		Edges:    mainManifest.Edges,
		Features: FeatureInventory(nodeFeatures, edgeFeatures),
	}
	return c.store(ctx, dir, names.OriginAnnox, items, manifest, size)
}

func loadValue[T any](nm *names.Names, dkey string) (T, error) {
	var zero T
	info, _, err := nm.Info(dkey)
	if err != nil {
		return zero, err
	}
	item, err := datastore.Load(dkey, info)
	if err != nil {
		return zero, err
	}
	v, ok := item.Value.(T)
	if !ok {
		return zero, fabricerrors.CorruptedData(fmt.Sprintf("%s has unexpected type %T", dkey, item.Value), nil)
	}
	return v, nil
}

// upToDate returns a skip result when dir holds a compilation of the same inputs
func (c *Compiler) upToDate(dir string, inputs map[string]string, force bool) *Result {
	if force {
		return nil
	}
	m, err := datastore.ReadManifest(dir)
	if err != nil || !m.SameInputs(inputs) {
		return nil
	}
	return &Result{Dir: dir, Manifest: m, Skipped: true}
}

// store replaces the contents of dir by the items and the manifest
func (c *Compiler) store(ctx context.Context, dir string, origin byte, items Items, manifest *model.Manifest, inputSize int64) (*Result, error) {
	if c.space != nil {
		// compiled data is typically within twice the size of the XML
		if err := c.space.CheckBeforeWrite(uint64(2 * inputSize)); err != nil {
			return nil, err
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	keys := make([]string, 0, len(items))
	for dkey := range items {
		keys = append(keys, dkey)
	}
	sort.Strings(keys)

	nm := names.New(map[byte]string{origin: dir})
	sizes := make([]int64, len(keys))
	ids := make([]string, len(keys))
	fns := make([]func(context.Context) error, len(keys))
	for i, dkey := range keys {
		info, ok, err := nm.Info(dkey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fabricerrors.InternalError(fmt.Sprintf("data item %s cannot be stored", dkey), nil)
		}
		i, dkey, path := i, dkey, info.Path()
		ids[i] = "write " + dkey
		fns[i] = func(context.Context) error {
			n, err := datastore.Write(path, items[dkey])
			if err != nil {
				return err
			}
			sizes[i] = n
			c.stamp.Dmsg("write %s", names.Msg(dkey))
			return nil
		}
	}
	if err := c.pool.RunAll(ctx, ids, fns); err != nil {
		return nil, err
	}

	var total int64
	for _, n := range sizes {
		total += n
		c.metrics.RecordItemWritten(n)
	}

	manifest.CompiledAt = time.Now().UTC()
	manifest.Items = keys
	if err := datastore.WriteManifest(dir, manifest); err != nil {
		return nil, err
	}

	c.stamp.Imsg("COMPILED %d data items (%d bytes) into %s", len(keys), total, dir)
	c.logger.Info("Compilation finished",
		zap.String("source", manifest.Source),
		zap.String("annox", manifest.Annox),
		zap.Int("items", len(keys)),
		zap.Int64("bytes", total))

	return &Result{Dir: dir, Manifest: manifest, Bytes: total}, nil
}

// digestInputs computes content digests of the header and every file it
// names, together with their total size
func digestInputs(hdr *graf.Header) (map[string]string, int64, error) {
	inputs := make(map[string]string)
	var size int64
	files := append([]string{filepath.Base(hdr.Path)}, hdr.Files()...)
	for _, name := range files {
		path := filepath.Join(hdr.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, fabricerrors.SourceMissing(path, err)
		}
		inputs[name] = digest.FromBytes(data).String()
		size += int64(len(data))
	}
	return inputs, size, nil
}
