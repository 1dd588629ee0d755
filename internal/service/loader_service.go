package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/api"
	"github.com/Dans-labs/laf-fabric/internal/config"
	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/logging"
	"github.com/Dans-labs/laf-fabric/internal/metrics"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/names"
	"github.com/Dans-labs/laf-fabric/internal/prepare"
	"github.com/Dans-labs/laf-fabric/internal/storage/datastore"
	"github.com/Dans-labs/laf-fabric/internal/util/workerpool"
)

// Fingerprinter is implemented by preparers whose output depends on
// settings, so that stored results computed with other settings are not reused
type Fingerprinter interface {
	Fingerprint() string
}

// LoaderConfig holds the collaborators of the loader
type LoaderConfig struct {
	Locations    config.LocationsConfig
	OTypeFeature string
	Pool         *workerpool.WorkerPool
	Cache        *CacheService
	Preparers    *prepare.Registry
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	Stamp        *logging.Stamp
}

// LoaderService holds the data items of the current request. Each Load
// works out the difference with the previous request: items no longer
// needed go to the cache, items still needed stay, and only new items are
// read.
type LoaderService struct {
	cfg    *LoaderConfig
	logger *zap.Logger
	stamp  *logging.Stamp

	mu     sync.Mutex
	names  *names.Names
	items  map[string]*datastore.Item
	keys   map[string]string
	source string
	annox  string
}

// LoadResult tells what a Load did
type LoadResult struct {
	API      *api.API
	Plan     names.Plan
	Prepared []string
	CacheHit int
}

// NewLoaderService creates a loader
func NewLoaderService(cfg *LoaderConfig) *LoaderService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stamp := cfg.Stamp
	if stamp == nil {
		stamp = logging.NewStamp(logger, logging.Normal)
	}
	if cfg.Preparers == nil {
		cfg.Preparers = prepare.NewRegistry()
	}
	return &LoaderService{
		cfg:    cfg,
		logger: logger,
		stamp:  stamp,
		names:  names.New(nil),
		items:  make(map[string]*datastore.Item),
		keys:   make(map[string]string),
	}
}

func (l *LoaderService) dirs(source, annox string) map[byte]string {
	d := map[byte]string{
		names.OriginMain:     l.cfg.Locations.CompiledDir(source),
		names.OriginPrepared: l.cfg.Locations.PreparedDir(source),
	}
	if annox != "" {
		d[names.OriginAnnox] = l.cfg.Locations.AnnoxCompiledDir(source, annox)
	}
	return d
}

// Load makes the data asked for by spec available and returns the task API
func (l *LoaderService) Load(ctx context.Context, source, annox string, spec *loadspec.Spec) (*LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	if annox == config.NoAnnox {
		annox = ""
	}
	dirs := l.dirs(source, annox)

	mainManifest, err := datastore.ReadManifest(dirs[names.OriginMain])
	if err != nil {
		return nil, err
	}
	var annoxManifest *model.Manifest
	if annox != "" {
		if annoxManifest, err = datastore.ReadManifest(dirs[names.OriginAnnox]); err != nil {
			return nil, err
		}
	}

	resolved, err := spec.Resolve(mainManifest, annoxManifest)
	if err != nil {
		return nil, err
	}
	otype := l.resolveOType(mainManifest, annoxManifest)
	if otype != nil {
		resolved.NodeFeatures = appendKey(resolved.NodeFeatures, *otype)
	}

	preparers := make([]prepare.Preparer, 0, len(spec.Prepare))
	for _, name := range spec.Prepare {
		p, err := l.cfg.Preparers.Lookup(name)
		if err != nil {
			return nil, err
		}
		preparers = append(preparers, p)
	}

	table := l.buildRequest(spec, resolved, mainManifest, annoxManifest, preparers)

	l.names.SetDirs(dirs)
	l.names.SetVersions(versions(mainManifest, annoxManifest))
	plan, err := l.names.RequestFiles(table)
	if err != nil {
		l.reset()
		return nil, err
	}
	l.source, l.annox = source, annox

	l.stamp.Imsg("LOADING API: please wait ... ")
	for _, dkey := range plan.Clear {
		l.clear(dkey)
	}
	if len(plan.Clear) > 0 && l.cfg.Cache != nil {
		l.cfg.Cache.AdjustWeights()
	}
	hits, err := l.loadItems(ctx, plan.Load)
	if err != nil {
		// forget the request so that the next Load starts afresh
		l.reset()
		return nil, err
	}
	prepared, err := l.prepare(preparers, plan, mainManifest)
	if err != nil {
		l.reset()
		return nil, err
	}

	otypeKey := model.FeatureKey{}
	if otype != nil {
		otypeKey = *otype
	}
	values := make(map[string]interface{}, len(l.items))
	for dkey, it := range l.items {
		values[dkey] = it.Value
	}
	a := api.New(source, annox, values, otypeKey)

	l.cfg.Metrics.RecordLoad(time.Since(start).Seconds(), len(plan.Load), len(plan.Keep), len(plan.Clear), len(prepared), len(l.items))
	l.stamp.Imsg("LOADED %d, KEPT %d, CLEARED %d, PREPARED %d data items",
		len(plan.Load), len(plan.Keep), len(plan.Clear), len(prepared))
	l.logger.Info("Load finished",
		zap.String("source", source),
		zap.String("annox", annox),
		zap.Int("loaded", len(plan.Load)),
		zap.Int("kept", len(plan.Keep)),
		zap.Int("cleared", len(plan.Clear)),
		zap.Int("cache_hits", hits),
		zap.Duration("duration", time.Since(start)))

	return &LoadResult{API: a, Plan: plan, Prepared: prepared, CacheHit: hits}, nil
}

// resolveOType finds the object type feature in the compiled inventories
func (l *LoaderService) resolveOType(inventories ...*model.Manifest) *model.FeatureKey {
	if l.cfg.OTypeFeature == "" {
		return nil
	}
	refs, err := loadspec.ParseFeatures(l.cfg.OTypeFeature)
	if err != nil || len(refs) != 1 {
		l.logger.Warn("Invalid object type feature", zap.String("feature", l.cfg.OTypeFeature))
		return nil
	}
	for _, inv := range inventories {
		for _, k := range inv.FeaturesOf(model.KindNode) {
			if refs[0].Matches(k) {
				return &k
			}
		}
	}
	return nil
}

func appendKey(keys []model.FeatureKey, k model.FeatureKey) []model.FeatureKey {
	for _, have := range keys {
		if have == k {
			return keys
		}
	}
	return append(keys, k)
}

func (l *LoaderService) buildRequest(spec *loadspec.Spec, resolved *loadspec.Resolved, main, annox *model.Manifest, preparers []prepare.Preparer) names.RequestTable {
	table := l.names.RequestInit()
	add := func(prefix string, comps []string) {
		cond := table[prefix]
		cond.Mode = names.CondList
		cond.Add(comps)
		table[prefix] = cond
	}

	if spec.XMLIDs.Node {
		add("mXnf", []string{})
		add("mXnb", []string{})
	}
	if spec.XMLIDs.Edge {
		add("mXef", []string{})
		add("mXeb", []string{})
	}
	if spec.Primary {
		table["mP00"] = names.On()
	}

	for _, k := range resolved.NodeFeatures {
		if main.HasFeature(model.KindNode, k) {
			add("mFn0", k.Comps())
		}
		if annox != nil && annox.HasFeature(model.KindNode, k) {
			add("aFn0", k.Comps())
		}
	}
	for _, k := range resolved.EdgeFeatures {
		if main.HasFeature(model.KindEdge, k) {
			add("mFe0", k.Comps())
			add("mC0f", k.Comps())
			add("mC0b", k.Comps())
		}
		if annox != nil && annox.HasFeature(model.KindEdge, k) {
			add("aFe0", k.Comps())
			add("aC0f", k.Comps())
			add("aC0b", k.Comps())
		}
	}

	for _, p := range preparers {
		for _, dkey := range p.Keys() {
			prefix, _ := names.Decomp(dkey)
			table[prefix] = names.On()
		}
	}
	return table
}

// clear moves an item out of memory into the cache
func (l *LoaderService) clear(dkey string) {
	it, ok := l.items[dkey]
	if !ok {
		return
	}
	if key := l.keys[dkey]; key != "" && l.cfg.Cache != nil {
		l.cfg.Cache.Put(key, it)
	}
	delete(l.items, dkey)
	delete(l.keys, dkey)
	l.stamp.Dmsg("clear %s", names.Msg(dkey))
}

// loadItems reads items from the cache or from disk, the latter in parallel
func (l *LoaderService) loadItems(ctx context.Context, keys []string) (int, error) {
	hits := 0
	var (
		toRead []string
		infos  []names.Info
	)
	for _, dkey := range keys {
		info, _ := l.names.RequestedInfo(dkey)
		if l.cfg.Cache != nil {
			if it, ok := l.cfg.Cache.Get(info.CacheKey()); ok {
				l.cfg.Cache.Remove(info.CacheKey())
				l.items[dkey] = it
				l.keys[dkey] = info.CacheKey()
				hits++
				l.stamp.Dmsg("from cache %s", names.Msg(dkey))
				continue
			}
		}
		toRead = append(toRead, dkey)
		infos = append(infos, info)
	}
	if len(toRead) == 0 {
		return hits, nil
	}

	results := make([]*datastore.Item, len(toRead))
	ids := make([]string, len(toRead))
	fns := make([]func(context.Context) error, len(toRead))
	for i := range toRead {
		i := i
		ids[i] = "load " + toRead[i]
		fns[i] = func(context.Context) error {
			it, err := datastore.Load(toRead[i], infos[i])
			if err != nil {
				return err
			}
			results[i] = it
			return nil
		}
	}
	if err := l.cfg.Pool.RunAll(ctx, ids, fns); err != nil {
		return hits, err
	}

	for i, dkey := range toRead {
		l.items[dkey] = results[i]
		l.keys[dkey] = infos[i].CacheKey()
		l.cfg.Metrics.RecordBytesRead(results[i].Size)
		l.stamp.Dmsg("load %s", names.Msg(dkey))
	}
	return hits, nil
}

// reset drops the current request. Held items go to the cache.
func (l *LoaderService) reset() {
	for dkey := range l.items {
		l.clear(dkey)
	}
	l.names = names.New(nil)
	l.items = make(map[string]*datastore.Item)
	l.keys = make(map[string]string)
}

// versions ties the items of each origin to the compilation they come from.
// Prepared items derive from the main data.
func versions(main, annox *model.Manifest) map[byte]string {
	v := map[byte]string{
		names.OriginMain:     manifestVersion(main),
		names.OriginPrepared: manifestVersion(main),
	}
	if annox != nil {
		v[names.OriginAnnox] = manifestVersion(annox)
	}
	return v
}

func manifestVersion(m *model.Manifest) string {
	return m.CompiledAt.UTC().Format(time.RFC3339Nano)
}

// prepare runs the preparers whose items are not held already. Results are
// stored in the prepared directory and reused while the main data and the
// preparer settings stay the same.
func (l *LoaderService) prepare(preparers []prepare.Preparer, plan names.Plan, main *model.Manifest) ([]string, error) {
	kept := make(map[string]bool, len(plan.Keep))
	for _, k := range plan.Keep {
		kept[k] = true
	}

	var done []string
	for _, p := range preparers {
		missing := false
		for _, dkey := range p.Keys() {
			if !kept[dkey] {
				missing = true
			}
		}
		if !missing {
			continue
		}

		fingerprint := preparerFingerprint(p, main)
		if l.loadPrepared(p, fingerprint) {
			done = append(done, p.Keys()...)
			continue
		}

		l.stamp.Imsg("PREPARING %s", p.Name())
		values := make(map[string]interface{}, len(l.items))
		for dkey, it := range l.items {
			values[dkey] = it.Value
		}
		otype := l.resolveOType(main)
		key := model.FeatureKey{}
		if otype != nil {
			key = *otype
		}
		computed, err := prepare.Run(p, api.New(l.source, l.annox, values, key))
		if err != nil {
			return nil, err
		}
		if err := l.storePrepared(p, fingerprint, computed); err != nil {
			l.logger.Warn("Could not store prepared data", zap.String("preparer", p.Name()), zap.Error(err))
		}
		for _, dkey := range p.Keys() {
			dtype, _ := names.TypeOf(dkey)
			l.items[dkey] = &datastore.Item{Key: dkey, Type: dtype, Value: computed[dkey]}
			info, _ := l.names.RequestedInfo(dkey)
			l.keys[dkey] = info.CacheKey()
		}
		done = append(done, p.Keys()...)
	}
	return done, nil
}

func preparerFingerprint(p prepare.Preparer, main *model.Manifest) string {
	s := p.Name() + "|" + manifestVersion(main)
	if f, ok := p.(Fingerprinter); ok {
		s += "|" + f.Fingerprint()
	}
	return digest.FromString(s).String()
}

func (l *LoaderService) loadPrepared(p prepare.Preparer, fingerprint string) bool {
	dir := l.cfg.Locations.PreparedDir(l.source)
	m, err := datastore.ReadManifest(dir)
	if err != nil || m.Inputs[p.Name()] != fingerprint {
		return false
	}
	loaded := make(map[string]*datastore.Item, len(p.Keys()))
	for _, dkey := range p.Keys() {
		info, ok := l.names.RequestedInfo(dkey)
		if !ok {
			return false
		}
		it, err := datastore.Load(dkey, info)
		if err != nil {
			l.logger.Debug("Stored prepared data unusable", zap.String("key", dkey), zap.Error(err))
			return false
		}
		loaded[dkey] = it
	}
	for dkey, it := range loaded {
		info, _ := l.names.RequestedInfo(dkey)
		l.items[dkey] = it
		l.keys[dkey] = info.CacheKey()
		l.cfg.Metrics.RecordBytesRead(it.Size)
	}
	l.stamp.Dmsg("prepared data of %s loaded from disk", p.Name())
	return true
}

func (l *LoaderService) storePrepared(p prepare.Preparer, fingerprint string, computed map[string]interface{}) error {
	dir := l.cfg.Locations.PreparedDir(l.source)
	for _, dkey := range p.Keys() {
		info, ok := l.names.RequestedInfo(dkey)
		if !ok {
			return fmt.Errorf("prepared item %s was not requested", dkey)
		}
		if _, err := datastore.Write(info.Path(), computed[dkey]); err != nil {
			return err
		}
	}

	m, err := datastore.ReadManifest(dir)
	if err != nil {
		m = &model.Manifest{Source: l.source, Inputs: make(map[string]string)}
	}
	if m.Inputs == nil {
		m.Inputs = make(map[string]string)
	}
	m.Inputs[p.Name()] = fingerprint
	m.CompiledAt = time.Now().UTC()
	for _, dkey := range p.Keys() {
		m.Items = appendString(m.Items, dkey)
	}
	return datastore.WriteManifest(dir, m)
}

func appendString(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}

// Loaded lists the keys of the items held now
func (l *LoaderService) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.names.Requested()
}

// ItemCount is the number of items held now
func (l *LoaderService) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// LoadedBytes is the encoded size of the items held now
func (l *LoaderService) LoadedBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, it := range l.items {
		n += it.Size
	}
	return n
}

// Current returns the source and annox of the last request
func (l *LoaderService) Current() (string, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.source, l.annox
}
