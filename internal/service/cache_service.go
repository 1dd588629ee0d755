package service

import (
	"sync"
	"time"

	"github.com/Dans-labs/laf-fabric/internal/metrics"
	"github.com/Dans-labs/laf-fabric/internal/storage/datastore"
	"go.uber.org/zap"
)

// entryOverhead approximates the bookkeeping cost of one cache entry
const entryOverhead = 64

type cacheEntry struct {
	item        *datastore.Item
	size        int64
	accessCount int64
	lastAccess  time.Time
	score       float64
}

// CacheService keeps data items that were cleared from the loader, so that
// a later request for them avoids the disk. Eviction is adaptive LRU/LFU.
type CacheService struct {
	config          *CacheConfig
	cache           map[string]*cacheEntry
	logger          *zap.Logger
	metrics         *metrics.Metrics
	mu              sync.RWMutex
	currentSize     int64
	hits            int64
	misses          int64
	frequencyWeight float64
	recencyWeight   float64
	now             func() time.Time
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	MaxSize         int64
	FrequencyWeight float64
	RecencyWeight   float64
	AdaptiveWindow  time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(cfg *CacheConfig, m *metrics.Metrics, logger *zap.Logger) *CacheService {
	return &CacheService{
		config:          cfg,
		cache:           make(map[string]*cacheEntry),
		logger:          logger,
		metrics:         m,
		frequencyWeight: cfg.FrequencyWeight,
		recencyWeight:   cfg.RecencyWeight,
		now:             time.Now,
	}
}

func entrySize(item *datastore.Item) int64 {
	return int64(len(item.Key)) + item.Size + entryOverhead
}

// Get retrieves an item. Items are keyed by data key together with the file
// they were read from, so that items of another source never match.
func (s *CacheService) Get(key string) (*datastore.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.cache[key]
	if !found {
		s.misses++
		s.metrics.RecordCacheMiss()
		return nil, false
	}

	entry.accessCount++
	entry.lastAccess = s.now()
	entry.score = s.calculateScore(entry)
	s.hits++
	s.metrics.RecordCacheHit()

	return entry.item, true
}

// Put adds or replaces an item. Items larger than the whole cache are not kept.
func (s *CacheService) Put(key string, item *datastore.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := entrySize(item)
	if size > s.config.MaxSize {
		s.logger.Debug("Item too large for cache",
			zap.String("key", key),
			zap.Int64("size", size))
		return
	}

	if existing, found := s.cache[key]; found {
		s.currentSize -= existing.size
		existing.item = item
		existing.size = size
		existing.accessCount++
		existing.lastAccess = s.now()
		existing.score = s.calculateScore(existing)
		s.currentSize += size
		s.updateMetrics()
		return
	}

	for s.currentSize+size > s.config.MaxSize && len(s.cache) > 0 {
		s.evictLowestScore()
	}

	entry := &cacheEntry{
		item:        item,
		size:        size,
		accessCount: 1,
		lastAccess:  s.now(),
	}
	entry.score = s.calculateScore(entry)

	s.cache[key] = entry
	s.currentSize += size
	s.updateMetrics()
}

// Remove removes a key from cache
func (s *CacheService) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, found := s.cache[key]; found {
		delete(s.cache, key)
		s.currentSize -= entry.size
		s.updateMetrics()
	}
}

// calculateScore computes adaptive score for eviction
func (s *CacheService) calculateScore(entry *cacheEntry) float64 {
	frequencyScore := float64(entry.accessCount)
	recencyScore := s.now().Sub(entry.lastAccess).Seconds()

	// higher is better
	return s.frequencyWeight*frequencyScore - s.recencyWeight*recencyScore
}

// evictLowestScore evicts the entry with lowest score; the lock must be held
func (s *CacheService) evictLowestScore() {
	var (
		lowestKey   string
		lowestScore float64
		first       = true
	)
	for key, entry := range s.cache {
		score := s.calculateScore(entry)
		if first || score < lowestScore || (score == lowestScore && key < lowestKey) {
			lowestScore, lowestKey, first = score, key, false
		}
	}
	if first {
		return
	}

	entry := s.cache[lowestKey]
	delete(s.cache, lowestKey)
	s.currentSize -= entry.size
	s.metrics.RecordCacheEviction()

	s.logger.Debug("Evicted cache entry",
		zap.String("key", lowestKey),
		zap.Float64("score", lowestScore))
}

func (s *CacheService) updateMetrics() {
	s.metrics.UpdateCacheSize(s.currentSize, int64(len(s.cache)))
}

// AdjustWeights adjusts frequency and recency weights based on workload
func (s *CacheService) AdjustWeights() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totalAccesses int64
	var recentAccesses int64
	recentThreshold := s.now().Add(-s.config.AdaptiveWindow)

	for _, entry := range s.cache {
		totalAccesses += entry.accessCount
		if entry.lastAccess.After(recentThreshold) {
			recentAccesses++
		}
	}

	if totalAccesses == 0 {
		return
	}

	hotnessRatio := float64(recentAccesses) / float64(len(s.cache))

	if hotnessRatio > 0.7 {
		// recency heavy: favor LRU
		s.recencyWeight = 0.7
		s.frequencyWeight = 0.3
	} else if hotnessRatio < 0.3 {
		// frequency heavy: favor LFU
		s.recencyWeight = 0.3
		s.frequencyWeight = 0.7
	} else {
		s.recencyWeight = 0.5
		s.frequencyWeight = 0.5
	}

	s.logger.Debug("Adjusted cache weights",
		zap.Float64("recency_weight", s.recencyWeight),
		zap.Float64("frequency_weight", s.frequencyWeight),
		zap.Float64("hotness_ratio", hotnessRatio))
}

// Stats returns cache statistics
func (s *CacheService) Stats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := 0.0
	if s.config.MaxSize > 0 {
		usage = float64(s.currentSize) / float64(s.config.MaxSize) * 100
	}
	hitRate := 0.0
	if s.hits+s.misses > 0 {
		hitRate = float64(s.hits) / float64(s.hits+s.misses)
	}
	return CacheStats{
		Size:            s.currentSize,
		MaxSize:         s.config.MaxSize,
		EntryCount:      len(s.cache),
		UsagePercent:    usage,
		HitRate:         hitRate,
		FrequencyWeight: s.frequencyWeight,
		RecencyWeight:   s.recencyWeight,
	}
}

// HitRate is the fraction of lookups that found their item
func (s *CacheService) HitRate() float64 {
	return s.Stats().HitRate
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size            int64
	MaxSize         int64
	EntryCount      int
	UsagePercent    float64
	HitRate         float64
	FrequencyWeight float64
	RecencyWeight   float64
}
