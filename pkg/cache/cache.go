// Package cache is a persistent, content-addressed cache for
// natural-language query results. Entries are keyed by a SHA-256 digest
// of the normalized question and model name, expire by TTL, and are
// size-bounded by LRU eviction. The cache is a pure optimization:
// storage failures degrade to "no cache effect", never to an error the
// caller has to handle.
package cache

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/sqlchat-ai/sqlchat/pkg/models"
)

// evictTargetRatio leaves 10% slack under the cap after an eviction
// pass, so a run of inserts near the boundary does not evict every time.
const evictTargetRatio = 0.9

// Options configures a Cache.
type Options struct {
	// DefaultTTL applies to writes that do not carry their own TTL.
	DefaultTTL time.Duration
	// MaxSize caps the total payload bytes of valid entries.
	MaxSize int64
	// MaxEntrySize caps a single payload; larger writes are rejected.
	MaxEntrySize int64
}

// Status classifies the outcome of a lookup.
type Status int

const (
	StatusMiss Status = iota
	StatusHit
	StatusExpired
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	default:
		return "miss"
	}
}

// Lookup is the result of a Get. Only a StatusHit lookup carries a
// usable payload; every other status counts as a miss in statistics.
type Lookup struct {
	Status    Status
	SQLQuery  string
	Answer    string
	Table     *models.ResultTable
	RowCount  int
	Columns   []string
	CreatedAt time.Time
}

// Hit reports whether the lookup resolved to a usable cached result.
func (l Lookup) Hit() bool { return l.Status == StatusHit }

// Cache coordinates key derivation, the persistent store, TTL
// expiration, LRU eviction, the error guard, and daily statistics.
type Cache struct {
	store Store
	opts  Options
	now   func() time.Time
}

// New creates a Cache on top of a Store.
func New(store Store, opts Options) *Cache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 24 * time.Hour
	}
	return &Cache{store: store, opts: opts, now: time.Now}
}

// Get looks up the cached result for a question under a model. Expired
// entries are soft-invalidated and reported as StatusExpired; payloads
// that fail to decode are reported as StatusInvalid. Both count as
// misses. Storage errors are logged and degrade to a miss.
func (c *Cache) Get(question, model string) Lookup {
	key := Key(question, model)
	now := c.now().UTC()

	e, err := c.store.Get(key)
	if errors.Is(err, ErrNotFound) {
		log.Printf("cache miss for key %s...", shortKey(key))
		c.recordMiss(now)
		return Lookup{Status: StatusMiss}
	}
	if err != nil {
		log.Printf("cache lookup error: %v", err)
		c.recordMiss(now)
		return Lookup{Status: StatusMiss}
	}

	if now.After(e.ExpiresAt) {
		log.Printf("cache expired for key %s...", shortKey(key))
		if err := c.store.Invalidate(key, "ttl_expired"); err != nil {
			log.Printf("cache invalidate error: %v", err)
		}
		c.recordMiss(now)
		return Lookup{Status: StatusExpired}
	}

	var table *models.ResultTable
	if len(e.ResultBlob) > 0 {
		table = &models.ResultTable{}
		if err := json.Unmarshal(e.ResultBlob, table); err != nil {
			log.Printf("cache payload decode error for key %s...: %v", shortKey(key), err)
			c.recordMiss(now)
			return Lookup{Status: StatusInvalid}
		}
	}

	if err := c.store.Touch(key, now); err != nil {
		log.Printf("cache access update error: %v", err)
	}
	c.recordHit(now)
	log.Printf("cache hit for key %s...", shortKey(key))

	return Lookup{
		Status:    StatusHit,
		SQLQuery:  e.SQLQuery,
		Answer:    e.Answer,
		Table:     table,
		RowCount:  e.RowCount,
		Columns:   e.Columns,
		CreatedAt: e.CreatedAt,
	}
}

// Set stores a query result. It returns false when the write is
// rejected: the answer carries a failure signature, the payload exceeds
// the per-entry cap, serialization fails, or the store errors. A ttl of
// zero uses the configured default. Writing an existing key replaces
// the entry and restarts its TTL.
func (c *Cache) Set(question, model, sqlQuery, answer string, table *models.ResultTable, executionTimeMS float64, ttl time.Duration) bool {
	if ErrorSignature(answer) {
		log.Printf("cache refusing failure-signature answer for question %q", truncate(question, 50))
		return false
	}

	key := Key(question, model)
	normalized := Normalize(question)

	var blob []byte
	var size int64
	var columns []string
	rowCount := 0
	if table != nil && !table.Empty() {
		b, err := json.Marshal(table)
		if err != nil {
			log.Printf("cache payload encode error: %v", err)
			return false
		}
		blob = b
		size = int64(len(b))
		rowCount = table.RowCount()
		columns = table.Columns

		if c.opts.MaxEntrySize > 0 && size > c.opts.MaxEntrySize {
			log.Printf("cache payload %dB exceeds per-entry limit %dB, not caching", size, c.opts.MaxEntrySize)
			return false
		}
	}

	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	now := c.now().UTC()

	c.evictIfNeeded(size)

	e := &models.CacheEntry{
		CacheKey:           key,
		NormalizedQuestion: normalized,
		OriginalQuestion:   question,
		ModelName:          model,
		SQLQuery:           sqlQuery,
		Answer:             answer,
		ResultBlob:         blob,
		RowCount:           rowCount,
		Columns:            columns,
		CreatedAt:          now,
		LastAccessedAt:     now,
		AccessCount:        1,
		TTLSeconds:         int64(ttl.Seconds()),
		ExpiresAt:          now.Add(ttl),
		SizeBytes:          size,
		ExecutionTimeMS:    executionTimeMS,
		Valid:              true,
	}
	if err := c.store.Upsert(e); err != nil {
		log.Printf("cache store error: %v", err)
		return false
	}
	log.Printf("cached result for key %s... (size: %dB, rows: %d)", shortKey(key), size, rowCount)
	return true
}

// evictIfNeeded removes least-recently-used entries until the incoming
// write fits under the aggregate cap with slack. Only valid entries
// count against the cap.
func (c *Cache) evictIfNeeded(incoming int64) {
	if c.opts.MaxSize <= 0 {
		return
	}
	current, err := c.store.AggregateSize()
	if err != nil {
		log.Printf("cache size check error: %v", err)
		return
	}
	if current+incoming <= c.opts.MaxSize {
		return
	}

	target := int64(float64(c.opts.MaxSize) * evictTargetRatio)
	toFree := current + incoming - target

	entries, err := c.store.ScanByLastAccess()
	if err != nil {
		log.Printf("cache eviction scan error: %v", err)
		return
	}

	var keys []string
	var freed int64
	for _, es := range entries {
		if freed >= toFree {
			break
		}
		keys = append(keys, es.Key)
		freed += es.SizeBytes
	}
	if len(keys) == 0 {
		return
	}
	n, err := c.store.Delete(keys)
	if err != nil {
		log.Printf("cache eviction error: %v", err)
		return
	}
	log.Printf("evicted %d LRU entries (%dB)", n, freed)
}

// ClearAll hard-deletes every entry and returns the count removed.
func (c *Cache) ClearAll() (int, error) {
	n, err := c.store.DeleteAll()
	if err != nil {
		return 0, err
	}
	log.Printf("cleared %d cache entries", n)
	return n, nil
}

// ClearExpired hard-deletes entries past their expiry, valid or not,
// and returns the count removed. Safe to call at any time.
func (c *Cache) ClearExpired() (int, error) {
	n, err := c.store.DeleteExpired(c.now().UTC())
	if err != nil {
		return 0, err
	}
	log.Printf("removed %d expired cache entries", n)
	return n, nil
}

// SweepInvalid marks valid entries whose answer carries a failure
// signature as invalid. It cleans up entries written before the guard
// existed or through a path that bypassed it.
func (c *Cache) SweepInvalid() (int, error) {
	n, err := c.store.MarkErrorEntries(ErrorSignature)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("invalidated %d entries with failure signatures", n)
	}
	return n, nil
}

// PurgeErrors hard-deletes entries whose answer carries a failure
// signature. Intended for startup, before any lookups are served.
func (c *Cache) PurgeErrors() (int, error) {
	n, err := c.store.PurgeErrorEntries()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("purged %d cached errors", n)
	}
	return n, nil
}

// Statistics returns all-time aggregates merged with today's counters.
func (c *Cache) Statistics() (models.CacheStatistics, error) {
	stats, err := c.store.Aggregates()
	if err != nil {
		return models.CacheStatistics{}, err
	}
	today, err := c.store.DailyStats(dateOf(c.now().UTC()))
	if err != nil {
		return models.CacheStatistics{}, err
	}
	stats.Today = today
	return stats, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) recordHit(now time.Time) {
	if err := c.store.RecordHit(dateOf(now)); err != nil {
		log.Printf("cache hit stats error: %v", err)
	}
}

func (c *Cache) recordMiss(now time.Time) {
	if err := c.store.RecordMiss(dateOf(now)); err != nil {
		log.Printf("cache miss stats error: %v", err)
	}
}

func dateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

func shortKey(key string) string {
	return truncate(key, 16)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
