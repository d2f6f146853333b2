package cache

import (
	"errors"
	"time"

	"github.com/sqlchat-ai/sqlchat/pkg/models"
)

// ErrNotFound is returned by Store.Get when no valid entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// EntrySize pairs a cache key with its payload size, for eviction scans
// that should not load full entries.
type EntrySize struct {
	Key       string
	SizeBytes int64
}

// Store is the persistence contract for cache entries and daily
// statistics. Every method is atomic per call; the cache assumes a
// single logical writer.
type Store interface {
	// Get returns the valid entry for a key, or ErrNotFound. Entries
	// marked invalid are never returned.
	Get(key string) (*models.CacheEntry, error)
	// Upsert inserts or fully replaces the entry for its cache key.
	Upsert(e *models.CacheEntry) error
	// Delete hard-deletes the given keys and returns how many rows went away.
	Delete(keys []string) (int, error)
	// Touch bumps the access counter and last-access time for a key.
	Touch(key string, at time.Time) error
	// Invalidate marks an entry unusable without deleting it.
	Invalidate(key, reason string) error
	// ScanByLastAccess returns valid entries in eviction order:
	// ascending last-access time, ties broken by creation time then key.
	ScanByLastAccess() ([]EntrySize, error)
	// AggregateSize returns the total payload bytes of valid entries.
	AggregateSize() (int64, error)
	// DeleteExpired hard-deletes rows whose expiry is before now.
	DeleteExpired(now time.Time) (int, error)
	// DeleteAll hard-deletes every entry.
	DeleteAll() (int, error)
	// MarkErrorEntries invalidates valid entries whose answer matches.
	MarkErrorEntries(match func(answer string) bool) (int, error)
	// PurgeErrorEntries hard-deletes entries with failure-signature answers.
	PurgeErrorEntries() (int, error)
	// RecordHit and RecordMiss update the daily counters for a date,
	// recomputing total and hit rate in the same statement.
	RecordHit(date string) error
	RecordMiss(date string) error
	// DailyStats returns the counters for a date; a zero value if absent.
	DailyStats(date string) (models.DailyStats, error)
	// Aggregates returns all-time figures across valid entries.
	Aggregates() (models.CacheStatistics, error)
	// Close releases the underlying storage.
	Close() error
}
