package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlchat-ai/sqlchat/pkg/cache"
	"github.com/sqlchat-ai/sqlchat/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cache_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(key string, size int64, at time.Time) *models.CacheEntry {
	return &models.CacheEntry{
		CacheKey:           key,
		NormalizedQuestion: "show me all customers",
		OriginalQuestion:   "Show me all customers?",
		ModelName:          "modelA",
		SQLQuery:           "SELECT * FROM customers LIMIT 100",
		Answer:             "Found 100 customers.",
		ResultBlob:         []byte(`{"columns":["name"],"rows":[["acme"]]}`),
		RowCount:           1,
		Columns:            []string{"name"},
		CreatedAt:          at,
		LastAccessedAt:     at,
		AccessCount:        1,
		TTLSeconds:         86400,
		ExpiresAt:          at.Add(24 * time.Hour),
		SizeBytes:          size,
		ExecutionTimeMS:    12.5,
		Valid:              true,
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Upsert(testEntry("k1", 40, now)))

	e, err := s.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "show me all customers", e.NormalizedQuestion)
	assert.Equal(t, "Show me all customers?", e.OriginalQuestion)
	assert.Equal(t, "modelA", e.ModelName)
	assert.Equal(t, "SELECT * FROM customers LIMIT 100", e.SQLQuery)
	assert.Equal(t, "Found 100 customers.", e.Answer)
	assert.Equal(t, []string{"name"}, e.Columns)
	assert.Equal(t, 1, e.RowCount)
	assert.Equal(t, int64(40), e.SizeBytes)
	assert.True(t, e.Valid)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestGetExcludesInvalid(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.Upsert(testEntry("k1", 40, now)))
	require.NoError(t, s.Invalidate("k1", "ttl_expired"))

	_, err := s.Get("k1")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestUpsertReplacesByKey(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.Upsert(testEntry("k1", 40, now)))

	later := now.Add(time.Hour)
	e2 := testEntry("k1", 80, later)
	e2.Answer = "Found 200 customers."
	e2.ExpiresAt = later.Add(time.Hour)
	require.NoError(t, s.Upsert(e2))

	e, err := s.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "Found 200 customers.", e.Answer)
	assert.Equal(t, int64(80), e.SizeBytes)
	assert.Equal(t, int64(1), e.AccessCount)
	assert.WithinDuration(t, later.Add(time.Hour), e.ExpiresAt, time.Second)

	stats, err := s.Aggregates()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
}

func TestTouch(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.Upsert(testEntry("k1", 40, now)))

	later := now.Add(time.Minute)
	require.NoError(t, s.Touch("k1", later))
	require.NoError(t, s.Touch("k1", later.Add(time.Minute)))

	e, err := s.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.AccessCount)
	assert.WithinDuration(t, later.Add(time.Minute), e.LastAccessedAt, time.Second)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.Upsert(testEntry("k1", 40, now)))
	require.NoError(t, s.Upsert(testEntry("k2", 40, now)))
	require.NoError(t, s.Upsert(testEntry("k3", 40, now)))

	n, err := s.Delete([]string{"k1", "k3", "nope"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Get("k1")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, err = s.Get("k2")
	assert.NoError(t, err)

	n, err = s.Delete(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScanByLastAccessOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()

	// k2 accessed earliest, then k3, then k1.
	e1 := testEntry("k1", 10, base)
	e1.LastAccessedAt = base.Add(3 * time.Minute)
	e2 := testEntry("k2", 20, base)
	e2.LastAccessedAt = base.Add(1 * time.Minute)
	e3 := testEntry("k3", 30, base)
	e3.LastAccessedAt = base.Add(2 * time.Minute)
	for _, e := range []*models.CacheEntry{e1, e2, e3} {
		require.NoError(t, s.Upsert(e))
	}

	scan, err := s.ScanByLastAccess()
	require.NoError(t, err)
	require.Len(t, scan, 3)
	assert.Equal(t, "k2", scan[0].Key)
	assert.Equal(t, int64(20), scan[0].SizeBytes)
	assert.Equal(t, "k3", scan[1].Key)
	assert.Equal(t, "k1", scan[2].Key)
}

func TestScanByLastAccessTieBreak(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()

	// Same last-access and creation time: key order decides.
	for _, key := range []string{"b", "a", "c"} {
		require.NoError(t, s.Upsert(testEntry(key, 10, base)))
	}

	scan, err := s.ScanByLastAccess()
	require.NoError(t, err)
	require.Len(t, scan, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{scan[0].Key, scan[1].Key, scan[2].Key})
}

func TestAggregateSizeCountsValidOnly(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.Upsert(testEntry("k1", 100, now)))
	require.NoError(t, s.Upsert(testEntry("k2", 50, now)))

	size, err := s.AggregateSize()
	require.NoError(t, err)
	assert.Equal(t, int64(150), size)

	require.NoError(t, s.Invalidate("k2", "error_signature"))
	size, err = s.AggregateSize()
	require.NoError(t, err)
	assert.Equal(t, int64(100), size)
}

func TestDeleteExpired(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	stale := testEntry("stale", 10, now.Add(-48*time.Hour))
	stale.ExpiresAt = now.Add(-time.Hour)
	fresh := testEntry("fresh", 10, now)
	require.NoError(t, s.Upsert(stale))
	require.NoError(t, s.Upsert(fresh))

	n, err := s.DeleteExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get("stale")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, err = s.Get("fresh")
	assert.NoError(t, err)
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.Upsert(testEntry("k1", 10, now)))
	require.NoError(t, s.Upsert(testEntry("k2", 10, now)))

	n, err := s.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := s.Aggregates()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
}

func TestMarkErrorEntries(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	bad := testEntry("bad", 10, now)
	bad.Answer = "Error code: 402 - payment required"
	good := testEntry("good", 10, now)
	require.NoError(t, s.Upsert(bad))
	require.NoError(t, s.Upsert(good))

	n, err := s.MarkErrorEntries(cache.ErrorSignature)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get("bad")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, err = s.Get("good")
	assert.NoError(t, err)

	// Already-invalid rows are not re-counted.
	n, err = s.MarkErrorEntries(cache.ErrorSignature)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeErrorEntries(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	bad := testEntry("bad", 10, now)
	bad.Answer = "Error code: 404 - model not found"
	good := testEntry("good", 10, now)
	require.NoError(t, s.Upsert(bad))
	require.NoError(t, s.Upsert(good))

	n, err := s.PurgeErrorEntries()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := s.Aggregates()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
}

func TestRecordHitMissCounters(t *testing.T) {
	s := newTestStore(t)
	day := "2026-08-25"

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordHit(day))
	}
	require.NoError(t, s.RecordMiss(day))

	d, err := s.DailyStats(day)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Hits)
	assert.Equal(t, int64(1), d.Misses)
	assert.Equal(t, int64(4), d.TotalQueries)
	assert.InDelta(t, 0.75, d.HitRate, 1e-9)
	assert.Equal(t, int64(3), d.APICallsSaved)
}

func TestRecordMissFirst(t *testing.T) {
	s := newTestStore(t)
	day := "2026-08-25"

	require.NoError(t, s.RecordMiss(day))

	d, err := s.DailyStats(day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Hits)
	assert.Equal(t, int64(1), d.Misses)
	assert.Equal(t, int64(1), d.TotalQueries)
	assert.Zero(t, d.HitRate)
}

func TestDailyStatsMissingDate(t *testing.T) {
	s := newTestStore(t)
	d, err := s.DailyStats("1999-01-01")
	require.NoError(t, err)
	assert.Equal(t, "1999-01-01", d.Date)
	assert.Zero(t, d.TotalQueries)
}

func TestAggregates(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	e1 := testEntry("k1", 100, now)
	e1.ExecutionTimeMS = 10
	e1.AccessCount = 3
	e2 := testEntry("k2", 50, now)
	e2.ExecutionTimeMS = 30
	require.NoError(t, s.Upsert(e1))
	require.NoError(t, s.Upsert(e2))

	stats, err := s.Aggregates()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(150), stats.TotalSizeBytes)
	assert.Equal(t, int64(4), stats.TotalAccesses)
	assert.InDelta(t, 20.0, stats.AvgExecutionTimeMS, 1e-9)
}
