// Package sqlite implements the cache store on an embedded SQLite
// database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sqlchat-ai/sqlchat/pkg/cache"
	"github.com/sqlchat-ai/sqlchat/pkg/models"
)

// Store is a cache.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS query_cache (
	cache_key TEXT PRIMARY KEY,
	question_normalized TEXT NOT NULL,
	question_original TEXT NOT NULL,
	model_name TEXT NOT NULL,
	sql_query TEXT,
	answer TEXT NOT NULL DEFAULT '',
	result_data BLOB,
	result_row_count INTEGER NOT NULL DEFAULT 0,
	result_columns TEXT,
	created_at DATETIME NOT NULL,
	last_accessed_at DATETIME NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 1,
	ttl_seconds INTEGER NOT NULL DEFAULT 86400,
	expires_at DATETIME NOT NULL,
	data_size_bytes INTEGER NOT NULL DEFAULT 0,
	execution_time_ms REAL NOT NULL DEFAULT 0,
	is_valid INTEGER NOT NULL DEFAULT 1,
	invalid_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON query_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_last_accessed ON query_cache(last_accessed_at);
`

const createStatsTable = `
CREATE TABLE IF NOT EXISTS cache_statistics (
	date TEXT PRIMARY KEY,
	cache_hits INTEGER NOT NULL DEFAULT 0,
	cache_misses INTEGER NOT NULL DEFAULT 0,
	total_queries INTEGER NOT NULL DEFAULT 0,
	hit_rate REAL NOT NULL DEFAULT 0,
	total_api_calls_saved INTEGER NOT NULL DEFAULT 0
);
`

// New opens (or creates) the cache database at the given path and runs
// auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createEntriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	if _, err := db.Exec(createStatsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate statistics table: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the valid entry for a key, or cache.ErrNotFound.
func (s *Store) Get(key string) (*models.CacheEntry, error) {
	e := &models.CacheEntry{CacheKey: key}
	var sqlQuery, columnsJSON sql.NullString

	err := s.db.QueryRow(
		`SELECT question_normalized, question_original, model_name, sql_query,
		        answer, result_data, result_row_count, result_columns,
		        created_at, last_accessed_at, access_count, ttl_seconds,
		        expires_at, data_size_bytes, execution_time_ms
		 FROM query_cache
		 WHERE cache_key = ? AND is_valid = 1`,
		key,
	).Scan(
		&e.NormalizedQuestion, &e.OriginalQuestion, &e.ModelName, &sqlQuery,
		&e.Answer, &e.ResultBlob, &e.RowCount, &columnsJSON,
		&e.CreatedAt, &e.LastAccessedAt, &e.AccessCount, &e.TTLSeconds,
		&e.ExpiresAt, &e.SizeBytes, &e.ExecutionTimeMS,
	)
	if err == sql.ErrNoRows {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	e.SQLQuery = sqlQuery.String
	e.Valid = true
	if columnsJSON.Valid && columnsJSON.String != "" {
		if err := json.Unmarshal([]byte(columnsJSON.String), &e.Columns); err != nil {
			return nil, fmt.Errorf("decode column manifest: %w", err)
		}
	}
	return e, nil
}

// Upsert inserts or fully replaces the entry for its cache key.
// Replacement resets the access counter and expiry.
func (s *Store) Upsert(e *models.CacheEntry) error {
	var columnsJSON any
	if len(e.Columns) > 0 {
		b, err := json.Marshal(e.Columns)
		if err != nil {
			return fmt.Errorf("encode column manifest: %w", err)
		}
		columnsJSON = string(b)
	}

	valid := 0
	if e.Valid {
		valid = 1
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO query_cache (
			cache_key, question_normalized, question_original, model_name,
			sql_query, answer, result_data, result_row_count, result_columns,
			created_at, last_accessed_at, access_count, ttl_seconds,
			expires_at, data_size_bytes, execution_time_ms, is_valid
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CacheKey, e.NormalizedQuestion, e.OriginalQuestion, e.ModelName,
		nullString(e.SQLQuery), e.Answer, e.ResultBlob, e.RowCount, columnsJSON,
		e.CreatedAt, e.LastAccessedAt, e.AccessCount, e.TTLSeconds,
		e.ExpiresAt, e.SizeBytes, e.ExecutionTimeMS, valid,
	)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// Delete hard-deletes the given keys.
func (s *Store) Delete(keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	res, err := s.db.Exec(
		`DELETE FROM query_cache WHERE cache_key IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Touch bumps the access counter and last-access time for a key.
func (s *Store) Touch(key string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE query_cache
		 SET access_count = access_count + 1, last_accessed_at = ?
		 WHERE cache_key = ?`,
		at, key,
	)
	if err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// Invalidate marks an entry unusable without deleting it.
func (s *Store) Invalidate(key, reason string) error {
	_, err := s.db.Exec(
		`UPDATE query_cache SET is_valid = 0, invalid_reason = ? WHERE cache_key = ?`,
		reason, key,
	)
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// ScanByLastAccess returns valid entries in eviction order.
func (s *Store) ScanByLastAccess() ([]cache.EntrySize, error) {
	rows, err := s.db.Query(
		`SELECT cache_key, data_size_bytes
		 FROM query_cache
		 WHERE is_valid = 1
		 ORDER BY last_accessed_at ASC, created_at ASC, cache_key ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache lru scan: %w", err)
	}
	defer rows.Close()

	var out []cache.EntrySize
	for rows.Next() {
		var es cache.EntrySize
		if err := rows.Scan(&es.Key, &es.SizeBytes); err != nil {
			return nil, fmt.Errorf("cache lru scan: %w", err)
		}
		out = append(out, es)
	}
	return out, rows.Err()
}

// AggregateSize returns the total payload bytes of valid entries.
func (s *Store) AggregateSize() (int64, error) {
	var size int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(data_size_bytes), 0) FROM query_cache WHERE is_valid = 1`,
	).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("cache size: %w", err)
	}
	return size, nil
}

// DeleteExpired hard-deletes rows whose expiry is before now.
func (s *Store) DeleteExpired(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM query_cache WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("clear expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteAll hard-deletes every entry.
func (s *Store) DeleteAll() (int, error) {
	res, err := s.db.Exec(`DELETE FROM query_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkErrorEntries invalidates valid entries whose answer matches. The
// scan and the update run in one transaction.
func (s *Store) MarkErrorEntries(match func(answer string) bool) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("error sweep: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT cache_key, answer FROM query_cache WHERE is_valid = 1`)
	if err != nil {
		return 0, fmt.Errorf("error sweep: %w", err)
	}

	var keys []string
	for rows.Next() {
		var key, answer string
		if err := rows.Scan(&key, &answer); err != nil {
			rows.Close()
			return 0, fmt.Errorf("error sweep: %w", err)
		}
		if match(answer) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error sweep: %w", err)
	}
	rows.Close()

	for _, key := range keys {
		if _, err := tx.Exec(
			`UPDATE query_cache SET is_valid = 0, invalid_reason = 'error_signature' WHERE cache_key = ?`,
			key,
		); err != nil {
			return 0, fmt.Errorf("error sweep: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error sweep: %w", err)
	}
	return len(keys), nil
}

// PurgeErrorEntries hard-deletes entries whose answer carries a failure
// signature.
func (s *Store) PurgeErrorEntries() (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM query_cache
		 WHERE answer LIKE '%Error code:%'
		    OR answer LIKE 'Error%'
		    OR answer LIKE '%402%'
		    OR answer LIKE '%404%'`,
	)
	if err != nil {
		return 0, fmt.Errorf("purge errors: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RecordHit updates today's counters for a served hit. The hit rate is
// recomputed from the post-increment counters in the same statement.
func (s *Store) RecordHit(date string) error {
	_, err := s.db.Exec(
		`INSERT INTO cache_statistics (date, cache_hits, cache_misses, total_queries, hit_rate, total_api_calls_saved)
		 VALUES (?, 1, 0, 1, 1.0, 1)
		 ON CONFLICT(date) DO UPDATE SET
			cache_hits = cache_hits + 1,
			total_queries = total_queries + 1,
			hit_rate = CAST(cache_hits + 1 AS REAL) / (total_queries + 1),
			total_api_calls_saved = cache_hits + 1`,
		date,
	)
	if err != nil {
		return fmt.Errorf("record hit: %w", err)
	}
	return nil
}

// RecordMiss updates today's counters for a miss.
func (s *Store) RecordMiss(date string) error {
	_, err := s.db.Exec(
		`INSERT INTO cache_statistics (date, cache_hits, cache_misses, total_queries, hit_rate, total_api_calls_saved)
		 VALUES (?, 0, 1, 1, 0.0, 0)
		 ON CONFLICT(date) DO UPDATE SET
			cache_misses = cache_misses + 1,
			total_queries = total_queries + 1,
			hit_rate = CAST(cache_hits AS REAL) / (total_queries + 1)`,
		date,
	)
	if err != nil {
		return fmt.Errorf("record miss: %w", err)
	}
	return nil
}

// DailyStats returns the counters for a date, or a zero value if the
// date has no row yet.
func (s *Store) DailyStats(date string) (models.DailyStats, error) {
	d := models.DailyStats{Date: date}
	err := s.db.QueryRow(
		`SELECT cache_hits, cache_misses, total_queries, hit_rate, total_api_calls_saved
		 FROM cache_statistics WHERE date = ?`,
		date,
	).Scan(&d.Hits, &d.Misses, &d.TotalQueries, &d.HitRate, &d.APICallsSaved)
	if err == sql.ErrNoRows {
		return d, nil
	}
	if err != nil {
		return models.DailyStats{}, fmt.Errorf("daily stats: %w", err)
	}
	return d, nil
}

// Aggregates returns all-time figures across valid entries.
func (s *Store) Aggregates() (models.CacheStatistics, error) {
	var stats models.CacheStatistics
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(data_size_bytes), 0),
		        COALESCE(SUM(access_count), 0),
		        COALESCE(AVG(execution_time_ms), 0)
		 FROM query_cache WHERE is_valid = 1`,
	).Scan(&stats.TotalEntries, &stats.TotalSizeBytes, &stats.TotalAccesses, &stats.AvgExecutionTimeMS)
	if err != nil {
		return models.CacheStatistics{}, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
