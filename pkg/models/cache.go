package models

import "time"

// CacheEntry stores one cached question/answer pair and its provenance.
type CacheEntry struct {
	CacheKey           string    `json:"cache_key"`
	NormalizedQuestion string    `json:"normalized_question"`
	OriginalQuestion   string    `json:"original_question"`
	ModelName          string    `json:"model_name"`
	SQLQuery           string    `json:"sql_query,omitempty"`
	Answer             string    `json:"answer"`
	ResultBlob         []byte    `json:"-"`
	RowCount           int       `json:"row_count"`
	Columns            []string  `json:"columns,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	LastAccessedAt     time.Time `json:"last_accessed_at"`
	AccessCount        int64     `json:"access_count"`
	TTLSeconds         int64     `json:"ttl_seconds"`
	ExpiresAt          time.Time `json:"expires_at"`
	SizeBytes          int64     `json:"size_bytes"`
	ExecutionTimeMS    float64   `json:"execution_time_ms"`
	Valid              bool      `json:"valid"`
}

// DailyStats holds hit/miss counters for a single calendar day.
type DailyStats struct {
	Date          string  `json:"date"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	TotalQueries  int64   `json:"total_queries"`
	HitRate       float64 `json:"hit_rate"`
	APICallsSaved int64   `json:"api_calls_saved"`
}

// CacheStatistics merges all-time aggregates with today's counters.
type CacheStatistics struct {
	TotalEntries       int64      `json:"total_entries"`
	TotalSizeBytes     int64      `json:"total_size_bytes"`
	TotalAccesses      int64      `json:"total_accesses"`
	AvgExecutionTimeMS float64    `json:"avg_execution_time_ms"`
	Today              DailyStats `json:"today"`
}

// WarmStats reports the outcome of a cache warming run.
type WarmStats struct {
	Cached   int           `json:"cached"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Total    int           `json:"total"`
	Duration time.Duration `json:"duration"`
}
