// Package warmer pre-populates the cache with answers to suggested
// questions, so first-time users hit warm entries instead of paying a
// model call.
package warmer

import (
	"log"
	"time"

	"github.com/sqlchat-ai/sqlchat/pkg/cache"
	"github.com/sqlchat-ai/sqlchat/pkg/models"
)

// Result is the outcome of answering one question.
type Result struct {
	SQLQuery        string
	Answer          string
	Table           *models.ResultTable
	ExecutionTimeMS float64
}

// QueryFunc answers a natural-language question. It stands in for the
// NL-to-SQL agent plus database execution.
type QueryFunc func(question string) (*Result, error)

// Warmer runs suggested questions through a QueryFunc and caches the
// answers.
type Warmer struct {
	cache *cache.Cache
	run   QueryFunc
	model string
}

// New creates a Warmer caching under the given model name.
func New(c *cache.Cache, run QueryFunc, model string) *Warmer {
	return &Warmer{cache: c, run: run, model: model}
}

// Warm answers and caches up to max questions (0 means all), skipping
// ones already cached. Failures are counted, never fatal.
func (w *Warmer) Warm(questions []string, max int) models.WarmStats {
	if max > 0 && len(questions) > max {
		questions = questions[:max]
	}

	start := time.Now()
	stats := models.WarmStats{Total: len(questions)}

	log.Printf("warming cache with %d suggested questions", len(questions))

	for i, q := range questions {
		if w.cache.Get(q, w.model).Hit() {
			log.Printf("[%d/%d] already cached: %s", i+1, len(questions), truncate(q, 50))
			stats.Skipped++
			continue
		}

		res, err := w.run(q)
		if err != nil {
			log.Printf("[%d/%d] warm query failed for %q: %v", i+1, len(questions), truncate(q, 50), err)
			stats.Failed++
			continue
		}

		answer := res.Answer
		if answer == "" {
			answer = "Query executed successfully."
		}

		if w.cache.Set(q, w.model, res.SQLQuery, answer, res.Table, res.ExecutionTimeMS, 0) {
			stats.Cached++
		} else {
			stats.Failed++
		}
	}

	stats.Duration = time.Since(start)
	log.Printf("cache warming completed in %s: cached %d, skipped %d, failed %d",
		stats.Duration.Round(time.Millisecond), stats.Cached, stats.Skipped, stats.Failed)
	return stats
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
