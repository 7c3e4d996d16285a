package retrieval

import (
	"sync"
	"time"

	"github.com/finbot/finbot/internal/models"
)

// Collector accumulates session-wide query statistics. Safe for concurrent
// use.
type Collector struct {
	mu sync.Mutex

	sessionStart  time.Time
	queryCount    int64
	totalTimeMs   float64
	jailbreaks    int64
	outOfDomain   int64
	errorCount    int64
	lastErrorMsg  string
	lastErrorTime time.Time
}

// NewCollector starts a fresh session.
func NewCollector() *Collector {
	return &Collector{sessionStart: time.Now()}
}

// RecordQuery counts one answered query.
func (c *Collector) RecordQuery(totalTimeMs float64, isJailbreak, isOutOfDomain bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryCount++
	c.totalTimeMs += totalTimeMs
	if isJailbreak {
		c.jailbreaks++
	}
	if isOutOfDomain {
		c.outOfDomain++
	}
}

// RecordError counts one pipeline failure.
func (c *Collector) RecordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
	c.lastErrorMsg = err.Error()
	c.lastErrorTime = time.Now()
}

// Stats returns a snapshot of the session.
func (c *Collector) Stats() models.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := models.SessionStats{
		SessionStart:       c.sessionStart,
		SessionDurationSec: time.Since(c.sessionStart).Seconds(),
		TotalQueries:       c.queryCount,
		JailbreakAttempts:  c.jailbreaks,
		OutOfDomainQueries: c.outOfDomain,
		ErrorCount:         c.errorCount,
		LastError:          c.lastErrorMsg,
	}
	if c.queryCount > 0 {
		stats.AverageResponseMs = c.totalTimeMs / float64(c.queryCount)
	}
	return stats
}
