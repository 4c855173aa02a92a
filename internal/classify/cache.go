package classify

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CacheStrategy governs which results are worth caching.
type CacheStrategy int

const (
	CacheConservative CacheStrategy = iota
	CacheBalanced
	CacheAggressive
)

// Entry is one cached classification with its feedback counters.
type Entry struct {
	Key               string    `json:"key"`
	Result            Result    `json:"result"`
	StoredAt          time.Time `json:"stored_at"`
	LastAccessed      time.Time `json:"last_accessed"`
	UserConfirmations int       `json:"user_confirmations"`
	UserCorrections   int       `json:"user_corrections"`
}

// Cache is the two-level result cache: a bounded in-memory map plus an
// optional redis level sharing the same key shape. Redis failures degrade to
// memory-only operation.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	requests map[string]string // request id -> cache key, for feedback

	maxSize  int
	strategy CacheStrategy
	ttl      time.Duration
	rdb      redis.Cmdable
	logger   *log.Logger
	now      func() time.Time
}

// NewCache builds a cache. rdb may be nil for memory-only operation.
func NewCache(maxSize int, strategy CacheStrategy, ttl time.Duration, rdb redis.Cmdable) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		entries:  make(map[string]*Entry),
		requests: make(map[string]string),
		maxSize:  maxSize,
		strategy: strategy,
		ttl:      ttl,
		rdb:      rdb,
		logger:   log.New(log.Writer(), "[CLASSIFY-CACHE] ", log.LstdFlags),
		now:      time.Now,
	}
}

// ============================================================================
// KEY DERIVATION
// ============================================================================

// Key derives the deterministic cache key for a request. Requests that are
// equivalent for classification purposes share a key.
func (c *Cache) Key(req *Request) string {
	return fmt.Sprintf("tx_class:%s:%s:%s:%s:%s:%s",
		amountCategory(req.Amount),
		narrationPattern(req.Narration),
		timeCategory(req.Timestamp),
		dayCategory(req.Timestamp),
		businessContextHash(req.Context),
		req.Privacy,
	)
}

func amountCategory(amount decimal.Decimal) string {
	a := amount.InexactFloat64()
	switch {
	case a < 5_000:
		return "very_small"
	case a < 25_000:
		return "small"
	case a < 100_000:
		return "medium"
	case a < 500_000:
		return "large"
	default:
		return "very_large"
	}
}

func narrationPattern(narration string) string {
	lower := strings.ToLower(narration)
	switch {
	case matchesAny(lower, strongBusinessKeywords) || matchesAny(lower, moderateBusinessKeywords):
		return "business"
	case matchesAny(lower, strongPersonalKeywords) || matchesAny(lower, moderatePersonalKeywords):
		return "personal"
	case len(strings.Fields(lower)) <= 3:
		return "short"
	default:
		return "neutral"
	}
}

func timeCategory(ts time.Time) string {
	if ts.IsZero() {
		return "unknown"
	}
	switch h := ts.Hour(); {
	case h >= 8 && h < 18:
		return "business_hours"
	case h >= 18 && h < 22:
		return "evening"
	default:
		return "off_hours"
	}
}

func dayCategory(ts time.Time) string {
	switch ts.Weekday() {
	case time.Saturday:
		return "saturday"
	case time.Sunday:
		return "sunday"
	default:
		return "weekday"
	}
}

// businessContextHash is the first 8 hex chars of the md5 of the business
// context serialized as JSON with sorted keys.
func businessContextHash(ctx UserContext) string {
	payload, _ := json.Marshal(map[string]string{
		"business_size":     ctx.BusinessSize,
		"industry":          ctx.Industry,
		"subscription_tier": ctx.Subscription.String(),
	})
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])[:8]
}

// ============================================================================
// LOOKUP + STORE
// ============================================================================

// Get looks the key up in memory first, then redis. A hit refreshes the
// last-accessed time and returns a copy annotated as a cache hit.
func (c *Cache) Get(ctx context.Context, key string) (*Result, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.StoredAt) <= c.ttl {
			e.LastAccessed = c.now()
			res := e.Result
			c.mu.Unlock()
			res.CacheHit = true
			res.CostNGN = 0
			return &res, true
		}
		delete(c.entries, key)
		c.pruneRequestsLocked()
	}
	c.mu.Unlock()

	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("redis get failed, memory-only: %v", err)
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false
	}

	// Promote into memory.
	e.LastAccessed = c.now()
	c.mu.Lock()
	c.evictIfFullLocked()
	c.entries[key] = &e
	c.mu.Unlock()

	res := e.Result
	res.CacheHit = true
	res.CostNGN = 0
	return &res, true
}

// Store caches a result if it meets the strategy's policy, remembering the
// request id for later feedback. Returns whether the entry was stored.
func (c *Cache) Store(ctx context.Context, req *Request, res *Result) bool {
	if !c.storable(res) {
		return false
	}
	key := c.Key(req)
	stored := *res
	stored.CacheHit = false

	e := &Entry{
		Key:          key,
		Result:       stored,
		StoredAt:     c.now(),
		LastAccessed: c.now(),
	}

	c.mu.Lock()
	c.evictIfFullLocked()
	c.entries[key] = e
	c.requests[req.RequestID] = key
	c.mu.Unlock()

	if c.rdb != nil {
		payload, _ := json.Marshal(e)
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Printf("redis set failed, memory-only: %v", err)
		}
	}
	return true
}

func (c *Cache) storable(res *Result) bool {
	switch c.strategy {
	case CacheConservative:
		return res.Confidence >= 0.8 && !res.RequiresReview && len(res.RiskFactors) == 0
	case CacheAggressive:
		return res.Confidence >= 0.3
	default: // Balanced
		return res.Confidence >= 0.6 && len(res.RiskFactors) <= 1
	}
}

// evictIfFullLocked drops the oldest 10% of entries by last-accessed time
// when the map is at capacity. The victim list is computed first so the map
// mutation stays short.
func (c *Cache) evictIfFullLocked() {
	if len(c.entries) < c.maxSize {
		return
	}
	type aged struct {
		key      string
		accessed time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.LastAccessed})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].accessed.Before(all[j].accessed) })

	victims := len(c.entries) / 10
	if victims < 1 {
		victims = 1
	}
	for _, v := range all[:victims] {
		delete(c.entries, v.key)
	}
	c.pruneRequestsLocked()
}

// pruneRequestsLocked drops feedback mappings whose entry is gone and bounds
// the index at twice the entry capacity.
func (c *Cache) pruneRequestsLocked() {
	for id, key := range c.requests {
		if _, ok := c.entries[key]; !ok {
			delete(c.requests, id)
		}
	}
	for id := range c.requests {
		if len(c.requests) <= 2*c.maxSize {
			break
		}
		delete(c.requests, id)
	}
}

// ============================================================================
// FEEDBACK
// ============================================================================

// Feedback records a confirmation or correction against the entry cached for
// the request. Entries whose accuracy drops below 0.5 are evicted from both
// levels.
func (c *Cache) Feedback(ctx context.Context, requestID string, wasCorrect bool) bool {
	c.mu.Lock()
	key, ok := c.requests[requestID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if wasCorrect {
		e.UserConfirmations++
	} else {
		e.UserCorrections++
	}

	total := e.UserConfirmations + e.UserCorrections
	evict := total > 0 && float64(e.UserConfirmations)/float64(total) < 0.5
	var payload []byte
	if evict {
		delete(c.entries, key)
		c.pruneRequestsLocked()
	} else {
		payload, _ = json.Marshal(e)
	}
	c.mu.Unlock()

	if c.rdb != nil {
		if evict {
			if err := c.rdb.Del(ctx, key).Err(); err != nil {
				c.logger.Printf("redis del failed: %v", err)
			}
		} else if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Printf("redis set failed: %v", err)
		}
	}
	return true
}

// Len reports the in-memory entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
