package classify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nairaflow/connect/internal/core"
)

func cacheRequest(id string, amount float64, narration string) *Request {
	return &Request{
		RequestID: id,
		Amount:    decimal.NewFromFloat(amount),
		Currency:  "NGN",
		Narration: narration,
		Timestamp: time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		Privacy:   PrivacyStandard,
		Context: UserContext{
			Industry:     "Trading",
			BusinessSize: "small",
			Subscription: SubProfessional,
		},
	}
}

func TestEquivalentRequestsShareCacheKey(t *testing.T) {
	c := NewCache(100, CacheBalanced, time.Hour, nil)

	a := cacheRequest("req-a", 50_000, "Payment for goods supplied")
	b := cacheRequest("req-b", 52_000, "Payment for goods supplied to vendor")

	keyA := c.Key(a)
	keyB := c.Key(b)
	assert.Equal(t, keyA, keyB, "equivalent requests collapse onto one key")
	assert.Contains(t, keyA, "tx_class:medium:business:business_hours:weekday:")

	// A different privacy level changes the key.
	b.Privacy = PrivacyHigh
	assert.NotEqual(t, keyA, c.Key(b))
}

func TestCacheHitAnnotation(t *testing.T) {
	c := NewCache(100, CacheBalanced, time.Hour, nil)
	req := cacheRequest("req-1", 50_000, "Payment for goods supplied")

	res := &Result{
		RequestID:        "req-1",
		IsBusinessIncome: core.True(),
		Confidence:       0.86,
		TaxCategory:      TaxStandardRate,
		VATApplicable:    true,
		Tier:             TierPremium,
		CostNGN:          TierCostNGN(TierPremium),
	}
	require.True(t, c.Store(context.Background(), req, res))

	got, ok := c.Get(context.Background(), c.Key(req))
	require.True(t, ok)
	assert.True(t, got.CacheHit)
	assert.Equal(t, 0.0, got.CostNGN, "cache hits are free")
	assert.Equal(t, 0.86, got.Confidence)
}

func TestStorePolicies(t *testing.T) {
	lowConfidence := &Result{Confidence: 0.5}
	reviewed := &Result{Confidence: 0.9, RequiresReview: true}
	risky := &Result{Confidence: 0.9, RiskFactors: []string{"round amount", "new sender"}}
	solid := &Result{Confidence: 0.9}

	conservative := NewCache(10, CacheConservative, time.Hour, nil)
	assert.False(t, conservative.storable(lowConfidence))
	assert.False(t, conservative.storable(reviewed))
	assert.False(t, conservative.storable(risky))
	assert.True(t, conservative.storable(solid))

	balanced := NewCache(10, CacheBalanced, time.Hour, nil)
	assert.False(t, balanced.storable(lowConfidence))
	assert.False(t, balanced.storable(risky), "two risk factors exceed the balanced bound")
	assert.True(t, balanced.storable(reviewed))

	aggressive := NewCache(10, CacheAggressive, time.Hour, nil)
	assert.True(t, aggressive.storable(lowConfidence))
	assert.True(t, aggressive.storable(risky))
	assert.False(t, aggressive.storable(&Result{Confidence: 0.2}))
}

func TestEvictionDropsLeastRecentlyAccessed(t *testing.T) {
	c := NewCache(10, CacheAggressive, time.Hour, nil)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 10; i++ {
		req := cacheRequest(fmt.Sprintf("req-%d", i), float64(1000*(i+1)), fmt.Sprintf("narration %d words here now", i))
		req.Privacy = PrivacyLevel(i % 3)
		req.Context.Industry = fmt.Sprintf("ind-%d", i)
		c.Store(context.Background(), req, &Result{Confidence: 0.9})
	}
	require.Equal(t, 10, c.Len())

	// The next store evicts the oldest entry before inserting.
	extra := cacheRequest("req-extra", 900_000, "completely different business invoice")
	c.Store(context.Background(), extra, &Result{Confidence: 0.9})
	assert.Equal(t, 10, c.Len())
}

func TestFeedbackEvictsInaccurateEntries(t *testing.T) {
	c := NewCache(100, CacheBalanced, time.Hour, nil)
	req := cacheRequest("req-fb", 50_000, "Payment for goods supplied")
	key := c.Key(req)

	require.True(t, c.Store(context.Background(), req, &Result{Confidence: 0.9}))

	// One confirmation keeps it; accuracy 1.0.
	require.True(t, c.Feedback(context.Background(), "req-fb", true))
	_, ok := c.Get(context.Background(), key)
	assert.True(t, ok)

	// Two corrections drop accuracy to 1/3 and evict.
	require.True(t, c.Feedback(context.Background(), "req-fb", false))
	require.True(t, c.Feedback(context.Background(), "req-fb", false))
	_, ok = c.Get(context.Background(), key)
	assert.False(t, ok, "inaccurate entry evicted")

	assert.False(t, c.Feedback(context.Background(), "unknown-request", true))
}

func TestFeedbackIndexPrunedWithEntries(t *testing.T) {
	c := NewCache(10, CacheAggressive, time.Hour, nil)

	// Feedback-driven eviction removes the request mapping too.
	req := cacheRequest("req-px", 50_000, "Payment for goods supplied")
	require.True(t, c.Store(context.Background(), req, &Result{Confidence: 0.9}))
	require.True(t, c.Feedback(context.Background(), "req-px", false))
	assert.Equal(t, 0, c.Len())
	c.mu.Lock()
	assert.Empty(t, c.requests)
	c.mu.Unlock()

	// Capacity eviction prunes mappings for the dropped entries.
	for i := 0; i < 11; i++ {
		r := cacheRequest(fmt.Sprintf("req-p%d", i), float64(1000*(i+1)), fmt.Sprintf("narration %d words here now", i))
		r.Privacy = PrivacyLevel(i % 3)
		r.Context.Industry = fmt.Sprintf("ind-%d", i)
		c.Store(context.Background(), r, &Result{Confidence: 0.9})
	}
	c.mu.Lock()
	live, index := len(c.entries), len(c.requests)
	c.mu.Unlock()
	assert.Equal(t, live, index, "one mapping per live entry")
}

func TestRedisLevelRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	writer := NewCache(100, CacheBalanced, time.Hour, rdb)
	req := cacheRequest("req-redis", 50_000, "Payment for goods supplied")
	require.True(t, writer.Store(context.Background(), req, &Result{
		IsBusinessIncome: core.True(),
		Confidence:       0.86,
		TaxCategory:      TaxStandardRate,
		Tier:             TierPremium,
	}))

	// A fresh process with an empty memory level reads through redis.
	reader := NewCache(100, CacheBalanced, time.Hour, rdb)
	got, ok := reader.Get(context.Background(), reader.Key(req))
	require.True(t, ok)
	assert.True(t, got.CacheHit)
	require.NotNil(t, got.IsBusinessIncome)
	assert.True(t, *got.IsBusinessIncome)
	assert.Equal(t, 1, reader.Len(), "redis hit promoted into memory")

	// Redis outage degrades to memory-only without failing.
	srv.Close()
	_, ok = writer.Get(context.Background(), "tx_class:none:none:none:none:00000000:standard")
	assert.False(t, ok)
}
