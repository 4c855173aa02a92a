package classify

import (
	"context"
	"log"
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// Engine wires the optimizer, rule evaluator, privacy pipeline, cache, LLM
// tiers and usage tracker into the classification flow. Any failure past
// tier selection degrades to the rule evaluator.
type Engine struct {
	optimizer  *Optimizer
	rules      *RuleEvaluator
	anonymizer *Anonymizer
	cache      *Cache
	usage      *Tracker
	llm        LLMClient

	reviewThreshold float64
	logger          *log.Logger
	now             func() time.Time
}

// EngineOption tweaks engine construction.
type EngineOption func(*Engine)

// WithReviewThreshold sets the confidence below which results are flagged
// for human review.
func WithReviewThreshold(v float64) EngineOption {
	return func(e *Engine) { e.reviewThreshold = v }
}

// WithLLM installs the LLM client. Without one every paid tier falls back to
// rules.
func WithLLM(c LLMClient) EngineOption {
	return func(e *Engine) { e.llm = c }
}

// NewEngine builds an engine around the given cache and optimizer strategy.
func NewEngine(strategy Strategy, cache *Cache, usage *Tracker, opts ...EngineOption) *Engine {
	e := &Engine{
		optimizer:       NewOptimizer(strategy),
		rules:           NewRuleEvaluator(),
		anonymizer:      NewAnonymizer(),
		cache:           cache,
		usage:           usage,
		reviewThreshold: 0.7,
		logger:          log.New(log.Writer(), "[CLASSIFY] ", log.LstdFlags),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify runs the full flow for one request. It always returns a result;
// failures on paid tiers degrade to the rule evaluator with fallback_used
// set.
func (e *Engine) Classify(ctx context.Context, req *Request) *Result {
	start := e.now()

	tier, complexity := e.optimizer.SelectTier(req)

	var res *Result
	if tier == TierRule {
		res = e.rules.Evaluate(req)
	} else {
		res = e.classifyPaidTier(ctx, req, tier)
	}

	if res.Confidence < e.reviewThreshold {
		res.RequiresReview = true
	}
	res.normalize()
	res.ProcessingMs = float64(e.now().Sub(start).Microseconds()) / 1000.0

	if !res.CacheHit && res.Tier != TierRule {
		e.cache.Store(ctx, req, res)
	}

	e.emit(req, res, complexity)
	return res
}

// classifyPaidTier runs the cache lookup, anonymization and LLM call for a
// paid tier, degrading to rules on any failure.
func (e *Engine) classifyPaidTier(ctx context.Context, req *Request, tier Tier) *Result {
	key := e.cache.Key(req)
	if cached, ok := e.cache.Get(ctx, key); ok {
		cached.RequestID = req.RequestID
		e.usage.Record(Event{
			Type:      EventCacheHit,
			UserID:    req.UserID,
			OrgID:     req.OrgID,
			RequestID: req.RequestID,
			Tier:      cached.Tier,
			CacheHit:  true,
		})
		return cached
	}
	e.usage.Record(Event{
		Type:      EventCacheMiss,
		UserID:    req.UserID,
		OrgID:     req.OrgID,
		RequestID: req.RequestID,
		Tier:      tier,
	})

	anon := e.anonymizer.Anonymize(req)
	if report := e.anonymizer.Validate(anon); !report.IsValid {
		err := e.anonymizer.ErrResidualPII(report)
		e.logger.Printf("request %s: %v", req.RequestID, err)
		return e.fallback(req, err)
	}

	if e.llm == nil {
		return e.fallback(req, core.NewError(core.KindConfig, "classify.engine", "no LLM client configured"))
	}

	verdict, err := e.llm.Classify(ctx, anon, tier)
	if err != nil {
		e.logger.Printf("request %s tier %s: %v", req.RequestID, tier, err)
		return e.fallback(req, err)
	}

	business := verdict.IsBusinessIncome
	res := &Result{
		RequestID:          req.RequestID,
		IsBusinessIncome:   &business,
		Confidence:         verdict.Confidence,
		TaxCategory:        verdict.TaxCategory,
		Reasoning:          verdict.Reasoning,
		RiskFactors:        verdict.RiskFactors,
		CustomerName:       verdict.CustomerName,
		InvoiceDescription: verdict.InvoiceDescription,
		DetectedPatterns:   anon.Detected,
		Tier:               tier,
		ModelVersion:       verdict.ModelVersion,
		AnonymizationLevel: req.Privacy.String(),
		CostNGN:            TierCostNGN(tier),
		TokensUsed:         verdict.TokensUsed,
	}
	if res.TaxCategory == TaxStandardRate && business {
		res.VATApplicable = true
	}
	res.normalize()
	return res
}

// fallback runs the rule evaluator after a paid-tier failure.
func (e *Engine) fallback(req *Request, cause error) *Result {
	e.usage.Record(Event{
		Type:      EventRuleFallback,
		UserID:    req.UserID,
		OrgID:     req.OrgID,
		RequestID: req.RequestID,
		Metadata:  map[string]any{"cause": cause.Error()},
	})
	res := e.rules.Evaluate(req)
	res.FallbackUsed = true
	return res
}

// UpdateFeedback records whether a prior classification was correct and
// forwards it to the cache's accuracy bookkeeping.
func (e *Engine) UpdateFeedback(ctx context.Context, requestID string, wasCorrect bool) bool {
	found := e.cache.Feedback(ctx, requestID, wasCorrect)
	e.usage.Record(Event{
		Type:      EventFeedback,
		RequestID: requestID,
		Metadata:  map[string]any{"was_correct": wasCorrect, "cache_entry": found},
	})
	return found
}

// Usage exposes the tracker for aggregation queries.
func (e *Engine) Usage() *Tracker { return e.usage }

func (e *Engine) emit(req *Request, res *Result, complexity float64) {
	e.usage.Record(Event{
		Type:             EventClassification,
		UserID:           req.UserID,
		OrgID:            req.OrgID,
		RequestID:        req.RequestID,
		Tier:             res.Tier,
		Confidence:       res.Confidence,
		IsBusinessIncome: res.IsBusinessIncome,
		CostNGN:          res.CostNGN,
		TokensUsed:       res.TokensUsed,
		ProcessingMs:     res.ProcessingMs,
		CacheHit:         res.CacheHit,
		Metadata: map[string]any{
			"complexity":    complexity,
			"fallback_used": res.FallbackUsed,
			"privacy_level": req.Privacy.String(),
		},
	})
}
