package ensemble

import (
	"context"
	"time"

	"github.com/okanzdmr/fraudgate/internal/circuitbreaker"
	"github.com/okanzdmr/fraudgate/internal/feature"
	"github.com/okanzdmr/fraudgate/internal/logging"
	"github.com/okanzdmr/fraudgate/internal/metrics"
)

// Scorer fans a feature vector out to every eligible model and joins the
// results. Eligibility excludes stale models and models whose circuit is
// open; a model that misses the deadline simply contributes nothing.
type Scorer struct {
	registry Registry
	breaker  *circuitbreaker.Breaker
	weights  map[string]float64
	timeout  time.Duration
	quorum   int
	maxAge   time.Duration
	now      func() time.Time
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithBreaker installs a per-model circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) ScorerOption {
	return func(s *Scorer) { s.breaker = b }
}

// WithMaxModelAge sets the staleness cutoff for model training timestamps.
func WithMaxModelAge(d time.Duration) ScorerOption {
	return func(s *Scorer) { s.maxAge = d }
}

// WithClock overrides the staleness clock.
func WithClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates an ensemble scorer. quorum is the minimum number of
// model scores required; timeout bounds each model invocation.
func NewScorer(registry Registry, weights map[string]float64, quorum int, timeout time.Duration, opts ...ScorerOption) *Scorer {
	s := &Scorer{
		registry: registry,
		weights:  weights,
		quorum:   quorum,
		timeout:  timeout,
		maxAge:   90 * 24 * time.Hour,
		now:      time.Now,
	}
	if s.quorum < 1 {
		s.quorum = 1
	}
	if s.timeout <= 0 {
		s.timeout = 250 * time.Millisecond
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the configured per-model weights.
func (s *Scorer) Weights() map[string]float64 {
	return s.weights
}

// Score runs every eligible model concurrently and returns their scores
// in registry order. ErrInsufficientQuorum is returned when fewer than
// quorum models respond in time.
func (s *Scorer) Score(ctx context.Context, features feature.Vector) ([]Score, error) {
	models := s.registry.Models()

	type result struct {
		idx   int
		score *Score
	}
	// Buffered so late model goroutines never block after the join gives up.
	done := make(chan result, len(models))

	dispatched := 0
	for i, m := range models {
		info := m.Info()
		if s.stale(info) {
			logging.L(ctx).Debug("skipping stale model", "model", info.ID, "trained_at", info.TrainedAt)
			continue
		}
		if s.breaker != nil && !s.breaker.Allow(info.ID) {
			logging.L(ctx).Warn("skipping model with open circuit", "model", info.ID)
			continue
		}

		dispatched++
		go func(idx int, m Model, info ModelInfo) {
			mctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			start := time.Now()
			value, err := m.Score(mctx, features)
			elapsed := time.Since(start)
			metrics.ModelScoreDuration.WithLabelValues(info.ID).Observe(elapsed.Seconds())

			if err != nil || mctx.Err() != nil {
				metrics.ModelFailuresTotal.WithLabelValues(info.ID).Inc()
				if s.breaker != nil {
					s.breaker.RecordFailure(info.ID)
				}
				logging.L(ctx).Warn("model scoring failed", "model", info.ID, "error", err)
				done <- result{idx: idx}
				return
			}

			if s.breaker != nil {
				s.breaker.RecordSuccess(info.ID)
			}
			done <- result{idx: idx, score: &Score{
				ModelID: info.ID,
				Version: info.Version,
				Value:   value,
				Latency: elapsed,
			}}
		}(i, m, info)
	}

	deadline := time.NewTimer(s.timeout + 20*time.Millisecond)
	defer deadline.Stop()

	results := make([]*Score, len(models))
join:
	for received := 0; received < dispatched; received++ {
		select {
		case r := <-done:
			results[r.idx] = r.score
		case <-deadline.C:
			break join // late models are dropped
		case <-ctx.Done():
			break join
		}
	}

	scores := make([]Score, 0, dispatched)
	for _, r := range results {
		if r != nil {
			scores = append(scores, *r)
		}
	}
	if len(scores) < s.quorum {
		return nil, ErrInsufficientQuorum
	}
	return scores, nil
}

// Combine folds the scores using the scorer's configured weights.
func (s *Scorer) Combine(scores []Score) float64 {
	return Combine(scores, s.weights)
}

func (s *Scorer) stale(info ModelInfo) bool {
	if info.TrainedAt.IsZero() || s.maxAge <= 0 {
		return false
	}
	return s.now().Sub(info.TrainedAt) > s.maxAge
}
