// Package rules implements the declarative rule engine. Rules are
// independent: every rule sees the same transaction and feature vector,
// evaluation order is insertion order, and a triggered rule never
// short-circuits the rest. Each rule runs under its own timeout so one
// slow rule cannot consume the request budget.
package rules

import (
	"context"
	"time"

	"github.com/okanzdmr/fraudgate/internal/feature"
	"github.com/okanzdmr/fraudgate/internal/logging"
	"github.com/okanzdmr/fraudgate/internal/metrics"
	"github.com/okanzdmr/fraudgate/internal/transaction"
)

// Severity ranks a verdict. Error marks a rule whose evaluation failed
// or timed out; it never triggers and only flags the result as degraded.
type Severity int

const (
	SeverityError  Severity = -1
	SeverityInfo   Severity = 0
	SeverityWarn   Severity = 1
	SeverityReview Severity = 2
	SeverityBlock  Severity = 3
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityReview:
		return "review"
	case SeverityBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Verdict is one rule's evaluation of a transaction.
type Verdict struct {
	Rule      string   `json:"rule"`
	Triggered bool     `json:"triggered"`
	Severity  Severity `json:"severity"`
	Reason    string   `json:"reason,omitempty"`
}

// Rule evaluates a transaction against a single fraud heuristic.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict
}

// DefaultRuleTimeout bounds a single rule evaluation.
const DefaultRuleTimeout = 50 * time.Millisecond

// Engine runs a fixed, ordered rule set.
type Engine struct {
	rules       []Rule
	ruleTimeout time.Duration
}

// NewEngine creates a rule engine over the given rules.
func NewEngine(rules []Rule, ruleTimeout time.Duration) *Engine {
	if ruleTimeout <= 0 {
		ruleTimeout = DefaultRuleTimeout
	}
	return &Engine{rules: rules, ruleTimeout: ruleTimeout}
}

// Rules returns the configured rule names in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Evaluate runs every rule in order and returns one verdict per rule.
// A rule that exceeds its timeout yields an untriggered error verdict
// and sets degraded; the remaining rules still run.
func (e *Engine) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) (verdicts []Verdict, degraded bool) {
	verdicts = make([]Verdict, 0, len(e.rules))

	for _, r := range e.rules {
		v, ok := e.evaluateOne(ctx, r, tx, features)
		if !ok {
			metrics.RuleTimeoutsTotal.WithLabelValues(r.Name()).Inc()
			logging.L(ctx).Warn("rule evaluation timed out", "rule", r.Name(), "transaction_id", tx.ID)
			verdicts = append(verdicts, Verdict{
				Rule:     r.Name(),
				Severity: SeverityError,
				Reason:   "evaluation timed out",
			})
			degraded = true
			continue
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, degraded
}

// evaluateOne runs a single rule under its timeout. The rule goroutine is
// left to finish on its own if the deadline fires first.
func (e *Engine) evaluateOne(ctx context.Context, r Rule, tx *transaction.Transaction, features feature.Vector) (Verdict, bool) {
	rctx, cancel := context.WithTimeout(ctx, e.ruleTimeout)
	defer cancel()

	done := make(chan Verdict, 1)
	go func() {
		done <- r.Evaluate(rctx, tx, features)
	}()

	select {
	case v := <-done:
		return v, true
	case <-rctx.Done():
		return Verdict{}, false
	}
}

// MaxSeverity returns the highest severity among triggered verdicts,
// or SeverityInfo when nothing triggered.
func MaxSeverity(verdicts []Verdict) Severity {
	max := SeverityInfo
	for _, v := range verdicts {
		if v.Triggered && v.Severity > max {
			max = v.Severity
		}
	}
	return max
}
