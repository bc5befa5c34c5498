// Package pipeline orchestrates a scoring request through its stages:
// feature extraction, concurrent rule and model evaluation, aggregation,
// and the audit append. No decision leaves the pipeline without a durable
// audit record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okanzdmr/fraudgate/internal/audit"
	"github.com/okanzdmr/fraudgate/internal/decision"
	"github.com/okanzdmr/fraudgate/internal/ensemble"
	"github.com/okanzdmr/fraudgate/internal/feature"
	"github.com/okanzdmr/fraudgate/internal/idgen"
	"github.com/okanzdmr/fraudgate/internal/logging"
	"github.com/okanzdmr/fraudgate/internal/metrics"
	"github.com/okanzdmr/fraudgate/internal/rules"
	"github.com/okanzdmr/fraudgate/internal/traces"
	"github.com/okanzdmr/fraudgate/internal/transaction"
)

// State is the pipeline's position for a single request.
type State string

const (
	StateReceived    State = "received"
	StateFeaturizing State = "featurizing"
	StateScoring     State = "scoring"
	StateAggregating State = "aggregating"
	StateAuditing    State = "auditing"
	StateCompleted   State = "completed"
	StateAborted     State = "aborted"
)

// Abort reasons.
const (
	AbortTimeout = "timeout"
)

// MissingHistoryPolicy selects the behavior when an account has no
// history window.
type MissingHistoryPolicy string

const (
	MissingHistoryDefaults MissingHistoryPolicy = "defaults"
	MissingHistoryReject   MissingHistoryPolicy = "reject"
)

// Result is a completed scoring run.
type Result struct {
	Decision    *decision.Decision `json:"decision"`
	AuditRecord *audit.Record      `json:"-"`
	State       State              `json:"state"`
	Elapsed     time.Duration      `json:"-"`
}

// Orchestrator drives transactions through the scoring pipeline.
type Orchestrator struct {
	extractor *feature.Extractor
	engine    *rules.Engine
	scorer    *ensemble.Scorer
	ledger    *audit.Ledger
	history   transaction.HistoryStore
	policy    decision.Policy

	budget           time.Duration
	onMissingHistory MissingHistoryPolicy
	onDecision       func(*decision.Decision)
	now              func() time.Time

	stats stats
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBudget sets the wall-clock budget for a scoring run.
func WithBudget(d time.Duration) Option {
	return func(o *Orchestrator) { o.budget = d }
}

// WithMissingHistoryPolicy selects defaults-vs-reject for accounts
// without history.
func WithMissingHistoryPolicy(p MissingHistoryPolicy) Option {
	return func(o *Orchestrator) { o.onMissingHistory = p }
}

// WithDecisionHook installs a callback invoked after each released
// decision. Called asynchronously.
func WithDecisionHook(fn func(*decision.Decision)) Option {
	return func(o *Orchestrator) { o.onDecision = fn }
}

// WithClock overrides the pipeline clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates a scoring orchestrator.
func New(
	extractor *feature.Extractor,
	engine *rules.Engine,
	scorer *ensemble.Scorer,
	ledger *audit.Ledger,
	history transaction.HistoryStore,
	policy decision.Policy,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		extractor:        extractor,
		engine:           engine,
		scorer:           scorer,
		ledger:           ledger,
		history:          history,
		policy:           policy,
		budget:           800 * time.Millisecond,
		onMissingHistory: MissingHistoryDefaults,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Score runs one transaction through the pipeline. The returned error is
// non-nil only when no decision could be released: invalid input, a
// rejected missing-history transaction, or a failed audit append.
func (o *Orchestrator) Score(ctx context.Context, tx *transaction.Transaction) (*Result, error) {
	start := o.now()
	ctx, span := traces.StartSpan(ctx, "pipeline.score",
		traces.TransactionID(tx.ID), traces.AccountID(tx.AccountID))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	decisionID := idgen.WithPrefix("dec_")
	log := logging.L(ctx)

	// FEATURIZING
	features, err := o.featurize(runCtx, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return o.abortTimeout(ctx, tx, decisionID, start, StateFeaturizing)
		}
		return nil, err
	}

	// SCORING: rules and models run concurrently over the same vector.
	var (
		wg       sync.WaitGroup
		verdicts []rules.Verdict
		degraded bool
		scores   []ensemble.Score
		scoreErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		verdicts, degraded = o.engine.Evaluate(runCtx, tx, features)
	}()
	go func() {
		defer wg.Done()
		scores, scoreErr = o.scorer.Score(runCtx, features)
	}()
	wg.Wait()

	if runCtx.Err() != nil {
		return o.abortTimeout(ctx, tx, decisionID, start, StateScoring)
	}

	var d *decision.Decision
	if scoreErr != nil {
		if !errors.Is(scoreErr, ensemble.ErrInsufficientQuorum) {
			log.Error("ensemble scoring failed", "transaction_id", tx.ID, "error", scoreErr)
		}
		// Fail safe: scoring could not complete, route to review.
		o.stats.failsafe.Add(1)
		d = decision.FailsafeReview(decisionID, tx.ID, tx.AccountID,
			"model ensemble could not reach quorum", o.now().UTC())
		d.Verdicts = verdicts
		// Rule verdicts stay authoritative when the ensemble is down.
		if rules.MaxSeverity(verdicts) == rules.SeverityBlock {
			d.OverrideBlock("a blocking rule was triggered")
		}
	} else {
		// AGGREGATING
		d = decision.Aggregate(decision.Input{
			DecisionID:    decisionID,
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
			Verdicts:      verdicts,
			Scores:        scores,
			Combined:      o.scorer.Combine(scores),
			Degraded:      degraded,
			DecidedAt:     o.now().UTC(),
		}, o.policy)
	}

	if runCtx.Err() != nil {
		return o.abortTimeout(ctx, tx, decisionID, start, StateAggregating)
	}

	// AUDITING: the decision is only released once the record is durable.
	rec, err := o.ledger.Append(runCtx, d)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return o.abortTimeout(ctx, tx, decisionID, start, StateAuditing)
		}
		log.Error("audit append failed, decision withheld", "transaction_id", tx.ID, "error", err)
		return nil, err
	}

	o.release(ctx, tx, d)
	elapsed := o.now().Sub(start)
	metrics.PipelineDuration.WithLabelValues(string(StateCompleted)).Observe(elapsed.Seconds())
	span.SetAttributes(traces.Action(string(d.Action)), traces.Score(d.Score), traces.PipelineState(string(StateCompleted)))
	log.Info("transaction scored",
		"transaction_id", tx.ID, "decision_id", d.ID,
		"action", d.Action, "score", d.Score, "elapsed_ms", elapsed.Milliseconds())

	return &Result{Decision: d, AuditRecord: rec, State: StateCompleted, Elapsed: elapsed}, nil
}

// featurize loads the history window and extracts the feature vector,
// applying the missing-history policy.
func (o *Orchestrator) featurize(ctx context.Context, tx *transaction.Transaction) (feature.Vector, error) {
	history, err := o.history.Window(ctx, tx.AccountID, tx.Timestamp)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.L(ctx).Warn("history load failed, treating as unknown account",
			"account_id", tx.AccountID, "error", err)
		history = nil
	}

	features, err := o.extractor.Extract(tx, history)
	if errors.Is(err, feature.ErrFeatureUnavailable) {
		if o.onMissingHistory == MissingHistoryReject {
			return nil, fmt.Errorf("%w: account %s has no history", feature.ErrFeatureUnavailable, tx.AccountID)
		}
		return o.extractor.Neutral(tx)
	}
	return features, err
}

// abortTimeout handles an exhausted budget: the run is aborted and a
// fail-safe review decision is audited under a short grace context that
// survives the original deadline.
func (o *Orchestrator) abortTimeout(ctx context.Context, tx *transaction.Transaction, decisionID string, start time.Time, at State) (*Result, error) {
	metrics.PipelineAbortsTotal.WithLabelValues(AbortTimeout).Inc()
	o.stats.aborted.Add(1)
	o.stats.failsafe.Add(1)
	logging.L(ctx).Warn("scoring budget exhausted",
		"transaction_id", tx.ID, "stage", string(at))

	d := decision.FailsafeReview(decisionID, tx.ID, tx.AccountID,
		fmt.Sprintf("scoring budget exhausted during %s", at), o.now().UTC())

	graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
	defer cancel()

	rec, err := o.ledger.Append(graceCtx, d)
	if err != nil {
		logging.L(ctx).Error("audit append failed for aborted run, decision withheld",
			"transaction_id", tx.ID, "error", err)
		return nil, err
	}

	o.release(ctx, tx, d)
	elapsed := o.now().Sub(start)
	metrics.PipelineDuration.WithLabelValues(string(StateAborted)).Observe(elapsed.Seconds())
	return &Result{Decision: d, AuditRecord: rec, State: StateAborted, Elapsed: elapsed}, nil
}

// release counts the decision and fires post-decision side effects:
// history append and the decision hook, both best-effort.
func (o *Orchestrator) release(ctx context.Context, tx *transaction.Transaction, d *decision.Decision) {
	o.stats.total.Add(1)
	switch d.Action {
	case decision.ActionAllow:
		o.stats.allowed.Add(1)
	case decision.ActionReview:
		o.stats.reviewed.Add(1)
	case decision.ActionBlock:
		o.stats.blocked.Add(1)
	}
	metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()

	// Blocked transactions never settled, so they stay out of the window.
	if d.Action != decision.ActionBlock {
		if amount, err := tx.AmountValue(); err == nil {
			entry := transaction.HistoryEntry{
				Counterparty:     tx.Counterparty,
				Amount:           amount,
				MerchantCategory: tx.MerchantCategory,
				Location:         tx.Location,
				Channel:          tx.Channel,
				Timestamp:        tx.Timestamp,
			}
			accountID := tx.AccountID
			go func() {
				hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = o.history.Append(hctx, accountID, entry)
			}()
		}
	}

	if o.onDecision != nil {
		go o.onDecision(d)
	}
}
