package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanzdmr/fraudgate/internal/ensemble"
	"github.com/okanzdmr/fraudgate/internal/rules"
)

var testPolicy = Policy{AllowBelow: 0.3, BlockAbove: 0.8}

func input(combined float64, verdicts ...rules.Verdict) Input {
	return Input{
		DecisionID:    "dec_001",
		TransactionID: "txn_001",
		AccountID:     "acct_1",
		Verdicts:      verdicts,
		Combined:      combined,
		DecidedAt:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestAggregate_ScoreBands(t *testing.T) {
	tests := []struct {
		score float64
		want  Action
	}{
		{0.0, ActionAllow},
		{0.29, ActionAllow},
		{0.3, ActionReview}, // boundary resolves to the stricter band
		{0.5, ActionReview},
		{0.79, ActionReview},
		{0.8, ActionBlock}, // boundary resolves to the stricter band
		{0.95, ActionBlock},
	}

	for _, tc := range tests {
		d := Aggregate(input(tc.score), testPolicy)
		assert.Equal(t, tc.want, d.Action, "score %v", tc.score)
	}
}

func TestAggregate_BlockVerdictForcesBlock(t *testing.T) {
	d := Aggregate(input(0.05, rules.Verdict{
		Rule:      "blacklisted_counterparty",
		Triggered: true,
		Severity:  rules.SeverityBlock,
		Reason:    "counterparty is blacklisted",
	}), testPolicy)

	assert.Equal(t, ActionBlock, d.Action)
	assert.Contains(t, d.Reasons, "counterparty is blacklisted")
}

func TestAggregate_UntriggeredBlockVerdictDoesNotForce(t *testing.T) {
	d := Aggregate(input(0.1, rules.Verdict{
		Rule:     "amount_ceiling",
		Severity: rules.SeverityBlock, // not triggered
	}), testPolicy)

	assert.Equal(t, ActionAllow, d.Action)
}

func TestAggregate_IsPure(t *testing.T) {
	in := input(0.5, rules.Verdict{Rule: "late_night", Triggered: true, Severity: rules.SeverityWarn, Reason: "late night"})
	in.Scores = []ensemble.Score{{ModelID: "xgboost", Version: "2.1.0", Value: 0.5}}

	first := Aggregate(in, testPolicy)
	second := Aggregate(in, testPolicy)

	require.Equal(t, first, second)
	assert.Equal(t, in.DecidedAt, first.DecidedAt)
}

func TestAggregate_CarriesDegradedFlag(t *testing.T) {
	in := input(0.1)
	in.Degraded = true
	d := Aggregate(in, testPolicy)

	assert.True(t, d.Degraded)
	assert.Contains(t, d.Recommendations, "scoring ran degraded; consider re-scoring this transaction")
}

func TestAggregate_ReasonsAndRecommendationsNeverEmpty(t *testing.T) {
	for _, score := range []float64{0.0, 0.5, 0.9} {
		d := Aggregate(input(score), testPolicy)
		assert.NotEmpty(t, d.Reasons, "score %v", score)
		assert.NotEmpty(t, d.Recommendations, "score %v", score)
	}
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskLow},
		{0.59, RiskLow},
		{0.6, RiskMedium},
		{0.79, RiskMedium},
		{0.8, RiskHigh},
		{0.89, RiskHigh},
		{0.9, RiskCritical},
		{1.0, RiskCritical},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, RiskLevelFor(tc.score), "score %v", tc.score)
	}
}

func TestFailsafeReview(t *testing.T) {
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d := FailsafeReview("dec_002", "txn_002", "acct_2", "model quorum not met", at)

	assert.Equal(t, ActionReview, d.Action)
	assert.True(t, d.Failsafe)
	assert.True(t, d.Degraded)
	assert.Equal(t, at, d.DecidedAt)
	assert.Contains(t, d.Reasons, "model quorum not met")
}

func TestOverrideBlock_OnFailsafeDecision(t *testing.T) {
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d := FailsafeReview("dec_003", "txn_003", "acct_3", "model quorum not met", at)
	d.OverrideBlock("a blocking rule was triggered")

	assert.Equal(t, ActionBlock, d.Action)
	assert.True(t, d.Failsafe)
	assert.True(t, d.Degraded)
	assert.Contains(t, d.Reasons, "a blocking rule was triggered")
	assert.Contains(t, d.Recommendations, "block the transaction and open a fraud case")
}

func TestAggregate_HoldFundsOnHighRiskReview(t *testing.T) {
	policy := Policy{AllowBelow: 0.3, BlockAbove: 0.95}
	d := Aggregate(input(0.85), policy)

	require.Equal(t, ActionReview, d.Action)
	assert.Equal(t, RiskHigh, d.RiskLevel)
	assert.Contains(t, d.Recommendations, "hold funds until review completes")
}
