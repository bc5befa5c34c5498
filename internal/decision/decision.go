// Package decision folds rule verdicts and ensemble scores into the
// final action. Aggregation is pure: the same inputs always produce the
// same decision, and timestamps are supplied by the caller.
package decision

import (
	"fmt"
	"time"

	"github.com/okanzdmr/fraudgate/internal/ensemble"
	"github.com/okanzdmr/fraudgate/internal/rules"
)

// Action is the final disposition of a transaction.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// RiskLevel buckets the combined score for reporting.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk level cutoffs.
const (
	mediumRiskAt   = 0.6
	highRiskAt     = 0.8
	criticalRiskAt = 0.9
)

// RiskLevelFor maps a combined score to its risk level.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= criticalRiskAt:
		return RiskCritical
	case score >= highRiskAt:
		return RiskHigh
	case score >= mediumRiskAt:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Policy holds the score thresholds. Scores below AllowBelow are allowed,
// scores at or above BlockAbove are blocked, everything between goes to
// review. Boundary values resolve to the stricter band.
type Policy struct {
	AllowBelow float64 `json:"allowBelow"`
	BlockAbove float64 `json:"blockAbove"`
}

// Decision is the fully-assembled scoring outcome.
type Decision struct {
	ID              string           `json:"decisionId"`
	TransactionID   string           `json:"transactionId"`
	AccountID       string           `json:"accountId"`
	Action          Action           `json:"action"`
	Score           float64          `json:"score"`
	RiskLevel       RiskLevel        `json:"riskLevel"`
	ModelScores     []ensemble.Score `json:"modelScores,omitempty"`
	Verdicts        []rules.Verdict  `json:"verdicts,omitempty"`
	Reasons         []string         `json:"reasons"`
	Recommendations []string         `json:"recommendations"`
	Degraded        bool             `json:"degraded,omitempty"`
	Failsafe        bool             `json:"failsafe,omitempty"`
	DecidedAt       time.Time        `json:"decidedAt"`
}

// Input carries everything Aggregate needs.
type Input struct {
	DecisionID    string
	TransactionID string
	AccountID     string
	Verdicts      []rules.Verdict
	Scores        []ensemble.Score
	Combined      float64
	Degraded      bool
	DecidedAt     time.Time
}

// Aggregate produces the final decision. A BLOCK-severity triggered
// verdict forces a block regardless of the model score; otherwise the
// combined score is held against the policy thresholds.
func Aggregate(in Input, p Policy) *Decision {
	d := &Decision{
		ID:            in.DecisionID,
		TransactionID: in.TransactionID,
		AccountID:     in.AccountID,
		Score:         in.Combined,
		RiskLevel:     RiskLevelFor(in.Combined),
		ModelScores:   in.Scores,
		Verdicts:      in.Verdicts,
		Degraded:      in.Degraded,
		DecidedAt:     in.DecidedAt,
	}

	forcedBlock := false
	for _, v := range in.Verdicts {
		if v.Triggered && v.Severity == rules.SeverityBlock {
			forcedBlock = true
		}
		if v.Triggered && v.Reason != "" {
			d.Reasons = append(d.Reasons, v.Reason)
		}
	}

	switch {
	case forcedBlock:
		d.Action = ActionBlock
		d.Reasons = append(d.Reasons, "a blocking rule was triggered")
	case in.Combined >= p.BlockAbove:
		d.Action = ActionBlock
		d.Reasons = append(d.Reasons, fmt.Sprintf("combined score %.4f is at or above the block threshold %.2f", in.Combined, p.BlockAbove))
	case in.Combined >= p.AllowBelow:
		d.Action = ActionReview
		d.Reasons = append(d.Reasons, fmt.Sprintf("combined score %.4f is in the review band [%.2f, %.2f)", in.Combined, p.AllowBelow, p.BlockAbove))
	default:
		d.Action = ActionAllow
		if len(d.Reasons) == 0 {
			d.Reasons = append(d.Reasons, "no risk signals detected")
		}
	}

	d.Recommendations = recommendationsFor(d)
	return d
}

// OverrideBlock forces the decision to BLOCK. A triggered blocking
// verdict outranks every score path, including the fail-safe one, so
// callers apply this after attaching verdicts to a non-aggregated
// decision.
func (d *Decision) OverrideBlock(reason string) {
	d.Action = ActionBlock
	d.Reasons = append(d.Reasons, reason)
	d.Recommendations = recommendationsFor(d)
}

// FailsafeReview builds the conservative decision used when scoring
// could not complete: quorum failure or an exhausted request budget.
func FailsafeReview(decisionID, transactionID, accountID, reason string, decidedAt time.Time) *Decision {
	return &Decision{
		ID:            decisionID,
		TransactionID: transactionID,
		AccountID:     accountID,
		Action:        ActionReview,
		Score:         0,
		RiskLevel:     RiskLow,
		Reasons:       []string{reason},
		Recommendations: []string{
			"route the transaction to manual review",
			"retry scoring once the pipeline recovers",
		},
		Degraded:  true,
		Failsafe:  true,
		DecidedAt: decidedAt,
	}
}

func recommendationsFor(d *Decision) []string {
	var recs []string
	switch d.Action {
	case ActionBlock:
		recs = append(recs, "block the transaction and open a fraud case")
		recs = append(recs, "notify the account holder through a verified channel")
	case ActionReview:
		recs = append(recs, "route the transaction to manual review")
		if d.RiskLevel == RiskHigh || d.RiskLevel == RiskCritical {
			recs = append(recs, "hold funds until review completes")
		}
	case ActionAllow:
		recs = append(recs, "no action required")
	}
	if d.Degraded {
		recs = append(recs, "scoring ran degraded; consider re-scoring this transaction")
	}
	return recs
}
