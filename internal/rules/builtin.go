package rules

import (
	"context"
	"fmt"

	"github.com/okanzdmr/fraudgate/internal/feature"
	"github.com/okanzdmr/fraudgate/internal/transaction"
)

// DefaultRules builds the standard rule set in evaluation order.
// blacklist entries are counterparty IDs that are always blocked.
func DefaultRules(maxAmount, suspiciousAmount, highAmount float64, blacklist []string) []Rule {
	blocked := make(map[string]bool, len(blacklist))
	for _, cp := range blacklist {
		blocked[cp] = true
	}
	return []Rule{
		&AmountCeilingRule{Max: maxAmount},
		&BlacklistRule{Blocked: blocked},
		&SuspiciousAmountRule{Threshold: suspiciousAmount},
		&HighAmountRule{Threshold: highAmount},
		&LateNightRule{},
		&MerchantCategoryRule{},
		&GeoMismatchRule{},
		&VelocityRule{Threshold: 0.5},
	}
}

// AmountCeilingRule blocks any transaction above the hard amount ceiling.
type AmountCeilingRule struct {
	Max float64
}

func (r *AmountCeilingRule) Name() string { return "amount_ceiling" }

func (r *AmountCeilingRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	amount, _ := features.Get(feature.NameAmount)
	if amount > r.Max {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityBlock,
			Reason:    fmt.Sprintf("amount %.2f exceeds the maximum of %.0f", amount, r.Max),
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}

// BlacklistRule blocks transactions to blacklisted counterparties.
type BlacklistRule struct {
	Blocked map[string]bool
}

func (r *BlacklistRule) Name() string { return "blacklisted_counterparty" }

func (r *BlacklistRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	if r.Blocked[tx.Counterparty] {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityBlock,
			Reason:    "counterparty is blacklisted",
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}

// SuspiciousAmountRule flags amounts at or above the suspicious threshold.
type SuspiciousAmountRule struct {
	Threshold float64
}

func (r *SuspiciousAmountRule) Name() string { return "suspicious_amount" }

func (r *SuspiciousAmountRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	amount, _ := features.Get(feature.NameAmount)
	if amount >= r.Threshold {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityReview,
			Reason:    fmt.Sprintf("amount %.2f is at or above the suspicious threshold of %.0f", amount, r.Threshold),
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}

// HighAmountRule warns on elevated amounts below the suspicious threshold.
type HighAmountRule struct {
	Threshold float64
}

func (r *HighAmountRule) Name() string { return "high_amount" }

func (r *HighAmountRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	amount, _ := features.Get(feature.NameAmount)
	if amount >= r.Threshold {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityWarn,
			Reason:    fmt.Sprintf("amount %.2f is at or above the elevated threshold of %.0f", amount, r.Threshold),
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}

// LateNightRule warns on transactions in the late-night window.
type LateNightRule struct{}

func (r *LateNightRule) Name() string { return "late_night" }

func (r *LateNightRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	if late, _ := features.Get(feature.NameIsLateNight); late == 1 {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityWarn,
			Reason:    fmt.Sprintf("transaction at hour %d falls in the late-night window", tx.Timestamp.Hour()),
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}

// MerchantCategoryRule flags high-risk merchant categories.
type MerchantCategoryRule struct{}

func (r *MerchantCategoryRule) Name() string { return "high_risk_merchant" }

func (r *MerchantCategoryRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	if risk, _ := features.Get(feature.NameMerchantRisk); risk == 1 {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityReview,
			Reason:    fmt.Sprintf("merchant category %q is high risk", tx.MerchantCategory),
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}

// GeoMismatchRule warns when the transaction location has never been
// seen in the account's recent history.
type GeoMismatchRule struct{}

func (r *GeoMismatchRule) Name() string { return "geo_mismatch" }

func (r *GeoMismatchRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	if mismatch, _ := features.Get(feature.NameGeoMismatch); mismatch == 1 {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityWarn,
			Reason:    fmt.Sprintf("location %q not seen in recent account activity", tx.Location),
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}

// VelocityRule flags spend-rate spikes against the 24h baseline.
type VelocityRule struct {
	Threshold float64 // velocity_ratio at or above this triggers
}

func (r *VelocityRule) Name() string { return "velocity_spike" }

func (r *VelocityRule) Evaluate(ctx context.Context, tx *transaction.Transaction, features feature.Vector) Verdict {
	ratio, _ := features.Get(feature.NameVelocityRatio)
	if ratio >= r.Threshold && ratio > 0 {
		return Verdict{
			Rule:      r.Name(),
			Triggered: true,
			Severity:  SeverityReview,
			Reason:    fmt.Sprintf("spend velocity %.3f is above the account baseline", ratio),
		}
	}
	return Verdict{Rule: r.Name(), Severity: SeverityInfo}
}
