// Package feature turns a transaction plus its account history into the
// numeric vector that rules and models consume. Extraction is pure: given
// the same transaction and history it always produces the same vector.
package feature

import (
	"errors"
	"math"
	"time"

	"github.com/okanzdmr/fraudgate/internal/transaction"
)

// ErrFeatureUnavailable signals that required history aggregates are
// missing. The caller decides between neutral defaults and rejection.
var ErrFeatureUnavailable = errors.New("feature: required history unavailable")

// Amount thresholds from the scoring policy.
const (
	SuspiciousAmount = 10000
	HighAmount       = 5000
)

// Late-night window bounds (account-local hour).
const (
	lateNightStart = 22
	lateNightEnd   = 6
)

// highRiskCategories carry elevated merchant risk.
var highRiskCategories = map[string]bool{
	"gambling":       true,
	"cryptocurrency": true,
	"adult_content":  true,
}

// Feature names.
const (
	NameAmount              = "amount"
	NameAmountLog           = "amount_log"
	NameIsSuspiciousAmount  = "is_suspicious_amount"
	NameIsHighAmount        = "is_high_amount"
	NameHourOfDay           = "hour_of_day"
	NameIsLateNight         = "is_late_night"
	NameMerchantRisk        = "merchant_risk"
	NameVelocityRatio       = "velocity_ratio"
	NameCounterpartyNovelty = "counterparty_novelty"
	NameGeoMismatch         = "geo_mismatch"
	NameHistoryCount        = "history_count"
)

// Feature is a single named value in a vector.
type Feature struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Vector is an ordered feature vector.
type Vector []Feature

// Get returns the value for a named feature.
func (v Vector) Get(name string) (float64, bool) {
	for _, f := range v {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Map returns the vector as a name→value map.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v))
	for _, f := range v {
		m[f.Name] = f.Value
	}
	return m
}

// Extractor builds feature vectors from transactions.
type Extractor struct{}

// NewExtractor creates a feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract computes the feature vector for a transaction given its account
// history window. A nil history returns ErrFeatureUnavailable: velocity,
// novelty, and geo features cannot be computed without it.
func (e *Extractor) Extract(tx *transaction.Transaction, history []transaction.HistoryEntry) (Vector, error) {
	amount, err := tx.AmountValue()
	if err != nil {
		return nil, err
	}
	if history == nil {
		return nil, ErrFeatureUnavailable
	}

	hour := tx.Timestamp.Hour()

	return Vector{
		{NameAmount, amount},
		{NameAmountLog, math.Log1p(amount)},
		{NameIsSuspiciousAmount, boolFeature(amount >= SuspiciousAmount)},
		{NameIsHighAmount, boolFeature(amount >= HighAmount)},
		{NameHourOfDay, float64(hour)},
		{NameIsLateNight, boolFeature(IsLateNight(hour))},
		{NameMerchantRisk, merchantRisk(tx.MerchantCategory)},
		{NameVelocityRatio, velocityRatio(history, amount, tx.Timestamp)},
		{NameCounterpartyNovelty, counterpartyNovelty(history, tx.Counterparty)},
		{NameGeoMismatch, geoMismatch(history, tx.Location)},
		{NameHistoryCount, float64(len(history))},
	}, nil
}

// Neutral returns the vector Extract would produce for a transaction with
// an empty (but known) history: per-transaction features are real, history
// features take their cold-start values.
func (e *Extractor) Neutral(tx *transaction.Transaction) (Vector, error) {
	return e.Extract(tx, []transaction.HistoryEntry{})
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// IsLateNight reports whether the hour falls in the elevated-risk window.
func IsLateNight(hour int) bool {
	return hour < lateNightEnd || hour > lateNightStart
}

func merchantRisk(category string) float64 {
	if highRiskCategories[category] {
		return 1
	}
	return 0
}

// velocityRatio compares recent 5-minute spend (including the current
// transaction) to the 24h average 5-minute rate, log10-scaled so that a
// 10x spike maps to 0.5 and a 100x spike to 1.0.
func velocityRatio(history []transaction.HistoryEntry, amount float64, now time.Time) float64 {
	if len(history) < 2 {
		return 0
	}

	fiveMinAgo := now.Add(-5 * time.Minute)
	var total24h, spent5min float64
	for _, h := range history {
		total24h += h.Amount
		if h.Timestamp.After(fiveMinAgo) {
			spent5min += h.Amount
		}
	}
	spent5min += amount

	// 24h = 288 five-minute windows.
	avgRate := total24h / 288.0
	if avgRate <= 0 {
		return 0
	}

	ratio := spent5min / avgRate
	if ratio <= 1 {
		return 0
	}
	score := math.Log10(ratio) / 2.0
	if score > 1 {
		score = 1
	}
	return math.Round(score*1000) / 1000
}

// counterpartyNovelty scores how unfamiliar the counterparty is.
// Never seen = 0.6, seen 1-2 times = 0.3, seen 3+ = 0. An empty window
// is a cold start and scores 0.
func counterpartyNovelty(history []transaction.HistoryEntry, counterparty string) float64 {
	if len(history) == 0 {
		return 0
	}
	count := 0
	for _, h := range history {
		if h.Counterparty == counterparty {
			count++
		}
	}
	switch {
	case count >= 3:
		return 0
	case count >= 1:
		return 0.3
	default:
		return 0.6
	}
}

// geoMismatch is 1 when the transaction location has never appeared in
// the window. Transactions without a location score 0.
func geoMismatch(history []transaction.HistoryEntry, location string) float64 {
	if location == "" || len(history) == 0 {
		return 0
	}
	for _, h := range history {
		if h.Location == location {
			return 0
		}
	}
	return 1
}
