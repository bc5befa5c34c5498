package ensemble

import (
	"context"
	"math"
	"time"

	"github.com/okanzdmr/fraudgate/internal/feature"
)

// Built-in model IDs.
const (
	ModelXGBoost      = "xgboost"
	ModelLightGBM     = "lightgbm"
	ModelRandomForest = "random_forest"
)

// DefaultModels returns the built-in model set with the given training
// timestamp on each.
func DefaultModels(trainedAt time.Time) []Model {
	return []Model{
		&gradientModel{info: ModelInfo{ID: ModelXGBoost, Version: "2.1.0", TrainedAt: trainedAt}},
		&velocityModel{info: ModelInfo{ID: ModelLightGBM, Version: "1.4.2", TrainedAt: trainedAt}},
		&forestModel{info: ModelInfo{ID: ModelRandomForest, Version: "3.0.1", TrainedAt: trainedAt}},
	}
}

// normAmount maps amount_log into [0, 1] against the amount ceiling.
func normAmount(fv feature.Vector) float64 {
	v, _ := fv.Get(feature.NameAmountLog)
	n := v / math.Log1p(100000)
	if n > 1 {
		n = 1
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return math.Round(v*10000) / 10000
}

// gradientModel weights the monetary signals most heavily.
type gradientModel struct {
	info ModelInfo
}

func (m *gradientModel) Info() ModelInfo { return m.info }

func (m *gradientModel) Score(ctx context.Context, fv feature.Vector) (float64, error) {
	suspicious, _ := fv.Get(feature.NameIsSuspiciousAmount)
	high, _ := fv.Get(feature.NameIsHighAmount)
	merchant, _ := fv.Get(feature.NameMerchantRisk)
	velocity, _ := fv.Get(feature.NameVelocityRatio)
	late, _ := fv.Get(feature.NameIsLateNight)

	score := 0.35*normAmount(fv) +
		0.20*suspicious +
		0.10*high +
		0.15*merchant +
		0.12*velocity +
		0.08*late
	return clamp01(score), nil
}

// velocityModel leans on behavioral signals: spend rate, novelty, geography.
type velocityModel struct {
	info ModelInfo
}

func (m *velocityModel) Info() ModelInfo { return m.info }

func (m *velocityModel) Score(ctx context.Context, fv feature.Vector) (float64, error) {
	velocity, _ := fv.Get(feature.NameVelocityRatio)
	novelty, _ := fv.Get(feature.NameCounterpartyNovelty)
	geo, _ := fv.Get(feature.NameGeoMismatch)
	suspicious, _ := fv.Get(feature.NameIsSuspiciousAmount)
	late, _ := fv.Get(feature.NameIsLateNight)

	score := 0.30*velocity +
		0.25*novelty +
		0.20*geo +
		0.15*suspicious +
		0.10*late
	return clamp01(score), nil
}

// forestModel averages a set of independent threshold votes.
type forestModel struct {
	info ModelInfo
}

func (m *forestModel) Info() ModelInfo { return m.info }

func (m *forestModel) Score(ctx context.Context, fv feature.Vector) (float64, error) {
	amount, _ := fv.Get(feature.NameAmount)
	velocity, _ := fv.Get(feature.NameVelocityRatio)
	novelty, _ := fv.Get(feature.NameCounterpartyNovelty)
	merchant, _ := fv.Get(feature.NameMerchantRisk)
	geo, _ := fv.Get(feature.NameGeoMismatch)
	late, _ := fv.Get(feature.NameIsLateNight)

	votes := []bool{
		amount >= feature.HighAmount,
		amount >= feature.SuspiciousAmount,
		velocity >= 0.3,
		velocity >= 0.7,
		novelty >= 0.5,
		merchant == 1,
		geo == 1,
		late == 1 && amount >= 1000,
	}

	positive := 0
	for _, v := range votes {
		if v {
			positive++
		}
	}
	return clamp01(float64(positive) / float64(len(votes))), nil
}
