// Package ensemble scores feature vectors against a set of fraud models
// running concurrently under a deadline. A quorum of responding models is
// required; scores combine as a weight-normalized mean with stale models
// excluded.
package ensemble

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/okanzdmr/fraudgate/internal/feature"
)

// ErrInsufficientQuorum means too few models produced a score before the
// deadline. Scoring cannot proceed; callers fall back to a fail-safe
// review decision.
var ErrInsufficientQuorum = errors.New("ensemble: insufficient model quorum")

// ModelInfo is a model's identity and training metadata.
type ModelInfo struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trainedAt"`
}

// Model produces a fraud probability in [0, 1] for a feature vector.
type Model interface {
	Info() ModelInfo
	Score(ctx context.Context, features feature.Vector) (float64, error)
}

// Score is one model's result.
type Score struct {
	ModelID string        `json:"modelId"`
	Version string        `json:"version"`
	Value   float64       `json:"value"`
	Latency time.Duration `json:"-"`
}

// Registry supplies the current model set.
type Registry interface {
	Models() []Model
}

// StaticRegistry is a fixed Registry.
type StaticRegistry struct {
	models []Model
}

// NewStaticRegistry creates a registry over a fixed model set.
func NewStaticRegistry(models ...Model) *StaticRegistry {
	return &StaticRegistry{models: models}
}

func (r *StaticRegistry) Models() []Model {
	return r.models
}

// Combine folds per-model scores into a single probability using a
// weight-normalized mean. Models without a configured weight default to
// weight 1. Returns 0 for an empty score set.
func Combine(scores []Score, weights map[string]float64) float64 {
	var weighted, total float64
	for _, s := range scores {
		w, ok := weights[s.ModelID]
		if !ok {
			w = 1
		}
		if w <= 0 {
			continue
		}
		weighted += w * s.Value
		total += w
	}
	if total == 0 {
		return 0
	}
	combined := weighted / total
	if combined < 0 {
		combined = 0
	}
	if combined > 1 {
		combined = 1
	}
	return math.Round(combined*10000) / 10000
}
