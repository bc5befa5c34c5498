package ensemble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okanzdmr/fraudgate/internal/circuitbreaker"
	"github.com/okanzdmr/fraudgate/internal/feature"
	"github.com/okanzdmr/fraudgate/internal/transaction"
)

func defaultWeights() map[string]float64 {
	return map[string]float64{
		ModelXGBoost:      0.4,
		ModelLightGBM:     0.3,
		ModelRandomForest: 0.3,
	}
}

func testVector(t *testing.T, amount string) feature.Vector {
	t.Helper()
	tx := &transaction.Transaction{
		ID:               "txn_001",
		AccountID:        "acct_1",
		Counterparty:     "merchant_1",
		Amount:           amount,
		Currency:         "USD",
		Type:             transaction.TypePurchase,
		Channel:          transaction.ChannelOnline,
		MerchantCategory: "grocery",
		Timestamp:        time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	v, err := feature.NewExtractor().Extract(tx, []transaction.HistoryEntry{})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// stubModel returns a fixed value, optionally failing or sleeping.
type stubModel struct {
	info  ModelInfo
	value float64
	err   error
	delay time.Duration
}

func (m *stubModel) Info() ModelInfo { return m.info }

func (m *stubModel) Score(ctx context.Context, fv feature.Vector) (float64, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return m.value, m.err
}

func stub(id string, value float64) *stubModel {
	return &stubModel{info: ModelInfo{ID: id, Version: "1.0.0", TrainedAt: time.Now()}, value: value}
}

func TestScore_AllModelsRespond(t *testing.T) {
	reg := NewStaticRegistry(stub(ModelXGBoost, 0.2), stub(ModelLightGBM, 0.4), stub(ModelRandomForest, 0.6))
	s := NewScorer(reg, defaultWeights(), 2, 100*time.Millisecond)

	scores, err := s.Score(context.Background(), testVector(t, "100"))
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(scores))
	}
	// Registry order preserved.
	if scores[0].ModelID != ModelXGBoost || scores[2].ModelID != ModelRandomForest {
		t.Fatalf("unexpected order: %+v", scores)
	}
	if scores[0].Version != "1.0.0" {
		t.Fatalf("score missing model version: %+v", scores[0])
	}
}

func TestScore_QuorumMetDespiteOneFailure(t *testing.T) {
	failing := stub(ModelLightGBM, 0)
	failing.err = errors.New("model unavailable")
	reg := NewStaticRegistry(stub(ModelXGBoost, 0.2), failing, stub(ModelRandomForest, 0.6))
	s := NewScorer(reg, defaultWeights(), 2, 100*time.Millisecond)

	scores, err := s.Score(context.Background(), testVector(t, "100"))
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
	for _, sc := range scores {
		if sc.ModelID == ModelLightGBM {
			t.Fatal("failed model should not contribute a score")
		}
	}
}

func TestScore_InsufficientQuorum(t *testing.T) {
	a := stub(ModelXGBoost, 0)
	a.err = errors.New("down")
	b := stub(ModelLightGBM, 0)
	b.err = errors.New("down")
	reg := NewStaticRegistry(a, b, stub(ModelRandomForest, 0.5))
	s := NewScorer(reg, defaultWeights(), 2, 100*time.Millisecond)

	_, err := s.Score(context.Background(), testVector(t, "100"))
	if !errors.Is(err, ErrInsufficientQuorum) {
		t.Fatalf("expected ErrInsufficientQuorum, got %v", err)
	}
}

func TestScore_SlowModelDropped(t *testing.T) {
	slow := stub(ModelLightGBM, 0.9)
	slow.delay = 500 * time.Millisecond
	reg := NewStaticRegistry(stub(ModelXGBoost, 0.2), slow, stub(ModelRandomForest, 0.4))
	s := NewScorer(reg, defaultWeights(), 2, 50*time.Millisecond)

	start := time.Now()
	scores, err := s.Score(context.Background(), testVector(t, "100"))
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Fatal("join waited for the slow model")
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores without the slow model, got %d", len(scores))
	}
}

func TestScore_StaleModelExcluded(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	fresh := stub(ModelXGBoost, 0.2)
	fresh.info.TrainedAt = now.Add(-30 * 24 * time.Hour)
	stale := stub(ModelLightGBM, 0.9)
	stale.info.TrainedAt = now.Add(-120 * 24 * time.Hour)

	reg := NewStaticRegistry(fresh, stale, stub(ModelRandomForest, 0.4))
	s := NewScorer(reg, defaultWeights(), 2, 100*time.Millisecond,
		WithMaxModelAge(90*24*time.Hour),
		WithClock(func() time.Time { return now }))

	scores, err := s.Score(context.Background(), testVector(t, "100"))
	if err != nil {
		t.Fatal(err)
	}
	for _, sc := range scores {
		if sc.ModelID == ModelLightGBM {
			t.Fatal("stale model should be excluded")
		}
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
}

func TestScore_OpenBreakerSkipsModel(t *testing.T) {
	b := circuitbreaker.New(1, time.Minute)
	b.RecordFailure(ModelLightGBM) // trips open

	reg := NewStaticRegistry(stub(ModelXGBoost, 0.2), stub(ModelLightGBM, 0.9), stub(ModelRandomForest, 0.4))
	s := NewScorer(reg, defaultWeights(), 2, 100*time.Millisecond, WithBreaker(b))

	scores, err := s.Score(context.Background(), testVector(t, "100"))
	if err != nil {
		t.Fatal(err)
	}
	for _, sc := range scores {
		if sc.ModelID == ModelLightGBM {
			t.Fatal("model with open circuit should be skipped")
		}
	}
}

func TestCombine_WeightedMean(t *testing.T) {
	scores := []Score{
		{ModelID: ModelXGBoost, Value: 0.5},
		{ModelID: ModelLightGBM, Value: 0.8},
		{ModelID: ModelRandomForest, Value: 0.2},
	}
	// (0.4*0.5 + 0.3*0.8 + 0.3*0.2) / 1.0 = 0.5
	if got := Combine(scores, defaultWeights()); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestCombine_RenormalizesMissingModels(t *testing.T) {
	scores := []Score{
		{ModelID: ModelXGBoost, Value: 0.6},
		{ModelID: ModelRandomForest, Value: 0.2},
	}
	// (0.4*0.6 + 0.3*0.2) / 0.7 = 0.4286
	got := Combine(scores, defaultWeights())
	if got != 0.4286 {
		t.Fatalf("expected 0.4286, got %v", got)
	}
}

func TestCombine_UnknownModelDefaultsToWeightOne(t *testing.T) {
	scores := []Score{{ModelID: "experimental", Value: 0.9}}
	if got := Combine(scores, defaultWeights()); got != 0.9 {
		t.Fatalf("expected 0.9, got %v", got)
	}
}

func TestCombine_Empty(t *testing.T) {
	if got := Combine(nil, defaultWeights()); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestDefaultModels_DeterministicAndBounded(t *testing.T) {
	fv := testVector(t, "15000")
	for _, m := range DefaultModels(time.Now()) {
		first, err := m.Score(context.Background(), fv)
		if err != nil {
			t.Fatal(err)
		}
		second, err := m.Score(context.Background(), fv)
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Fatalf("model %s is not deterministic: %v vs %v", m.Info().ID, first, second)
		}
		if first < 0 || first > 1 {
			t.Fatalf("model %s score out of range: %v", m.Info().ID, first)
		}
	}
}

func TestDefaultModels_HigherRiskScoresHigher(t *testing.T) {
	clean := testVector(t, "50")

	riskyTx := &transaction.Transaction{
		ID:               "txn_002",
		AccountID:        "acct_1",
		Counterparty:     "unknown_cp",
		Amount:           "20000",
		Currency:         "USD",
		Type:             transaction.TypeTransfer,
		Channel:          transaction.ChannelOnline,
		MerchantCategory: "gambling",
		Timestamp:        time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC),
	}
	risky, err := feature.NewExtractor().Extract(riskyTx, []transaction.HistoryEntry{
		{Counterparty: "merchant_1", Amount: 20, Timestamp: riskyTx.Timestamp.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, m := range DefaultModels(time.Now()) {
		low, _ := m.Score(context.Background(), clean)
		high, _ := m.Score(context.Background(), risky)
		if high <= low {
			t.Errorf("model %s: risky score %v not above clean score %v", m.Info().ID, high, low)
		}
	}
}
