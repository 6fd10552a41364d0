package ml

import (
	"encoding/json"
	"math/rand"
	"testing"
)

// 围绕原点的正常簇加一个远离的离群点
func outlierFixture(n int) ([][]float64, int) {
	rng := rand.New(rand.NewSource(7))
	X := make([][]float64, 0, n+1)
	for i := 0; i < n; i++ {
		X = append(X, []float64{rng.Float64(), rng.Float64()})
	}
	X = append(X, []float64{10, 10})
	return X, n
}

func TestIsolationForestFlagsOutlier(t *testing.T) {
	X, outlier := outlierFixture(200)

	forest := NewIsolationForest()
	if err := forest.Fit(X); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	labels, err := forest.Predict(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels[outlier] != -1 {
		t.Fatalf("expected outlier label -1, got %d", labels[outlier])
	}

	decision, err := forest.DecisionFunction(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range decision {
		if i != outlier && v < decision[outlier] {
			t.Fatalf("expected outlier to have the lowest score, row %d scored %f < %f", i, v, decision[outlier])
		}
	}

	var flagged int
	for _, label := range labels {
		if label == -1 {
			flagged++
		}
	}
	if flagged > len(X)/10 {
		t.Fatalf("expected few anomalies, got %d of %d", flagged, len(X))
	}
}

func TestIsolationForestScoreRange(t *testing.T) {
	X, _ := outlierFixture(100)

	forest := NewIsolationForest()
	if err := forest.Fit(X); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scores, err := forest.ScoreSamples(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range scores {
		if s >= 0 || s <= -1 {
			t.Fatalf("expected score in (-1, 0), row %d got %f", i, s)
		}
	}
}

func TestIsolationForestDeterministic(t *testing.T) {
	X, _ := outlierFixture(150)

	a := NewIsolationForest()
	if err := a.Fit(X); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := NewIsolationForest()
	if err := b.Fit(X); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scoresA, err := a.ScoreSamples(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scoresB, err := b.ScoreSamples(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range scoresA {
		if scoresA[i] != scoresB[i] {
			t.Fatalf("expected identical scores at row %d, got %f and %f", i, scoresA[i], scoresB[i])
		}
	}
	if a.Offset != b.Offset {
		t.Fatalf("expected identical offsets, got %f and %f", a.Offset, b.Offset)
	}
}

func TestIsolationForestSubsampleCap(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := make([][]float64, 400)
	for i := range X {
		X[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}

	forest := NewIsolationForest()
	if err := forest.Fit(X); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forest.SampleSize != 256 {
		t.Fatalf("expected sample size 256, got %d", forest.SampleSize)
	}
	if len(forest.Trees) != DefaultEstimators {
		t.Fatalf("expected %d trees, got %d", DefaultEstimators, len(forest.Trees))
	}
}

func TestIsolationForestJSONRoundTrip(t *testing.T) {
	X, _ := outlierFixture(120)

	forest := NewIsolationForest()
	if err := forest.Fit(X); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := json.Marshal(forest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	restored := &IsolationForest{}
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, err := forest.Predict(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := restored.Predict(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("expected label %d at row %d, got %d", want[i], i, got[i])
		}
	}
}

func TestIsolationForestNotFitted(t *testing.T) {
	forest := NewIsolationForest()
	if _, err := forest.Predict([][]float64{{1, 2}}); err == nil {
		t.Fatal("expected error for unfitted forest")
	}
}

func TestIsolationForestDimensionMismatch(t *testing.T) {
	X, _ := outlierFixture(50)

	forest := NewIsolationForest()
	if err := forest.Fit(X); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := forest.ScoreSamples([][]float64{{1, 2, 3}}); err == nil {
		t.Fatal("expected error for mismatched width")
	}
}

func BenchmarkIsolationForestFit(b *testing.B) {
	X, _ := outlierFixture(500)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		forest := NewIsolationForest()
		if err := forest.Fit(X); err != nil {
			b.Fatal(err)
		}
	}
}
