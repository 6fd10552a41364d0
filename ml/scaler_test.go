package ml

import (
	"math"
	"testing"
)

func TestStandardScalerFitTransform(t *testing.T) {
	X := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
		{4, 40},
	}

	scaler := NewStandardScaler()
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scaled) != len(X) {
		t.Fatalf("expected %d rows, got %d", len(X), len(scaled))
	}

	for j := 0; j < 2; j++ {
		var sum, sumSq float64
		for i := range scaled {
			sum += scaled[i][j]
			sumSq += scaled[i][j] * scaled[i][j]
		}
		mean := sum / float64(len(scaled))
		variance := sumSq/float64(len(scaled)) - mean*mean
		if math.Abs(mean) > 1e-9 {
			t.Fatalf("expected zero mean for column %d, got %f", j, mean)
		}
		if math.Abs(variance-1) > 1e-9 {
			t.Fatalf("expected unit variance for column %d, got %f", j, variance)
		}
	}
}

func TestStandardScalerConstantColumn(t *testing.T) {
	X := [][]float64{
		{5, 1},
		{5, 2},
		{5, 3},
	}

	scaler := NewStandardScaler()
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scaler.Scale[0] != 1 {
		t.Fatalf("expected scale 1 for constant column, got %f", scaler.Scale[0])
	}
	for i := range scaled {
		if scaled[i][0] != 0 {
			t.Fatalf("expected 0 for constant column row %d, got %f", i, scaled[i][0])
		}
	}
}

func TestStandardScalerNotFitted(t *testing.T) {
	scaler := NewStandardScaler()
	if _, err := scaler.Transform([][]float64{{1, 2}}); err == nil {
		t.Fatal("expected error for unfitted scaler")
	}
}

func TestStandardScalerDimensionMismatch(t *testing.T) {
	scaler := NewStandardScaler()
	if err := scaler.Fit([][]float64{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := scaler.Transform([][]float64{{1, 2, 3}}); err == nil {
		t.Fatal("expected error for mismatched width")
	}
}

func TestStandardScalerRaggedInput(t *testing.T) {
	scaler := NewStandardScaler()
	if err := scaler.Fit([][]float64{{1, 2}, {3}}); err == nil {
		t.Fatal("expected error for ragged matrix")
	}
}
