package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"powerwatch/artifacts"
	"powerwatch/dataset"
	"powerwatch/ml"
)

func main() {
	dataPath := flag.String("data", "./data/household_power_consumption.txt", "training dataset (.csv or .txt)")
	artifactDir := flag.String("artifacts", "./models", "artifact output directory")
	estimators := flag.Int("estimators", ml.DefaultEstimators, "number of isolation trees")
	contamination := flag.Float64("contamination", ml.DefaultContamination, "expected anomaly fraction")
	flag.Parse()

	ds, err := dataset.LoadFile(*dataPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	if ds.Len() == 0 {
		log.Fatal("dataset has no usable rows")
	}
	log.Printf("loaded %d rows (%d dropped) from %s", ds.Len(), ds.Dropped, *dataPath)

	matrix, err := ds.FeatureMatrix(dataset.FeatureColumns)
	if err != nil {
		log.Fatalf("failed to build feature matrix: %v", err)
	}

	scaler := ml.NewStandardScaler()
	scaled, err := scaler.FitTransform(matrix)
	if err != nil {
		log.Fatalf("failed to scale features: %v", err)
	}

	forest := ml.NewIsolationForest()
	forest.Estimators = *estimators
	forest.Contamination = *contamination

	start := time.Now()
	if err := forest.Fit(scaled); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}
	elapsed := time.Since(start)

	labels, err := forest.Predict(scaled)
	if err != nil {
		log.Fatalf("failed to score training data: %v", err)
	}
	var flagged int
	for _, label := range labels {
		if label == -1 {
			flagged++
		}
	}
	log.Printf("trained in %s, %d/%d training rows flagged (%.2f%%)",
		elapsed.Round(time.Millisecond), flagged, len(labels),
		float64(flagged)/float64(len(labels))*100)

	store := artifacts.NewStore(*artifactDir)
	pair := &artifacts.Pair{
		Detector: forest,
		Scaler:   scaler,
		Meta: artifacts.Meta{
			TrainedAt: time.Now().UTC(),
			TrainRows: ds.Len(),
			Source:    *dataPath,
		},
	}
	if err := store.Save(pair); err != nil {
		log.Fatalf("failed to save artifacts: %v", err)
	}

	fmt.Printf("model saved to %s (version %d)\n", *artifactDir, pair.Meta.Version)
}
