package anomaly

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"powerwatch/artifacts"
	"powerwatch/dataset"
	"powerwatch/db"
	"powerwatch/events"
	"powerwatch/ml"
)

// ErrNotTrained means no fitted artifact pair is available yet.
var ErrNotTrained = errors.New("model not trained yet, call /train first")

// SampleSeed 默认数据集抽样的固定种子
const SampleSeed = 42

// Service 异常检测服务,串联加载、标准化、检测与持久化
type Service struct {
	loader *dataset.Loader
	store  *artifacts.Store
	handle *artifacts.Handle
	hub    *events.Hub
}

// NewService 创建检测服务,hub 可以为 nil
func NewService(loader *dataset.Loader, store *artifacts.Store, handle *artifacts.Handle, hub *events.Hub) *Service {
	return &Service{loader: loader, store: store, handle: handle, hub: hub}
}

// Loader exposes the dataset loader for callers that need the default path.
func (s *Service) Loader() *dataset.Loader { return s.loader }

// TrainSummary describes a finished training run.
type TrainSummary struct {
	Source     string
	DataPoints int
	Version    int64
	Duration   time.Duration
}

// TrainUpload 以上传文件训练
func (s *Service) TrainUpload(r io.Reader, filename string) (*TrainSummary, error) {
	ds, err := dataset.Parse(r, filename)
	if err != nil {
		return nil, err
	}
	return s.train(ds, "upload:"+filename)
}

// TrainDefault 以默认数据集训练
func (s *Service) TrainDefault() (*TrainSummary, error) {
	ds, err := s.loader.Default()
	if err != nil {
		return nil, err
	}
	return s.train(ds, "default")
}

func (s *Service) train(ds *dataset.Dataset, source string) (*TrainSummary, error) {
	start := time.Now()

	X, err := ds.FeatureMatrix(dataset.FeatureColumns)
	if err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, errors.New("dataset has no usable rows after cleaning")
	}

	scaler := ml.NewStandardScaler()
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	detector := ml.NewIsolationForest()
	if err := detector.Fit(scaled); err != nil {
		return nil, fmt.Errorf("fit detector: %w", err)
	}

	pair := &artifacts.Pair{
		Detector: detector,
		Scaler:   scaler,
		Meta: artifacts.Meta{
			TrainedAt: time.Now().UTC(),
			TrainRows: len(X),
			Source:    source,
		},
	}
	if err := s.store.Save(pair); err != nil {
		return nil, fmt.Errorf("persist artifacts: %w", err)
	}
	s.handle.Swap(pair)

	summary := &TrainSummary{
		Source:     source,
		DataPoints: len(X),
		Version:    pair.Meta.Version,
		Duration:   time.Since(start),
	}

	if err := db.SaveTrainingRun(db.TrainingRun{
		ID:            uuid.NewString(),
		Source:        source,
		DataPoints:    summary.DataPoints,
		Estimators:    detector.Estimators,
		Contamination: detector.Contamination,
		Version:       summary.Version,
		DurationMs:    summary.Duration.Milliseconds(),
		TrainedAt:     pair.Meta.TrainedAt,
	}); err != nil {
		zap.L().Warn("training run not recorded", zap.Error(err))
	}
	if s.hub != nil {
		s.hub.Publish(events.TrainingCompleted, events.TrainingEvent{
			Source:     source,
			DataPoints: summary.DataPoints,
			Version:    summary.Version,
			DurationMs: summary.Duration.Milliseconds(),
			TrainedAt:  pair.Meta.TrainedAt,
		})
	}
	zap.L().Info("model trained",
		zap.String("source", source),
		zap.Int("rows", summary.DataPoints),
		zap.Int64("version", summary.Version),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// DefaultQuery narrows a default-dataset detection run.
type DefaultQuery struct {
	Start       *time.Time
	End         *time.Time
	SortFeature string
	SampleSize  int
}

// DetectUpload 对上传文件运行检测
func (s *Service) DetectUpload(r io.Reader, filename string) (*Report, error) {
	pair, err := s.artifactsPair()
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Parse(r, filename)
	if err != nil {
		return nil, err
	}
	return s.detect(ds, pair, "", "upload:"+filename)
}

// DetectDefault 对默认数据集运行检测,可选时间过滤、抽样与排序
func (s *Service) DetectDefault(q DefaultQuery) (*Report, error) {
	pair, err := s.artifactsPair()
	if err != nil {
		return nil, err
	}
	ds, err := s.loader.Default()
	if err != nil {
		return nil, err
	}
	ds = ds.FilterRange(q.Start, q.End)
	if q.SampleSize > 0 {
		ds = ds.Sample(q.SampleSize, SampleSeed)
	}
	return s.detect(ds, pair, q.SortFeature, "default")
}

func (s *Service) detect(ds *dataset.Dataset, pair *artifacts.Pair, sortFeature, source string) (*Report, error) {
	start := time.Now()
	if ds.Len() == 0 {
		return emptyReport(), nil
	}

	X, err := ds.FeatureMatrix(dataset.FeatureColumns)
	if err != nil {
		return nil, err
	}
	scaled, err := pair.Scaler.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("standardize features: %w", err)
	}
	labels, err := pair.Detector.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("score rows: %w", err)
	}
	scores, err := pair.Detector.DecisionFunction(scaled)
	if err != nil {
		return nil, fmt.Errorf("score rows: %w", err)
	}

	report := shapeReport(ds, labels, scores, sortFeature)
	duration := time.Since(start)

	if err := db.SaveDetectionRun(db.DetectionRun{
		ID:                uuid.NewString(),
		Source:            source,
		TotalRecords:      report.TotalRecords,
		AnomalyCount:      report.AnomalyCount,
		AnomalyPercentage: report.AnomalyPercentage,
		DurationMs:        duration.Milliseconds(),
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		zap.L().Warn("detection run not recorded", zap.Error(err))
	}
	if s.hub != nil {
		s.hub.Publish(events.DetectionCompleted, events.DetectionEvent{
			Source:            source,
			TotalRecords:      report.TotalRecords,
			AnomalyCount:      report.AnomalyCount,
			AnomalyPercentage: report.AnomalyPercentage,
			DurationMs:        duration.Milliseconds(),
		})
	}
	zap.L().Info("detection completed",
		zap.String("source", source),
		zap.Int("total", report.TotalRecords),
		zap.Int("anomalies", report.AnomalyCount))
	return report, nil
}

// artifactsPair returns the active pair, trying one lazy load from the
// store before reporting ErrNotTrained.
func (s *Service) artifactsPair() (*artifacts.Pair, error) {
	if pair := s.handle.Current(); pair != nil {
		return pair, nil
	}
	pair, err := s.store.Load()
	if err != nil {
		if errors.Is(err, artifacts.ErrAbsent) {
			return nil, ErrNotTrained
		}
		return nil, err
	}
	s.handle.Swap(pair)
	return pair, nil
}

// ModelInfo 当前模型元信息
type ModelInfo struct {
	Trained       bool       `json:"trained"`
	Version       int64      `json:"version,omitempty"`
	TrainedAt     *time.Time `json:"trained_at,omitempty"`
	TrainRows     int        `json:"train_rows,omitempty"`
	Estimators    int        `json:"estimators,omitempty"`
	Contamination float64    `json:"contamination,omitempty"`
	Seed          int64      `json:"seed,omitempty"`
	SampleSize    int        `json:"sample_size,omitempty"`
	Features      []string   `json:"features"`
}

// ModelInfo reports the active artifact metadata.
func (s *Service) ModelInfo() ModelInfo {
	info := ModelInfo{Features: dataset.FeatureColumns}
	pair, err := s.artifactsPair()
	if err != nil {
		return info
	}
	info.Trained = true
	info.Version = pair.Meta.Version
	trainedAt := pair.Meta.TrainedAt
	info.TrainedAt = &trainedAt
	info.TrainRows = pair.Meta.TrainRows
	info.Estimators = pair.Detector.Estimators
	info.Contamination = pair.Detector.Contamination
	info.Seed = pair.Detector.Seed
	info.SampleSize = pair.Detector.SampleSize
	return info
}
