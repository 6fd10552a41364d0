package events

import "time"

// TrainingEvent 训练完成事件
type TrainingEvent struct {
	Source     string    `json:"source"`
	DataPoints int       `json:"data_points"`
	Version    int64     `json:"version"`
	DurationMs int64     `json:"duration_ms"`
	TrainedAt  time.Time `json:"trained_at"`
}

// DetectionEvent 检测完成事件
type DetectionEvent struct {
	Source            string  `json:"source"`
	TotalRecords      int     `json:"total_records"`
	AnomalyCount      int     `json:"anomaly_count"`
	AnomalyPercentage float64 `json:"anomaly_percentage"`
	DurationMs        int64   `json:"duration_ms"`
}

// ReloadEvent 制品热加载事件
type ReloadEvent struct {
	Version   int64     `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
}
