package anomaly

import (
	"time"

	"powerwatch/dataset"
)

// 每次检测最多返回的异常行数
const maxAnomalies = 1000

// Anomaly is one anomalous reading in a prediction report.
type Anomaly struct {
	Datetime            *time.Time `json:"datetime"`
	GlobalActivePower   float64    `json:"global_active_power"`
	GlobalReactivePower float64    `json:"global_reactive_power"`
	Voltage             float64    `json:"voltage"`
	GlobalIntensity     float64    `json:"global_intensity"`
	SubMetering1        float64    `json:"sub_metering_1"`
	SubMetering2        float64    `json:"sub_metering_2"`
	SubMetering3        float64    `json:"sub_metering_3"`
	AnomalyScore        float64    `json:"anomaly_score"`
}

// Report is the response shape shared by every prediction variant.
type Report struct {
	Anomalies         []Anomaly `json:"anomalies"`
	AnomalyCount      int       `json:"anomaly_count"`
	TotalRecords      int       `json:"total_records"`
	AnomalyPercentage float64   `json:"anomaly_percentage"`
}

func emptyReport() *Report {
	return &Report{Anomalies: []Anomaly{}}
}

// shapeReport walks rows in order (descending by sortFeature when given),
// keeps the anomalous ones up to the cap, and fills the summary. The count
// and percentage refer to the returned rows, after the cap.
func shapeReport(ds *dataset.Dataset, labels []int, scores []float64, sortFeature string) *Report {
	n := ds.Len()
	var order []int
	if sortFeature != "" && dataset.IsFeatureColumn(sortFeature) && ds.HasColumn(sortFeature) {
		order = ds.OrderByDesc(sortFeature)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	anomalies := make([]Anomaly, 0)
	for _, i := range order {
		if labels[i] != -1 {
			continue
		}
		if len(anomalies) == maxAnomalies {
			break
		}
		anomalies = append(anomalies, newAnomaly(ds, i, scores[i]))
	}

	report := &Report{
		Anomalies:    anomalies,
		AnomalyCount: len(anomalies),
		TotalRecords: n,
	}
	if n > 0 {
		report.AnomalyPercentage = float64(report.AnomalyCount) / float64(n) * 100
	}
	return report
}

func newAnomaly(ds *dataset.Dataset, i int, score float64) Anomaly {
	a := Anomaly{
		GlobalActivePower:   ds.Values["Global_active_power"][i],
		GlobalReactivePower: ds.Values["Global_reactive_power"][i],
		Voltage:             ds.Values["Voltage"][i],
		GlobalIntensity:     ds.Values["Global_intensity"][i],
		SubMetering1:        ds.Values["Sub_metering_1"][i],
		SubMetering2:        ds.Values["Sub_metering_2"][i],
		SubMetering3:        ds.Values["Sub_metering_3"][i],
		AnomalyScore:        score,
	}
	if ts, ok := ds.Time(i); ok {
		t := ts
		a.Datetime = &t
	}
	return a
}
