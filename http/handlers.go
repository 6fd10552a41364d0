// Package http 注册异常检测服务的全部路由
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"powerwatch/anomaly"
	"powerwatch/dataset"
	"powerwatch/db"
	"powerwatch/events"
)

// API 聚合处理器依赖
type API struct {
	svc *anomaly.Service
	hub *events.Hub
}

// NewAPI 创建处理器集合,hub 可以为 nil
func NewAPI(svc *anomaly.Service, hub *events.Hub) *API {
	return &API{svc: svc, hub: hub}
}

// Register 注册全部路由
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("POST /train", a.handleTrain)
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("GET /anomalies", a.handleAnomalies)
	mux.HandleFunc("GET /analyze-default-data", a.handleAnalyzeDefault)
	mux.HandleFunc("GET /model/info", a.handleModelInfo)
	mux.HandleFunc("GET /history", a.handleHistory)
	if a.hub != nil {
		mux.HandleFunc("GET /ws/events", a.hub.HandleWebSocket)
	}
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"message": "Welcome to the Anomaly Detection API"})
}

func (a *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	file, name, err := openUpload(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}

	if file != nil {
		defer file.Close()
		_, err = a.svc.TrainUpload(file, name)
	} else {
		_, err = a.svc.TrainDefault()
	}
	if err != nil {
		if errors.Is(err, dataset.ErrDefaultDatasetMissing) {
			respondError(w, r, http.StatusBadRequest, "no file provided and default dataset not found")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, map[string]string{"message": "Model trained and saved successfully"})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	file, name, err := openUpload(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}

	var report *anomaly.Report
	if file != nil {
		defer file.Close()
		report, err = a.svc.DetectUpload(file, name)
	} else {
		report, err = a.svc.DetectDefault(anomaly.DefaultQuery{})
	}
	if err != nil {
		if errors.Is(err, dataset.ErrDefaultDatasetMissing) {
			respondError(w, r, http.StatusBadRequest, "no file provided and default dataset not found")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, report)
}

func (a *API) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	query := anomaly.DefaultQuery{SortFeature: r.URL.Query().Get("feature_filter")}

	if raw := r.URL.Query().Get("start_date"); raw != "" {
		ts, err := parseDate(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid start_date: "+raw)
			return
		}
		query.Start = &ts
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		ts, err := parseDate(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid end_date: "+raw)
			return
		}
		query.End = &ts
	}

	report, err := a.svc.DetectDefault(query)
	if err != nil {
		if errors.Is(err, dataset.ErrDefaultDatasetMissing) {
			respondError(w, r, http.StatusNotFound, "default dataset not found")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, report)
}

func (a *API) handleAnalyzeDefault(w http.ResponseWriter, r *http.Request) {
	query := anomaly.DefaultQuery{}
	if raw := r.URL.Query().Get("sample_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid sample_size: "+raw)
			return
		}
		if n > 0 {
			query.SampleSize = n
		}
	}

	report, err := a.svc.DetectDefault(query)
	if err != nil {
		if errors.Is(err, dataset.ErrDefaultDatasetMissing) {
			respondError(w, r, http.StatusNotFound, "default dataset not found")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, report)
}

func (a *API) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, a.svc.ModelInfo())
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, r, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		limit = n
	}

	training, err := db.RecentTrainingRuns(limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "history unavailable: "+err.Error())
		return
	}
	detections, err := db.RecentDetectionRuns(limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "history unavailable: "+err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"training":   training,
		"detections": detections,
	})
}

// openUpload 取出上传的 file 字段,请求不带文件时返回 nil
func openUpload(r *http.Request) (multipart.File, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return file, header.Filename, nil
}

// respondServiceError 按错误类别映射状态码
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *dataset.MissingColumnsError
	switch {
	case errors.Is(err, anomaly.ErrNotTrained):
		respondError(w, r, http.StatusInternalServerError, err.Error())
	case errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, dataset.ErrMalformed),
		errors.As(err, &missing):
		respondError(w, r, http.StatusBadRequest, err.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= 500 {
		zap.L().Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.String("error", message))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
