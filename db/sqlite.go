package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite run-history database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_runs (
        id TEXT PRIMARY KEY,
        source TEXT NOT NULL,
        data_points INTEGER,
        estimators INTEGER,
        contamination REAL,
        version INTEGER,
        duration_ms INTEGER,
        trained_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS detection_runs (
        id TEXT PRIMARY KEY,
        source TEXT NOT NULL,
        total_records INTEGER,
        anomaly_count INTEGER,
        anomaly_percentage REAL,
        duration_ms INTEGER,
        created_at DATETIME
    );
    `

	_, err = database.Exec(query)
	return err
}

// CloseDB closes the database handle
func CloseDB() {
	if database != nil {
		database.Close()
		database = nil
	}
}

type TrainingRun struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	DataPoints    int       `json:"data_points"`
	Estimators    int       `json:"estimators"`
	Contamination float64   `json:"contamination"`
	Version       int64     `json:"version"`
	DurationMs    int64     `json:"duration_ms"`
	TrainedAt     time.Time `json:"trained_at"`
}

type DetectionRun struct {
	ID                string    `json:"id"`
	Source            string    `json:"source"`
	TotalRecords      int       `json:"total_records"`
	AnomalyCount      int       `json:"anomaly_count"`
	AnomalyPercentage float64   `json:"anomaly_percentage"`
	DurationMs        int64     `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

// SaveTrainingRun records one completed training run
func SaveTrainingRun(run TrainingRun) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT OR REPLACE INTO training_runs (
            id, source, data_points, estimators, contamination, version, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `,
		run.ID,
		run.Source,
		run.DataPoints,
		run.Estimators,
		run.Contamination,
		run.Version,
		run.DurationMs,
		run.TrainedAt,
	)
	return err
}

// SaveDetectionRun records one completed detection run
func SaveDetectionRun(run DetectionRun) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT OR REPLACE INTO detection_runs (
            id, source, total_records, anomaly_count, anomaly_percentage, duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
    `,
		run.ID,
		run.Source,
		run.TotalRecords,
		run.AnomalyCount,
		run.AnomalyPercentage,
		run.DurationMs,
		run.CreatedAt,
	)
	return err
}

// RecentTrainingRuns returns the latest training runs, newest first
func RecentTrainingRuns(limit int) ([]TrainingRun, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT id, source, data_points, estimators, contamination, version, duration_ms, trained_at
        FROM training_runs
        ORDER BY trained_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(&run.ID, &run.Source, &run.DataPoints, &run.Estimators,
			&run.Contamination, &run.Version, &run.DurationMs, &run.TrainedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecentDetectionRuns returns the latest detection runs, newest first
func RecentDetectionRuns(limit int) ([]DetectionRun, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT id, source, total_records, anomaly_count, anomaly_percentage, duration_ms, created_at
        FROM detection_runs
        ORDER BY created_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]DetectionRun, 0)
	for rows.Next() {
		var run DetectionRun
		if err := rows.Scan(&run.ID, &run.Source, &run.TotalRecords, &run.AnomalyCount,
			&run.AnomalyPercentage, &run.DurationMs, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
