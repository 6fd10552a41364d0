package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"powerwatch/anomaly"
	"powerwatch/artifacts"
	"powerwatch/dataset"
	"powerwatch/db"
	"powerwatch/events"
	qhttp "powerwatch/http"
	"powerwatch/logging"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		TimeoutSecs    int      `yaml:"timeout_secs"`
		MaxUploadMB    int      `yaml:"max_upload_mb"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Data struct {
		DefaultPath string `yaml:"default_path"`
		CacheSize   int    `yaml:"cache_size"`
	} `yaml:"data"`
	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log logging.Config `yaml:"log"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	logger, err := logging.Setup(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	// 3. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.CloseDB()
	zap.L().Info("Database initialized", zap.String("path", config.Database.Path))

	// 4. Load persisted model artifacts if present
	store := artifacts.NewStore(config.Artifacts.Dir)
	handle := artifacts.NewHandle()
	if pair, err := store.Load(); err == nil {
		handle.Swap(pair)
		zap.L().Info("Model artifacts loaded",
			zap.Int64("version", pair.Meta.Version),
			zap.Time("trained_at", pair.Meta.TrainedAt))
	} else if errors.Is(err, artifacts.ErrAbsent) {
		zap.L().Info("No model artifacts yet, train via POST /train")
	} else {
		zap.L().Warn("Model artifacts unreadable", zap.Error(err))
	}

	// 5. Start event hub and artifact watcher
	hub := events.NewHub()
	go hub.Run()

	watcher, err := artifacts.WatchStore(store, handle, func(pair *artifacts.Pair) {
		hub.Publish(events.ArtifactsReloaded, events.ReloadEvent{
			Version:   pair.Meta.Version,
			TrainedAt: pair.Meta.TrainedAt,
		})
	})
	if err != nil {
		zap.L().Fatal("Failed to watch artifact directory", zap.Error(err))
	}

	// 6. Wire the detection service
	loader := dataset.NewLoader(config.Data.DefaultPath, config.Data.CacheSize)
	svc := anomaly.NewService(loader, store, handle, hub)
	api := qhttp.NewAPI(svc, hub)

	serverConfig := qhttp.DefaultServerConfig()
	if config.Server.Port > 0 {
		serverConfig.Port = config.Server.Port
	}
	if config.Server.TimeoutSecs > 0 {
		serverConfig.Timeout = time.Duration(config.Server.TimeoutSecs) * time.Second
	}
	if config.Server.MaxUploadMB > 0 {
		serverConfig.MaxUploadBytes = int64(config.Server.MaxUploadMB) << 20
	}
	if len(config.Server.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Server.AllowedOrigins
	}

	// 7. Start HTTP server
	server := qhttp.NewServer(serverConfig, api)
	go func() {
		if err := server.Start(); err != nil {
			zap.L().Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 8. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down...")

	if err := server.Stop(); err != nil {
		zap.L().Warn("Server forced to shutdown", zap.Error(err))
	}
	watcher.Close()
	hub.Stop()

	zap.L().Info("Exiting")
}

func loadConfig(path string) (*Config, error) {
	config := defaultAppConfig()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}

func defaultAppConfig() *Config {
	config := &Config{}
	config.Server.Port = 8000
	config.Server.TimeoutSecs = 60
	config.Server.MaxUploadMB = 64
	config.Data.DefaultPath = "./data/household_power_consumption.txt"
	config.Artifacts.Dir = "./models"
	config.Database.Path = "./data/powerwatch.db"
	config.Log.Level = "info"
	config.Log.Format = "console"
	return config
}
