package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"sportpredict/config"
	"sportpredict/db"
	qhttp "sportpredict/http"
	"sportpredict/logger"
	"sportpredict/ml"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Encoding:   cfg.Log.Encoding,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// 2. Load model
	pipeline, err := ml.LoadModel(cfg.ML.ModelType, cfg.ML.ModelPath)
	if err != nil {
		zlog.Fatal("failed to load model", zap.String("path", cfg.ML.ModelPath), zap.Error(err))
	}
	zlog.Info("model loaded",
		zap.String("path", cfg.ML.ModelPath),
		zap.String("type", pipeline.ModelType()),
		zap.Strings("classes", pipeline.Labels()),
	)

	deps := qhttp.Dependencies{
		Model:     pipeline,
		Logger:    zlog,
		CacheSize: cfg.ML.CacheSize,
	}

	// 3. Prediction log
	if cfg.PredictionLog.Path != "" {
		store, err := db.OpenPredictionLog(cfg.PredictionLog.Path)
		if err != nil {
			zlog.Fatal("failed to open prediction log", zap.String("path", cfg.PredictionLog.Path), zap.Error(err))
		}
		deps.PredictionLog = store
		zlog.Info("prediction log initialized", zap.String("path", cfg.PredictionLog.Path))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ML.WatchModel {
		err := ml.WatchArtifact(ctx, cfg.ML.ModelPath, zlog, func(fsnotify.Event) {
			zlog.Warn("serving the model loaded at startup, restart to pick up the new artifact")
		})
		if err != nil {
			zlog.Warn("failed to watch model file", zap.Error(err))
		}
	}

	// 4. Start HTTP server
	server, err := qhttp.NewServer(qhttp.ServerConfig{
		Host:           cfg.Http.Host,
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, deps)
	if err != nil {
		zlog.Fatal("failed to create server", zap.Error(err))
	}
	go func() {
		if err := server.Start(); err != nil {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down")

	cancel()
	if err := server.Stop(); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("exiting")
}
