package main

import (
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"sportpredict/config"
	"sportpredict/logger"
	"sportpredict/ml"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	dataset := flag.String("dataset", "", "survey CSV path")
	modelPath := flag.String("model_path", config.DefaultModelPath, "model output path")
	modelType := flag.String("model_type", config.DefaultModelType, "random_forest or decision_tree")
	testRatio := flag.Float64("test_ratio", 0.2, "held-out ratio")
	trees := flag.Int("trees", 100, "number of trees")
	seed := flag.Int64("seed", 42, "random seed")
	maxDepth := flag.Int("max_depth", 0, "max tree depth, 0 for unlimited")
	encoding := flag.String("encoding", "", "dataset encoding: utf-8, gbk or gb18030")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 命令行参数覆盖配置文件
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.ML.DatasetPath = *dataset
		case "model_path":
			cfg.ML.ModelPath = *modelPath
		case "model_type":
			cfg.ML.ModelType = *modelType
		case "test_ratio":
			cfg.ML.Training.TestRatio = *testRatio
		case "trees":
			cfg.ML.Training.Trees = *trees
		case "seed":
			cfg.ML.Training.Seed = *seed
		case "max_depth":
			cfg.ML.Training.MaxDepth = *maxDepth
		case "encoding":
			cfg.ML.Encoding = *encoding
		}
	})

	if cfg.ML.DatasetPath == "" {
		log.Fatal("dataset is required")
	}

	zlog, err := logger.New(loggerConfig(cfg))
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	report, err := train(cfg, zlog)
	if err != nil {
		zlog.Fatal("training failed", zap.Error(err))
	}

	zlog.Info("model saved",
		zap.String("path", cfg.ML.ModelPath),
		zap.Float64("accuracy", report.Accuracy),
	)
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Encoding:   cfg.Log.Encoding,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}

// train 加载数据集、划分、训练、评估并保存模型
func train(cfg *config.Config, zlog *zap.Logger) (*ml.Report, error) {
	dataset, err := ml.LoadCSV(cfg.ML.DatasetPath, cfg.ML.Encoding)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	dataset.TrimColumns()
	zlog.Info("cleaned column names", zap.Strings("columns", dataset.Columns))

	X, y, err := dataset.Select(ml.FeatureColumns(), ml.TargetColumn)
	if err != nil {
		return nil, fmt.Errorf("select columns: %w", err)
	}

	quality := ml.InspectRows(ml.FeatureColumns(), X, y)
	for _, rule := range quality.Rules() {
		zlog.Warn("data quality issue",
			zap.String("rule", rule),
			zap.Int("rows", quality.Counts[rule]),
		)
	}
	for _, issue := range quality.Issues {
		zlog.Debug("data quality issue", zap.String("rule", issue.Rule), zap.Int("row", issue.Row), zap.String("message", issue.Message))
	}

	split, err := ml.StratifiedSplit(X, y, cfg.ML.Training.TestRatio, cfg.ML.Training.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	zlog.Info("dataset split",
		zap.Int("rows", len(y)),
		zap.Int("train", len(split.TrainY)),
		zap.Int("test", len(split.TestY)),
	)

	forestConfig := ml.DefaultForestConfig()
	forestConfig.NumTrees = cfg.ML.Training.Trees
	forestConfig.Seed = cfg.ML.Training.Seed
	forestConfig.MaxDepth = cfg.ML.Training.MaxDepth
	modelType := cfg.ML.ModelType
	if modelType == "" {
		modelType = config.DefaultModelType
	}
	classifier, err := ml.NewClassifier(modelType, forestConfig)
	if err != nil {
		return nil, err
	}

	pipeline := ml.NewPipeline(ml.FeatureColumns(), ml.TargetColumn, classifier)
	if err := pipeline.Fit(split.TrainX, split.TrainY); err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}

	predictions, err := pipeline.PredictRows(split.TestX)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	report, err := ml.ClassificationReport(split.TestY, predictions)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	zlog.Info("evaluation",
		zap.String("model", classifier.Type()),
		zap.Float64("accuracy", ml.Accuracy(split.TestY, predictions)),
	)
	zlog.Info("classification report\n" + report.String())

	if err := pipeline.Save(cfg.ML.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	return report, nil
}
