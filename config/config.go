// Package config 加载服务与训练共用的配置
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultHost 默认监听地址
	DefaultHost = "0.0.0.0"
	// DefaultPort 默认端口
	DefaultPort = 5000
	// DefaultModelPath 默认模型文件
	DefaultModelPath = "model.json"
	// DefaultModelType 默认模型类型
	DefaultModelType = "random_forest"
)

// Config 配置
type Config struct {
	Http struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		Encoding   string `yaml:"encoding"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	ML struct {
		ModelType   string `yaml:"model_type"`
		ModelPath   string `yaml:"model_path"`
		DatasetPath string `yaml:"dataset_path"`
		Encoding    string `yaml:"encoding"`
		CacheSize   int    `yaml:"cache_size"`
		WatchModel  bool   `yaml:"watch_model"`
		Training    struct {
			TestRatio float64 `yaml:"test_ratio"`
			Trees     int     `yaml:"trees"`
			Seed      int64   `yaml:"seed"`
			MaxDepth  int     `yaml:"max_depth"`
		} `yaml:"training"`
	} `yaml:"ml"`
	PredictionLog struct {
		Path string `yaml:"path"`
	} `yaml:"prediction_log"`
}

// Default 返回默认配置
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load 读取YAML配置文件，文件不存在时使用默认值，随后应用环境变量覆盖
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var c Config
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(&c); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

// Addr 返回监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Http.Host, c.Http.Port)
}

func (c *Config) applyDefaults() {
	if c.Http.Host == "" {
		c.Http.Host = DefaultHost
	}
	if c.Http.Port == 0 {
		c.Http.Port = DefaultPort
	}
	if c.Http.Timeout <= 0 {
		c.Http.Timeout = 30 * time.Second
	}
	if c.Http.MaxBodyBytes <= 0 {
		c.Http.MaxBodyBytes = 1 << 20
	}
	if len(c.Http.AllowedOrigins) == 0 {
		c.Http.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "console"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.ML.ModelPath == "" {
		c.ML.ModelPath = DefaultModelPath
	}
	if c.ML.CacheSize < 0 {
		c.ML.CacheSize = 0
	}
	if c.ML.Training.TestRatio <= 0 || c.ML.Training.TestRatio >= 1 {
		c.ML.Training.TestRatio = 0.2
	}
	if c.ML.Training.Trees <= 0 {
		c.ML.Training.Trees = 100
	}
	if c.ML.Training.Seed == 0 {
		c.ML.Training.Seed = 42
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SPORTPREDICT_HOST"); v != "" {
		c.Http.Host = v
	}
	if v := os.Getenv("SPORTPREDICT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SPORTPREDICT_PORT %q: %w", v, err)
		}
		c.Http.Port = port
	}
	if v := os.Getenv("SPORTPREDICT_MODEL_PATH"); v != "" {
		c.ML.ModelPath = v
	}
	if v := os.Getenv("SPORTPREDICT_DATASET_PATH"); v != "" {
		c.ML.DatasetPath = v
	}
	if v := os.Getenv("SPORTPREDICT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SPORTPREDICT_PREDICTION_LOG"); v != "" {
		c.PredictionLog.Path = v
	}
	if v := os.Getenv("SPORTPREDICT_CACHE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SPORTPREDICT_CACHE_SIZE %q: %w", v, err)
		}
		c.ML.CacheSize = size
	}
	return nil
}
