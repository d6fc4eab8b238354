// Package http 提供预测服务的HTTP服务器
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sportpredict/ml"
)

// Server HTTP服务器
type Server struct {
	server  *http.Server
	config  ServerConfig
	log     *zap.Logger
	closers []io.Closer
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string
	Port           int
	Timeout        time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           5000,
		Timeout:        30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// Dependencies 服务依赖，由main构造后注入
type Dependencies struct {
	Model         ml.ModelProvider
	Logger        *zap.Logger
	PredictionLog PredictionStore // 可选
	CacheSize     int
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Model == nil {
		return nil, errors.New("model is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultServerConfig().MaxBodyBytes
	}

	handler, err := NewHandler(deps)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	RegisterHandlers(mux, handler)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(deps.Logger),            // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(deps.Logger),              // 2. 日志中间件
		SecurityHeadersMiddleware,                  // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),      // 4. CORS中间件
		RequestSizeMiddleware(config.MaxBodyBytes), // 5. 请求大小限制
	)

	s := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		log:    deps.Logger,
	}
	if closer, ok := deps.PredictionLog.(io.Closer); ok {
		s.closers = append(s.closers, closer)
	}
	return s, nil
}

// Handler 返回包装好中间件的处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务器
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器并关闭依赖
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.log.Info("shutting down HTTP server")

	var err error
	if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
		err = multierr.Append(err, fmt.Errorf("server forced to shutdown: %w", shutdownErr))
	}
	for _, closer := range s.closers {
		err = multierr.Append(err, closer.Close())
	}
	return err
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
