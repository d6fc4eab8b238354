package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sportpredict/db"
	"sportpredict/ml"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// PredictionStore 预测记录存储
type PredictionStore interface {
	Save(ctx context.Context, entry db.PredictionEntry) error
	Recent(ctx context.Context, limit int) ([]db.PredictionEntry, error)
}

type successResponse struct {
	Status     string         `json:"status"`
	Input      map[string]any `json:"input"`
	Prediction string         `json:"prediction"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status  string   `json:"status"`
	Model   string   `json:"model"`
	Classes []string `json:"classes"`
}

// Handler 处理预测请求，所有字段在构造后只读
type Handler struct {
	model ml.ModelProvider
	log   *zap.Logger
	store PredictionStore
	cache *lru.Cache[ml.Record, string]
}

func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Model == nil {
		return nil, errors.New("model is required")
	}
	h := &Handler{
		model: deps.Model,
		log:   deps.Logger,
		store: deps.PredictionLog,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if deps.CacheSize > 0 {
		cache, err := lru.New[ml.Record, string](deps.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		h.cache = cache
	}
	return h, nil
}

func RegisterHandlers(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if h.store != nil {
		mux.HandleFunc("GET /api/predictions", h.handleRecentPredictions)
	}
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := GetStartTime(ctx)
	if start.IsZero() {
		start = time.Now()
	}
	defer func() {
		predictDuration.Observe(time.Since(start).Seconds())
	}()

	// Content-Type is ignored, the body is always decoded as JSON.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, body, ml.NewPredictError(ml.KindParse, fmt.Errorf("read request body: %w", err)))
		return
	}

	record, input, err := ml.ParseRecord(body)
	if err != nil {
		h.fail(w, r, body, err)
		return
	}

	label, err := h.predict(ctx, record)
	if err != nil {
		h.fail(w, r, body, err)
		return
	}

	predictRequests.WithLabelValues(statusSuccess, "").Inc()
	predictionLabels.WithLabelValues(label).Inc()
	h.record(ctx, db.PredictionEntry{
		RequestID:  GetRequestID(ctx),
		Input:      string(body),
		Status:     statusSuccess,
		Prediction: label,
	})
	writeJSON(w, successResponse{Status: statusSuccess, Input: input, Prediction: label})
}

// predict 先查缓存，未命中时调用模型
func (h *Handler) predict(ctx context.Context, record ml.Record) (string, error) {
	if h.cache == nil {
		return h.model.Predict(ctx, record)
	}
	if label, ok := h.cache.Get(record); ok {
		predictCacheHits.Inc()
		return label, nil
	}
	label, err := h.model.Predict(ctx, record)
	if err != nil {
		return "", err
	}
	h.cache.Add(record, label)
	return label, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, body []byte, err error) {
	kind := "unknown"
	var pe *ml.PredictError
	if errors.As(err, &pe) {
		kind = string(pe.Kind)
	}
	message := err.Error()

	h.log.Debug("prediction failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("kind", kind),
		zap.Error(err),
	)
	predictRequests.WithLabelValues(statusError, kind).Inc()
	h.record(r.Context(), db.PredictionEntry{
		RequestID: GetRequestID(r.Context()),
		Input:     string(body),
		Status:    statusError,
		Message:   message,
		ErrorKind: kind,
	})
	writeJSON(w, errorResponse{Status: statusError, Message: message})
}

// record 写入预测记录，失败只记日志，不影响响应
func (h *Handler) record(ctx context.Context, entry db.PredictionEntry) {
	if h.store == nil {
		return
	}
	if err := h.store.Save(context.WithoutCancel(ctx), entry); err != nil {
		h.log.Warn("failed to save prediction", zap.String("request_id", entry.RequestID), zap.Error(err))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:  "ok",
		Model:   h.model.ModelType(),
		Classes: h.model.Labels(),
	})
}

func (h *Handler) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to load predictions", zap.Error(err))
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": "failed to load predictions"})
		return
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
