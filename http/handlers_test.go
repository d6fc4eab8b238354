package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"sportpredict/db"
	"sportpredict/ml"
)

// echoModel predicts a label built from the record so responses can be
// matched to their requests.
type echoModel struct {
	calls atomic.Int64
}

func (m *echoModel) Predict(ctx context.Context, record ml.Record) (string, error) {
	m.calls.Add(1)
	if record.Sports == "panic" {
		panic("boom")
	}
	return record.AgeGroup + "|" + record.Sports, nil
}

func (m *echoModel) Labels() []string {
	return []string{"No", "Yes"}
}

func (m *echoModel) ModelType() string {
	return "echo"
}

type failingStore struct{}

func (failingStore) Save(ctx context.Context, entry db.PredictionEntry) error {
	return errors.New("disk full")
}

func (failingStore) Recent(ctx context.Context, limit int) ([]db.PredictionEntry, error) {
	return nil, errors.New("disk full")
}

func trainedPipeline(t *testing.T) *ml.Pipeline {
	t.Helper()
	durations := []string{"Less than 1 year", "1-3 years", "More than 5 years"}
	levels := []string{"School", "District", "State"}
	sports := []string{"Cricket", "Football", "Badminton"}

	var X [][]string
	var y []string
	for i := 0; i < 60; i++ {
		duration := durations[(i/3)%3]
		level := levels[i%3]
		X = append(X, []string{
			[]string{"18-24", "25-34"}[(i/9)%2],
			[]string{"Male", "Female"}[(i/2)%2],
			"Student",
			[]string{"Urban", "Rural"}[(i/7)%2],
			sports[(i/4)%3],
			duration,
			level,
		})
		if level == "State" || duration == "More than 5 years" {
			y = append(y, "Yes")
		} else {
			y = append(y, "No")
		}
	}

	config := ml.DefaultForestConfig()
	config.NumTrees = 10
	classifier, err := ml.NewClassifier(ml.TypeRandomForest, config)
	if err != nil {
		t.Fatal(err)
	}
	pipeline := ml.NewPipeline(ml.FeatureColumns(), ml.TargetColumn, classifier)
	if err := pipeline.Fit(X, y); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pipeline
}

func newTestServer(t *testing.T, deps Dependencies, mutate ...func(*ServerConfig)) *Server {
	t.Helper()
	config := DefaultServerConfig()
	for _, fn := range mutate {
		fn(&config)
	}
	server, err := NewServer(config, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return server
}

func surveyBody(ageGroup, sport string) map[string]any {
	return map[string]any{
		ml.ColAgeGroup: ageGroup,
		ml.ColGender:   "Female",
		ml.ColStatus:   "Student",
		ml.ColArea:     "Urban",
		ml.ColSports:   sport,
		ml.ColDuration: "1-3 years",
		ml.ColLevel:    "State",
	}
}

func postPredict(t *testing.T, handler http.Handler, body []byte, contentType string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body %q: %v", rr.Body.String(), err)
	}
	return rr.Code, resp
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPredictSuccess(t *testing.T) {
	pipeline := trainedPipeline(t)
	server := newTestServer(t, Dependencies{Model: pipeline})

	body := surveyBody("18-24", "Cricket")
	code, resp := postPredict(t, server.Handler(), mustJSON(t, body), "application/json")
	if code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", code, http.StatusOK)
	}
	if resp["status"] != "success" {
		t.Fatalf("unexpected response: %v", resp)
	}
	record, _, err := ml.ParseRecord(mustJSON(t, body))
	if err != nil {
		t.Fatal(err)
	}
	want, err := pipeline.Predict(context.Background(), record)
	if err != nil {
		t.Fatal(err)
	}
	if resp["prediction"] != want {
		t.Fatalf("prediction: got %v want %v", resp["prediction"], want)
	}
	input, ok := resp["input"].(map[string]any)
	if !ok || len(input) != len(body) {
		t.Fatalf("unexpected echoed input: %v", resp["input"])
	}
	for key, value := range body {
		if input[key] != value {
			t.Fatalf("input %q: got %v want %v", key, input[key], value)
		}
	}
}

func TestPredictLabelFromTrainingClasses(t *testing.T) {
	pipeline := trainedPipeline(t)
	server := newTestServer(t, Dependencies{Model: pipeline})

	// unseen category values still produce a known label
	body := surveyBody("65+", "Chess")
	_, resp := postPredict(t, server.Handler(), mustJSON(t, body), "")
	if resp["status"] != "success" {
		t.Fatalf("unexpected response: %v", resp)
	}
	found := false
	for _, label := range pipeline.Labels() {
		if resp["prediction"] == label {
			found = true
		}
	}
	if !found {
		t.Fatalf("prediction %v not in %v", resp["prediction"], pipeline.Labels())
	}
}

func TestPredictIgnoresContentType(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}})

	code, resp := postPredict(t, server.Handler(), mustJSON(t, surveyBody("18-24", "Cricket")), "text/plain")
	if code != http.StatusOK || resp["status"] != "success" {
		t.Fatalf("unexpected response %d: %v", code, resp)
	}
}

func TestPredictErrors(t *testing.T) {
	missing := surveyBody("18-24", "Cricket")
	delete(missing, ml.ColLevel)

	extra := surveyBody("18-24", "Cricket")
	extra["Comments"] = "none"

	numeric := surveyBody("18-24", "Cricket")
	numeric[ml.ColAgeGroup] = 21

	tests := []struct {
		name    string
		body    []byte
		message string
	}{
		{name: "invalid json", body: []byte(`{"Age Group":`), message: ""},
		{name: "empty body", body: nil, message: ""},
		{name: "not an object", body: []byte(`"18-24"`), message: "JSON object"},
		{name: "missing key", body: mustJSON(t, missing), message: "missing field"},
		{name: "unexpected key", body: mustJSON(t, extra), message: "unexpected field"},
		{name: "non-string value", body: mustJSON(t, numeric), message: "invalid field"},
	}

	server := newTestServer(t, Dependencies{Model: trainedPipeline(t)})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := postPredict(t, server.Handler(), tt.body, "application/json")
			if code != http.StatusOK {
				t.Fatalf("handler returned wrong status code: got %v want %v", code, http.StatusOK)
			}
			if resp["status"] != "error" {
				t.Fatalf("expected error status, got %v", resp)
			}
			message, _ := resp["message"].(string)
			if message == "" {
				t.Fatal("expected non-empty message")
			}
			if !strings.Contains(message, tt.message) {
				t.Fatalf("message %q does not contain %q", message, tt.message)
			}
			if _, ok := resp["prediction"]; ok {
				t.Fatalf("error response must not carry a prediction: %v", resp)
			}
		})
	}
}

func TestPredictBodyTooLarge(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}}, func(c *ServerConfig) {
		c.MaxBodyBytes = 64
	})

	code, resp := postPredict(t, server.Handler(), mustJSON(t, surveyBody("18-24", "Cricket")), "")
	if code != http.StatusOK || resp["status"] != "error" {
		t.Fatalf("unexpected response %d: %v", code, resp)
	}
}

func TestPredictMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}})

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestPredictPanicRecovered(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}})

	code, resp := postPredict(t, server.Handler(), mustJSON(t, surveyBody("18-24", "panic")), "")
	if code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", code, http.StatusOK)
	}
	if resp["status"] != "error" || resp["message"] != "internal error" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestPredictConcurrentRequests(t *testing.T) {
	model := &echoModel{}
	server := newTestServer(t, Dependencies{Model: model, CacheSize: 16})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			age := fmt.Sprintf("age-%d", i)
			sport := fmt.Sprintf("sport-%d", i%7)
			payload, _ := json.Marshal(surveyBody(age, sport))

			res, err := http.Post(ts.URL+"/predict", "application/json", bytes.NewReader(payload))
			if err != nil {
				errs <- err
				return
			}
			defer res.Body.Close()

			var resp struct {
				Status     string            `json:"status"`
				Input      map[string]string `json:"input"`
				Prediction string            `json:"prediction"`
			}
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				errs <- err
				return
			}
			if resp.Status != "success" {
				errs <- fmt.Errorf("request %d: status %q", i, resp.Status)
				return
			}
			if resp.Input[ml.ColAgeGroup] != age || resp.Input[ml.ColSports] != sport {
				errs <- fmt.Errorf("request %d: echoed input %v", i, resp.Input)
				return
			}
			if want := age + "|" + sport; resp.Prediction != want {
				errs <- fmt.Errorf("request %d: prediction %q want %q", i, resp.Prediction, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestPredictCacheReturnsSameLabel(t *testing.T) {
	model := &echoModel{}
	server := newTestServer(t, Dependencies{Model: model, CacheSize: 4})

	body := mustJSON(t, surveyBody("18-24", "Cricket"))
	_, first := postPredict(t, server.Handler(), body, "")
	_, second := postPredict(t, server.Handler(), body, "")
	if first["prediction"] != second["prediction"] {
		t.Fatalf("cached prediction differs: %v vs %v", first["prediction"], second["prediction"])
	}
	if calls := model.calls.Load(); calls != 1 {
		t.Fatalf("expected 1 model call, got %d", calls)
	}
}

func TestPredictionLogRecordsOutcomes(t *testing.T) {
	store, err := db.OpenPredictionLog(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	server := newTestServer(t, Dependencies{Model: &echoModel{}, PredictionLog: store})
	defer server.Stop()

	postPredict(t, server.Handler(), mustJSON(t, surveyBody("18-24", "Cricket")), "")
	postPredict(t, server.Handler(), []byte(`{`), "")

	req := httptest.NewRequest(http.MethodGet, "/api/predictions?limit=10", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var entries []db.PredictionEntry
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "error" || entries[0].ErrorKind != string(ml.KindParse) {
		t.Fatalf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].Status != "success" || entries[1].Prediction != "18-24|Cricket" {
		t.Fatalf("unexpected oldest entry: %+v", entries[1])
	}
	if entries[1].RequestID == "" {
		t.Fatal("expected request id on logged entry")
	}
}

func TestPredictionLogFailureKeepsResponse(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}, PredictionLog: failingStore{}})

	code, resp := postPredict(t, server.Handler(), mustJSON(t, surveyBody("18-24", "Cricket")), "")
	if code != http.StatusOK || resp["status"] != "success" {
		t.Fatalf("unexpected response %d: %v", code, resp)
	}
}

func TestHealthHandler(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: trainedPipeline(t)})

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok","model":"random_forest","classes":["No","Yes"]}`
	if strings.TrimSpace(rr.Body.String()) != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestMetricsHandler(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}})
	postPredict(t, server.Handler(), mustJSON(t, surveyBody("18-24", "Cricket")), "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	body, _ := io.ReadAll(rr.Body)
	for _, name := range []string{"sportpredict_predict_requests_total", "sportpredict_predict_duration_seconds"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestNewServerRequiresModel(t *testing.T) {
	if _, err := NewServer(DefaultServerConfig(), Dependencies{}); err == nil {
		t.Fatal("expected error without model")
	}
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}}, func(c *ServerConfig) {
		c.AllowedOrigins = []string{"http://survey.local"}
	})

	tests := []struct {
		origin string
		allow  string
	}{
		{origin: "http://survey.local", allow: "http://survey.local"},
		{origin: "http://elsewhere.local", allow: ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
		req.Header.Set("Origin", tt.origin)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusNoContent)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.allow {
			t.Fatalf("origin %s: got allow-origin %q want %q", tt.origin, got, tt.allow)
		}
	}
}

func TestPredictCacheKeepsDistinctRecordsApart(t *testing.T) {
	model := &echoModel{}
	server := newTestServer(t, Dependencies{Model: model, CacheSize: 16})

	// adjacent values that join to the same string with a unit separator
	first := surveyBody("a\x1fb", "Cricket")
	first[ml.ColGender] = "c"
	second := surveyBody("a", "Cricket")
	second[ml.ColGender] = "b\x1fc"

	_, resp := postPredict(t, server.Handler(), mustJSON(t, first), "")
	if resp["prediction"] != "a\x1fb|Cricket" {
		t.Fatalf("unexpected first prediction: %v", resp["prediction"])
	}
	_, resp = postPredict(t, server.Handler(), mustJSON(t, second), "")
	if resp["prediction"] != "a|Cricket" {
		t.Fatalf("second record got %q, want %q", resp["prediction"], "a|Cricket")
	}
	if calls := model.calls.Load(); calls != 2 {
		t.Fatalf("expected 2 model calls, got %d", calls)
	}
}

func TestRecentPredictionsFailureIsJSON(t *testing.T) {
	server := newTestServer(t, Dependencies{Model: &echoModel{}, PredictionLog: failingStore{}})

	req := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusInternalServerError)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
		t.Fatalf("unexpected body %q: %v", rr.Body.String(), err)
	}
}
