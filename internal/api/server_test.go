package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student-perf/internal/cfg"
	"student-perf/internal/common"
	"student-perf/internal/metrics"
	"student-perf/internal/ml"
	"student-perf/internal/storage"
)

const testToken = "s3cret"

type testEnv struct {
	server  *Server
	store   *storage.Store
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, mutate func(*cfg.Settings)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	settings := &cfg.Settings{
		ModelPath:      filepath.Join(dir, "models", "model.gob"),
		MetadataPath:   filepath.Join(dir, "models", "metadata.json"),
		AdminToken:     testToken,
		DataPath:       filepath.Join(dir, "data"),
		HTTPPort:       8000,
		MetricsPort:    9090,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
		Training: cfg.TrainingSettings{
			CVFolds:            common.DefaultCVFolds,
			PermutationRepeats: common.DefaultPermutationRepeats,
			RandomSeed:         common.DefaultRandomSeed,
			MinSamples:         common.DefaultMinSamples,
		},
	}
	if mutate != nil {
		mutate(settings)
	}

	store, err := storage.New(settings.DataPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return &testEnv{
		server:  NewServer(settings, store, metrics.NewWrapper(m)),
		store:   store,
		metrics: m,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) train(t *testing.T) ml.TrainReport {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/retrain", RetrainRequest{Rows: ml.FixtureSamples()}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report ml.TrainReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func predictBody(att, marks, internal float64) map[string]interface{} {
	return map[string]interface{}{"attendance": att, "marks": marks, "internal_score": internal}
}

func fixtureCSV() string {
	var b strings.Builder
	b.WriteString("student_id,course_id,attendance,marks,internal_score,final_exam_score,result\n")
	for i, s := range ml.FixtureSamples() {
		fmt.Fprintf(&b, "%d,1,%g,%g,%g,,%d\n", i+1, *s.Attendance, *s.Marks, *s.InternalScore, *s.Result)
	}
	return b.String()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDPassthrough(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestPredictBeforeTraining(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/predict", predictBody(80, 70, 75), false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, common.ErrMsgModelNotTrained, detail(t, rec))

	rec = env.do(t, http.MethodGet, "/api/model/info", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", common.ErrMsgMissingAuth},
		{"wrong token", "Bearer nope", common.ErrMsgUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/settings/threshold", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.want, detail(t, rec))
		})
	}
}

func TestRetrainAndPredict(t *testing.T) {
	env := newTestEnv(t, nil)

	report := env.train(t)
	assert.Equal(t, 44, report.SamplesUsed)
	assert.GreaterOrEqual(t, report.RecommendedThreshold, common.RecommendedThresholdMin)

	rec := env.do(t, http.MethodPost, "/api/predict", map[string]interface{}{
		"student_id": 7, "course_id": 3,
		"attendance": 92, "marks": 88, "internal_score": 84,
	}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result ml.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.SuspiciousInput)
	assert.Equal(t, int64(7), *result.StudentID)
	assert.Equal(t, int64(3), *result.CourseID)
	assert.Equal(t, result.Probability >= result.ThresholdUsed, result.PredictedResult == 1)

	rec = env.do(t, http.MethodPost, "/api/predict", predictBody(56, 0, 70), false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.PredictedResult)
	assert.True(t, result.SuspiciousInput)

	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.MLPredictions))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/api/predict", "200")))
}

func TestPredictValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.train(t)

	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"out of range", predictBody(120, 50, 50), "attendance"},
		{"missing field", map[string]interface{}{"attendance": 50, "marks": 50}, "internal_score"},
		{"wrong type", `{"attendance":"high","marks":50,"internal_score":50}`, "invalid request body"},
		{"empty body", nil, "request body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/predict", tt.body, false)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, detail(t, rec), tt.want)
		})
	}
}

func TestRetrainFromEmptyStorage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/retrain", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detail(t, rec), "got 0")
}

func TestRetrainSingleClass(t *testing.T) {
	env := newTestEnv(t, nil)

	var rows []ml.Sample
	for _, s := range ml.FixtureSamples() {
		if *s.Result == 0 {
			rows = append(rows, s)
		}
	}

	rec := env.do(t, http.MethodPost, "/api/retrain", RetrainRequest{Rows: rows}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detail(t, rec), "two classes")
}

func TestImportRetrainBatchExport(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/enrollments/import", fixtureCSV(), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary storage.ImportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 44, summary.Imported)
	assert.Equal(t, 44.0, testutil.ToFloat64(env.metrics.EnrollmentsImported))

	rec = env.do(t, http.MethodPost, "/api/retrain", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/predict_batch", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var batch ml.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 44, batch.Total)
	require.Len(t, batch.Predictions, 44)
	assert.Equal(t, int64(1), *batch.Predictions[0].StudentID)

	rec = env.do(t, http.MethodGet, "/api/export", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, 45, strings.Count(rec.Body.String(), "\n"))
}

func TestExportWithoutData(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/export", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictBatch(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/predict_batch", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.train(t)

	rec = env.do(t, http.MethodPost, "/api/predict_batch", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detail(t, rec), "No enrollments")

	body := map[string]interface{}{"items": []interface{}{
		predictBody(90, 80, 85),
		predictBody(50, 150, 40),
		predictBody(30, 20, 25),
	}}
	rec = env.do(t, http.MethodPost, "/api/predict_batch", body, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detail(t, rec), "invalid batch item 1")
	assert.Contains(t, detail(t, rec), "marks")

	body["items"] = []interface{}{predictBody(90, 80, 85), predictBody(30, 20, 25)}
	rec = env.do(t, http.MethodPost, "/api/predict_batch", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var batch ml.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 2, batch.Total)
}

func TestThresholdSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/settings/threshold", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"threshold":0.6,"source":"default"}`, rec.Body.String())

	env.train(t)

	rec = env.do(t, http.MethodPost, "/api/settings/threshold", map[string]float64{"threshold": 0.7}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"threshold":0.7,"source":"metadata:user"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/predict", predictBody(80, 70, 75), false)
	require.Equal(t, http.StatusOK, rec.Code)
	var result ml.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0.7, result.ThresholdUsed)

	// Survives a retrain
	env.train(t)
	rec = env.do(t, http.MethodGet, "/api/settings/threshold", nil, true)
	assert.JSONEq(t, `{"threshold":0.7,"source":"metadata:user"}`, rec.Body.String())

	for _, bad := range []string{`{"threshold":1.5}`, `{"threshold":0}`, `{}`} {
		rec = env.do(t, http.MethodPost, "/api/settings/threshold", bad, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestThresholdOverride(t *testing.T) {
	env := newTestEnv(t, func(s *cfg.Settings) { s.ThresholdOverride = "0.55" })

	rec := env.do(t, http.MethodPost, "/api/settings/threshold", map[string]float64{"threshold": 0.7}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"threshold":0.55,"source":"env"}`, rec.Body.String())
}

func TestModelInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	env.train(t)

	rec := env.do(t, http.MethodGet, "/api/model/info", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var meta ml.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, []string{"attendance", "marks", "internal_score"}, meta.FeatureNames)
	assert.Equal(t, 44, meta.SamplesUsed)
}

func TestWhatIfWebsocket(t *testing.T) {
	env := newTestEnv(t, nil)
	env.train(t)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/whatif", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(predictBody(92, 88, 84)))
	var result ml.PredictionResult
	require.NoError(t, conn.ReadJSON(&result))
	assert.InDelta(t, 0.5, result.Probability, 0.5)

	require.NoError(t, conn.WriteJSON(predictBody(120, 88, 84)))
	var failure errorResponse
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Contains(t, failure.Detail, "attendance")

	// Same input twice yields the same probability
	require.NoError(t, conn.WriteJSON(predictBody(92, 88, 84)))
	var again ml.PredictionResult
	require.NoError(t, conn.ReadJSON(&again))
	assert.Equal(t, result.Probability, again.Probability)
}
