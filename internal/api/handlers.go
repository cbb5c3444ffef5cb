package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"student-perf/internal/ml"
	"student-perf/internal/storage"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 10 << 20

// BatchRequest carries explicit batch items. An empty request predicts every
// stored enrollment with complete features.
type BatchRequest struct {
	Items []ml.BatchItem `json:"items"`
}

// RetrainRequest carries explicit training rows. An empty request trains on
// every stored enrollment with a known result.
type RetrainRequest struct {
	Rows []ml.Sample `json:"rows"`
}

// ThresholdRequest sets the persisted user threshold.
type ThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// ThresholdResponse reports the threshold in effect and where it came from.
type ThresholdResponse struct {
	Threshold float64 `json:"threshold"`
	Source    string  `json:"source"`
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req ml.BatchItem
	if err := decodeBody(r, &req, false); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.predict(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// predict serves one request through the cached predictor.
func (s *Server) predict(req ml.BatchItem) (*ml.PredictionResult, error) {
	predictor, err := s.loadPredictor()
	if err != nil {
		return nil, err
	}

	result, err := predictor.Predict(req.Input)
	if err != nil {
		return nil, err
	}
	result.StudentID = req.StudentID
	result.CourseID = req.CourseID
	return result, nil
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	predictor, err := s.loadPredictor()
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := req.Items
	if len(items) == 0 {
		items, err = s.enrollment.BatchItems()
		if err != nil {
			writeError(w, r, fmt.Errorf("load batch items: %w", err))
			return
		}
		if len(items) == 0 {
			writeDetail(w, http.StatusBadRequest, "No enrollments with complete data found for prediction")
			return
		}
	}

	result, err := predictor.PredictBatch(items)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	var req RetrainRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	samples := req.Rows
	if len(samples) == 0 {
		var err error
		samples, err = s.enrollment.TrainingSamples()
		if err != nil && !errors.Is(err, storage.ErrNoTrainingData) {
			writeError(w, r, fmt.Errorf("load training samples: %w", err))
			return
		}
	}

	s.trainMu.Lock()
	report, err := s.trainer.Train(r.Context(), samples)
	if err == nil {
		s.invalidatePredictor()
	}
	s.trainMu.Unlock()

	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Int("samples", report.SamplesUsed).
		Float64("accuracy", report.Metrics.Accuracy).
		Str("request_id", RequestID(r.Context())).
		Msg("Model retrained")

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	threshold, source := s.store.Threshold()
	writeJSON(w, http.StatusOK, ThresholdResponse{Threshold: threshold, Source: source})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Threshold == nil {
		writeDetail(w, http.StatusBadRequest, "'threshold' is required")
		return
	}

	s.trainMu.Lock()
	meta, err := s.store.SetThreshold(*req.Threshold, time.Now())
	if err == nil {
		s.invalidatePredictor()
	}
	s.trainMu.Unlock()

	if err != nil {
		writeError(w, r, err)
		return
	}

	threshold, source := s.store.ResolveThreshold(meta)
	writeJSON(w, http.StatusOK, ThresholdResponse{Threshold: threshold, Source: source})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	predictor, err := s.loadPredictor()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predictor.Metadata())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	summary, err := s.enrollment.ImportCSV(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.EnrollmentsImportedAdd(summary.Imported + summary.Updated)

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := s.enrollment.ExportCSV(&buf); err != nil {
		if errors.Is(err, storage.ErrNoTrainingData) {
			writeDetail(w, http.StatusBadRequest, "No training data available to export")
			return
		}
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="student_data_export.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		log.Error().Err(err).Msg("Failed to write export")
	}
}

// decodeBody decodes a JSON request body. An empty body is accepted only when
// allowEmpty is set.
func decodeBody(r *http.Request, v interface{}, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
