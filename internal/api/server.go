// Package api exposes the student performance core over HTTP. It serves
// predictions, batch predictions, retraining, threshold management and
// enrollment import/export, plus a websocket channel for interactive
// what-if exploration.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"student-perf/internal/cfg"
	"student-perf/internal/metrics"
	"student-perf/internal/ml"
	"student-perf/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EnrollmentStore is the storage the server reads training rows and batch
// items from.
type EnrollmentStore interface {
	TrainingSamples() ([]ml.Sample, error)
	BatchItems() ([]ml.BatchItem, error)
	ImportCSV(r io.Reader) (storage.ImportSummary, error)
	ExportCSV(w io.Writer) (int, error)
}

// Server routes HTTP requests to the ML core. One Predictor is loaded lazily
// and reused until a retrain or threshold change invalidates it.
type Server struct {
	settings   *cfg.Settings
	store      *ml.ModelStore
	trainer    *ml.Trainer
	enrollment EnrollmentStore
	metrics    *metrics.MetricsWrapper
	upgrader   websocket.Upgrader
	router     *mux.Router
	server     *http.Server

	mu        sync.Mutex
	predictor *ml.Predictor
	trainMu   sync.Mutex // serializes retraining and threshold writes
}

// NewServer wires the routes for the given settings and collaborators.
func NewServer(settings *cfg.Settings, enrollment EnrollmentStore, metricsWrapper *metrics.MetricsWrapper) *Server {
	store := ml.NewModelStore(settings.StoreConfig())

	s := &Server{
		settings:   settings,
		store:      store,
		trainer:    ml.NewTrainer(settings.TrainerConfig(), store, metricsWrapper),
		enrollment: enrollment,
		metrics:    metricsWrapper,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	r := mux.NewRouter()
	r.Use(s.requestID, s.instrument)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws/whatif", s.handleWhatIf).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(s.timeout)
	apiRouter.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	apiRouter.HandleFunc("/model/info", s.handleModelInfo).Methods(http.MethodGet)

	admin := apiRouter.NewRoute().Subrouter()
	admin.Use(s.adminOnly)
	admin.HandleFunc("/predict_batch", s.handlePredictBatch).Methods(http.MethodPost)
	admin.HandleFunc("/retrain", s.handleRetrain).Methods(http.MethodPost)
	admin.HandleFunc("/settings/threshold", s.handleGetThreshold).Methods(http.MethodGet)
	admin.HandleFunc("/settings/threshold", s.handleSetThreshold).Methods(http.MethodPost)
	admin.HandleFunc("/enrollments/import", s.handleImport).Methods(http.MethodPost)
	admin.HandleFunc("/export", s.handleExport).Methods(http.MethodGet, http.MethodPost)

	s.router = r
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", settings.HTTPPort),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: settings.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// loadPredictor returns the cached predictor, loading it on first use.
func (s *Server) loadPredictor() (*ml.Predictor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.predictor != nil {
		return s.predictor, nil
	}

	p, err := ml.NewPredictor(s.store, s.metrics)
	if err != nil {
		return nil, err
	}
	s.predictor = p
	return p, nil
}

func (s *Server) invalidatePredictor() {
	s.mu.Lock()
	s.predictor = nil
	s.mu.Unlock()
}
