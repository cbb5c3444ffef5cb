package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"student-perf/internal/api"
	"student-perf/internal/cfg"
	"student-perf/internal/metrics"
	"student-perf/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using system environment variables")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("data_path", c.DataPath).Msg("storage initialization failed")
	}
	defer store.Close()

	mw := metrics.NewWrapper(metrics.New())
	server := api.NewServer(&c, store, mw)
	metricsServer := newMetricsServer(c.MetricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		log.Info().Str("addr", metricsServer.Addr).Msg("Starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown API server")
		}
		return metricsServer.Shutdown(shutdownCtx)
	})

	log.Info().
		Int("http_port", c.HTTPPort).
		Int("metrics_port", c.MetricsPort).
		Str("model_path", c.ModelPath).
		Msg("Student performance service started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("service stopped")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// newMetricsServer exposes the Prometheus registry on its own port.
func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
