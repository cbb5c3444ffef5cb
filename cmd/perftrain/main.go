package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"student-perf/internal/cfg"
	"student-perf/internal/ml"
	"student-perf/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath     = flag.String("data", "", "Training CSV file or enrollment data directory (defaults to DATA_PATH)")
		dataFormat   = flag.String("format", "auto", "Data format: auto, csv, boltdb")
		modelPath    = flag.String("model", "", "Output model path (overrides config)")
		metadataPath = flag.String("metadata", "", "Output metadata path (overrides config)")
		outputPath   = flag.String("output", "", "Write the training report JSON to this file instead of stdout")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		timeout      = flag.Duration("timeout", 10*time.Minute, "Abort training after this long")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using system environment variables")
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if *modelPath != "" {
		config.ModelPath = *modelPath
	}
	if *metadataPath != "" {
		config.MetadataPath = *metadataPath
	}
	if *dataPath == "" {
		*dataPath = config.DataPath
	}

	fmt.Fprintln(os.Stderr, "=== Training Configuration ===")
	fmt.Fprintf(os.Stderr, "Data Path: %s (%s)\n", *dataPath, *dataFormat)
	fmt.Fprintf(os.Stderr, "Model Path: %s\n", config.ModelPath)
	fmt.Fprintf(os.Stderr, "Metadata Path: %s\n", config.MetadataPath)
	fmt.Fprintf(os.Stderr, "CV Folds: %d\n", config.Training.CVFolds)
	fmt.Fprintf(os.Stderr, "Permutation Repeats: %d\n", config.Training.PermutationRepeats)
	fmt.Fprintln(os.Stderr, "==============================")

	samples, err := loadSamples(*dataPath, *dataFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load training data")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := ml.NewModelStore(config.StoreConfig())
	trainer := ml.NewTrainer(config.TrainerConfig(), store, nil)

	report, err := trainer.Train(ctx, samples)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}

	if err := writeReport(report, *outputPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to write training report")
	}

	log.Info().
		Int("samples", report.SamplesUsed).
		Float64("accuracy", report.Metrics.Accuracy).
		Float64("roc_auc", report.ROCAUC).
		Float64("recommended_threshold", report.RecommendedThreshold).
		Msg("Training completed successfully")
}

// loadSamples reads training rows from a CSV file or an enrollment store.
func loadSamples(path, format string) ([]ml.Sample, error) {
	if format == "auto" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path: %w", err)
		}
		switch {
		case info.IsDir():
			format = "boltdb"
		case strings.EqualFold(filepath.Ext(path), ".csv"):
			format = "csv"
		default:
			return nil, fmt.Errorf("cannot determine data format for: %s", path)
		}
	}

	switch format {
	case "csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return storage.ReadTrainingCSV(f)
	case "boltdb":
		store, err := storage.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open enrollment store: %w", err)
		}
		defer store.Close()

		samples, err := store.TrainingSamples()
		if errors.Is(err, storage.ErrNoTrainingData) {
			return nil, nil
		}
		return samples, err
	default:
		return nil, fmt.Errorf("unknown data format %q", format)
	}
}

func writeReport(report *ml.TrainReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
