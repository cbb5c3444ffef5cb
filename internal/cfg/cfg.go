package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"student-perf/internal/common"
	"student-perf/internal/ml"
)

// Settings is the explicit configuration handed to the trainer, the model store,
// the predictor and the HTTP transport.
type Settings struct {
	ModelPath         string
	MetadataPath      string
	ThresholdOverride string
	AdminToken        string
	DataPath          string
	HTTPPort          int
	MetricsPort       int
	RequestTimeout    time.Duration
	LogLevel          string
	Training          TrainingSettings
}

// TrainingSettings controls the training procedure.
type TrainingSettings struct {
	CVFolds            int
	PermutationRepeats int
	RandomSeed         int64
	MinSamples         int
}

type ConfigFile struct {
	Model struct {
		Path          string `yaml:"path"`
		MetadataPath  string `yaml:"metadataPath"`
		PredThreshold string `yaml:"predThreshold"`
	} `yaml:"model"`

	Server struct {
		HTTPPort       int    `yaml:"httpPort"`
		MetricsPort    int    `yaml:"metricsPort"`
		RequestTimeout string `yaml:"requestTimeout"`
		AdminToken     string `yaml:"adminToken"`
	} `yaml:"server"`

	Training struct {
		CVFolds            int    `yaml:"cvFolds"`
		PermutationRepeats int    `yaml:"permutationRepeats"`
		RandomSeed         *int64 `yaml:"randomSeed"`
		MinSamples         int    `yaml:"minSamples"`
	} `yaml:"training"`

	System struct {
		DataPath string `yaml:"dataPath"`
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = common.DefaultRequestTimeout
	}

	seed := int64(common.DefaultRandomSeed)
	if config.Training.RandomSeed != nil {
		seed = *config.Training.RandomSeed
	}

	// Override with environment variables if they exist
	settings := Settings{
		ModelPath:         getEnvOrDefault(common.EnvModelPath, orString(config.Model.Path, common.DefaultModelPath)),
		MetadataPath:      getEnvOrDefault(common.EnvMetadataPath, orString(config.Model.MetadataPath, common.DefaultMetadataPath)),
		ThresholdOverride: getEnvOrDefault(common.EnvPredThreshold, config.Model.PredThreshold),
		AdminToken:        getEnvOrDefault(common.EnvAdminToken, orString(config.Server.AdminToken, common.DefaultAdminToken)),
		DataPath:          getEnvOrDefault(common.EnvDataPath, orString(config.System.DataPath, common.DefaultDataPath)),
		HTTPPort:          getIntOrDefault(common.EnvHTTPPort, orInt(config.Server.HTTPPort, common.DefaultHTTPPort)),
		MetricsPort:       getIntOrDefault(common.EnvMetricsPort, orInt(config.Server.MetricsPort, common.DefaultMetricsPort)),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, orString(config.System.LogLevel, common.DefaultLogLevel)),
		Training: TrainingSettings{
			CVFolds:            getIntOrDefault(common.EnvTrainCVFolds, orInt(config.Training.CVFolds, common.DefaultCVFolds)),
			PermutationRepeats: getIntOrDefault(common.EnvTrainPermutationRepeats, orInt(config.Training.PermutationRepeats, common.DefaultPermutationRepeats)),
			RandomSeed:         getInt64OrDefault(common.EnvTrainRandomSeed, seed),
			MinSamples:         getIntOrDefault(common.EnvTrainMinSamples, orInt(config.Training.MinSamples, common.DefaultMinSamples)),
		},
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:         getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		MetadataPath:      getEnvOrDefault(common.EnvMetadataPath, common.DefaultMetadataPath),
		ThresholdOverride: os.Getenv(common.EnvPredThreshold), // optional, validated when resolved
		AdminToken:        getEnvOrDefault(common.EnvAdminToken, common.DefaultAdminToken),
		DataPath:          getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		HTTPPort:          getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		MetricsPort:       getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeout),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		Training: TrainingSettings{
			CVFolds:            getIntOrDefault(common.EnvTrainCVFolds, common.DefaultCVFolds),
			PermutationRepeats: getIntOrDefault(common.EnvTrainPermutationRepeats, common.DefaultPermutationRepeats),
			RandomSeed:         getInt64OrDefault(common.EnvTrainRandomSeed, common.DefaultRandomSeed),
			MinSamples:         getIntOrDefault(common.EnvTrainMinSamples, common.DefaultMinSamples),
		},
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// StoreConfig returns the model store configuration.
func (s *Settings) StoreConfig() ml.StoreConfig {
	return ml.StoreConfig{
		ModelPath:         s.ModelPath,
		MetadataPath:      s.MetadataPath,
		ThresholdOverride: s.ThresholdOverride,
	}
}

// TrainerConfig returns the trainer configuration.
func (s *Settings) TrainerConfig() ml.TrainerConfig {
	return ml.TrainerConfig{
		Folds:              s.Training.CVFolds,
		PermutationRepeats: s.Training.PermutationRepeats,
		RandomSeed:         s.Training.RandomSeed,
		MinSamples:         s.Training.MinSamples,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

// validateSettings checks every configuration value and reports all violations at once
func validateSettings(settings *Settings) error {
	var result *multierror.Error

	// Validate paths
	if settings.ModelPath == "" {
		result = multierror.Append(result, fmt.Errorf("model path cannot be empty"))
	}
	if settings.MetadataPath == "" {
		result = multierror.Append(result, fmt.Errorf("metadata path cannot be empty"))
	}
	if settings.DataPath == "" {
		result = multierror.Append(result, fmt.Errorf("data path cannot be empty"))
	}
	if settings.AdminToken == "" {
		result = multierror.Append(result, fmt.Errorf("admin token cannot be empty"))
	}

	// Validate ports
	if settings.HTTPPort < common.MinPort || settings.HTTPPort > common.MaxPort {
		result = multierror.Append(result, fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.HTTPPort))
	}
	if settings.MetricsPort < common.MinPort || settings.MetricsPort > common.MaxPort {
		result = multierror.Append(result, fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.MetricsPort))
	}
	if settings.HTTPPort == settings.MetricsPort {
		result = multierror.Append(result, fmt.Errorf("HTTP port and metrics port must differ, both are %d", settings.HTTPPort))
	}

	// Validate time durations
	if settings.RequestTimeout < common.MinRequestTimeout || settings.RequestTimeout > common.MaxRequestTimeout {
		result = multierror.Append(result, fmt.Errorf("request timeout must be between 1s and 10m, got %v", settings.RequestTimeout))
	}

	// Validate training parameters
	if settings.Training.CVFolds < common.MinCVFolds || settings.Training.CVFolds > common.MaxCVFolds {
		result = multierror.Append(result, fmt.Errorf("CV folds must be between %d and %d, got %d", common.MinCVFolds, common.MaxCVFolds, settings.Training.CVFolds))
	}
	if settings.Training.PermutationRepeats < 1 || settings.Training.PermutationRepeats > common.MaxPermutationRepeats {
		result = multierror.Append(result, fmt.Errorf("permutation repeats must be between 1 and %d, got %d", common.MaxPermutationRepeats, settings.Training.PermutationRepeats))
	}
	if settings.Training.MinSamples < common.DefaultMinSamples {
		result = multierror.Append(result, fmt.Errorf("minimum training samples must be at least %d, got %d", common.DefaultMinSamples, settings.Training.MinSamples))
	}

	return result.ErrorOrNil()
}
