package common

import "time"

// Feature names
const (
	FeatureAttendance     = "attendance"
	FeatureMarks          = "marks"
	FeatureInternalScore  = "internal_score"
	FeatureFinalExamScore = "final_exam_score"
)

// Environment variable keys
const (
	EnvConfigFile              = "CONFIG_FILE"
	EnvModelPath               = "MODEL_PATH"
	EnvMetadataPath            = "MODEL_METADATA_PATH"
	EnvPredThreshold           = "PRED_THRESHOLD"
	EnvAdminToken              = "ADMIN_TOKEN"
	EnvDataPath                = "DATA_PATH"
	EnvHTTPPort                = "HTTP_PORT"
	EnvMetricsPort             = "METRICS_PORT"
	EnvRequestTimeout          = "REQUEST_TIMEOUT"
	EnvTrainCVFolds            = "TRAIN_CV_FOLDS"
	EnvTrainPermutationRepeats = "TRAIN_PERMUTATION_REPEATS"
	EnvTrainRandomSeed         = "TRAIN_RANDOM_SEED"
	EnvTrainMinSamples         = "TRAIN_MIN_SAMPLES"
	EnvLogLevel                = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultModelPath          = "./models/marks_classifier.gob"
	DefaultMetadataPath       = "./models/metadata.json"
	DefaultAdminToken         = "changeme"
	DefaultDataPath           = "./data"
	DefaultHTTPPort           = 8000
	DefaultMetricsPort        = 9090
	DefaultLogLevel           = "info"
	DefaultCVFolds            = 5
	DefaultPermutationRepeats = 20
	DefaultRandomSeed         = 42
	DefaultMinSamples         = 10
	DefaultRequestTimeout     = 30 * time.Second
)

// Decision threshold policy
const (
	DefaultThreshold        = 0.6
	RecommendedThresholdMin = 0.6
)

// Threshold sources reported by the model store
const (
	ThresholdSourceEnv         = "env"
	ThresholdSourceUser        = "metadata:user"
	ThresholdSourceRecommended = "metadata:recommended"
	ThresholdSourceDefault     = "default"
)

// Validation constants
const (
	MinPort               = 1024
	MaxPort               = 65535
	MinCVFolds            = 2
	MaxCVFolds            = 20
	MaxPermutationRepeats = 1000
	MinRequestTimeout     = time.Second
	MaxRequestTimeout     = 10 * time.Minute
)

// Common error messages
const (
	ErrMsgModelNotTrained = "Model not trained yet. Please train the model first using /api/retrain"
	ErrMsgUnauthorized    = "Invalid admin token"
	ErrMsgMissingAuth     = "Authorization header missing"
)
