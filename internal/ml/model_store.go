package ml

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"student-perf/internal/common"
)

// FittedModel is the deployed artifact: the calibrated classifier plus the
// feature order its vectors follow.
type FittedModel struct {
	FeatureNames []string
	Calibrated   CalibratedModel
	TrainedAt    time.Time
}

// Probability returns the calibrated pass probability of a raw feature vector.
func (m *FittedModel) Probability(x []float64) float64 {
	return m.Calibrated.Probability(x)
}

// ImputationStat records how many values of a feature were imputed and with what.
type ImputationStat struct {
	ImputedCount int      `json:"imputed_count"`
	MedianUsed   *float64 `json:"median_used,omitempty"`
}

// ScalerStats are the per-feature standardization parameters of the reference fit.
type ScalerStats struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Metadata is the JSON document stored next to the model artifact.
type Metadata struct {
	GeneratedAt           string                    `json:"generated_at,omitempty"`
	FeatureNames          []string                  `json:"feature_names,omitempty"`
	SamplesUsed           int                       `json:"samples_used,omitempty"`
	ClassCounts           map[int]int               `json:"class_counts,omitempty"`
	ClassDistribution     map[int]float64           `json:"class_distribution,omitempty"`
	Imputation            map[string]ImputationStat `json:"imputation,omitempty"`
	Coefficients          map[string]float64        `json:"coefficients,omitempty"`
	Intercept             *float64                  `json:"intercept,omitempty"`
	PermutationImportance map[string]float64        `json:"permutation_importance,omitempty"`
	MetricsCV             *ClassificationReport     `json:"metrics_cv,omitempty"`
	ROCAUC                *float64                  `json:"roc_auc,omitempty"`
	RecommendedThreshold  *float64                  `json:"recommended_threshold,omitempty"`
	Scaler                *ScalerStats              `json:"scaler,omitempty"`
	UserThreshold         *float64                  `json:"user_threshold,omitempty"`
	UserThresholdSetAt    string                    `json:"user_threshold_set_at,omitempty"`
}

// StoreConfig locates the model files. ThresholdOverride is the raw operator
// override; it is validated each time the threshold is resolved.
type StoreConfig struct {
	ModelPath         string
	MetadataPath      string
	ThresholdOverride string
}

// ModelStore persists and loads the model artifact and its metadata document.
type ModelStore struct {
	mu     sync.Mutex
	config StoreConfig
}

// NewModelStore creates a store for the configured paths.
func NewModelStore(config StoreConfig) *ModelStore {
	return &ModelStore{config: config}
}

// ModelPath returns the artifact location.
func (s *ModelStore) ModelPath() string { return s.config.ModelPath }

// MetadataPath returns the metadata document location.
func (s *ModelStore) MetadataPath() string { return s.config.MetadataPath }

// Save writes the model artifact and metadata. A user threshold present in the
// previous metadata document is carried forward unless meta sets its own.
func (s *ModelStore) Save(model *FittedModel, meta *Metadata) error {
	if model == nil || meta == nil {
		return errors.New("model and metadata are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.UserThreshold == nil {
		if previous, err := s.readMetadata(); err != nil {
			log.Warn().Err(err).Str("path", s.config.MetadataPath).Msg("Unable to preserve existing metadata")
		} else if previous != nil && previous.UserThreshold != nil {
			meta.UserThreshold = previous.UserThreshold
			meta.UserThresholdSetAt = previous.UserThresholdSetAt
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(model); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := writeFileAtomic(s.config.ModelPath, buf.Bytes()); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	log.Info().Str("path", s.config.ModelPath).Msg("Calibrated model saved")

	if err := s.writeMetadata(meta); err != nil {
		return err
	}
	log.Info().Str("path", s.config.MetadataPath).Msg("Training metadata saved")
	return nil
}

// Load reads the model artifact and its metadata. A missing artifact yields
// ModelNotFoundError; missing or malformed metadata degrades to an empty document.
func (s *ModelStore) Load() (*FittedModel, *Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.config.ModelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &ModelNotFoundError{Path: s.config.ModelPath}
		}
		return nil, nil, fmt.Errorf("read model: %w", err)
	}

	var model FittedModel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&model); err != nil {
		return nil, nil, fmt.Errorf("decode model %s: %w", s.config.ModelPath, err)
	}
	if len(model.Calibrated.Members) == 0 {
		return nil, nil, fmt.Errorf("model %s has no calibrated members", s.config.ModelPath)
	}

	return &model, s.metadataOrEmpty(), nil
}

// LoadMetadata returns the metadata document, or an empty one when it is
// missing or unreadable.
func (s *ModelStore) LoadMetadata() *Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataOrEmpty()
}

// ResolveThreshold picks the decision threshold and reports where it came from:
// operator override, then the user threshold, then the recommended one, then
// the default.
func (s *ModelStore) ResolveThreshold(meta *Metadata) (float64, string) {
	if raw := s.config.ThresholdOverride; raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		switch {
		case err != nil:
			log.Warn().Str("value", raw).Msg("Invalid PRED_THRESHOLD value")
		case !validThreshold(v):
			log.Warn().Str("value", raw).Msg("PRED_THRESHOLD out of range (0,1)")
		default:
			return v, common.ThresholdSourceEnv
		}
	}

	if meta != nil {
		if meta.UserThreshold != nil && validThreshold(*meta.UserThreshold) {
			return *meta.UserThreshold, common.ThresholdSourceUser
		}
		if meta.RecommendedThreshold != nil && validThreshold(*meta.RecommendedThreshold) {
			return *meta.RecommendedThreshold, common.ThresholdSourceRecommended
		}
	}

	return common.DefaultThreshold, common.ThresholdSourceDefault
}

// Threshold resolves the threshold against the stored metadata.
func (s *ModelStore) Threshold() (float64, string) {
	return s.ResolveThreshold(s.LoadMetadata())
}

// SetThreshold persists a user threshold. The recommended threshold is seeded
// with max(0.6, value) when the document has none.
func (s *ModelStore) SetThreshold(value float64, now time.Time) (*Metadata, error) {
	if !validThreshold(value) {
		return nil, &InvalidThresholdError{Value: value}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.metadataOrEmpty()
	meta.UserThreshold = &value
	meta.UserThresholdSetAt = now.UTC().Format(time.RFC3339Nano)
	if meta.RecommendedThreshold == nil {
		rec := max(common.RecommendedThresholdMin, value)
		meta.RecommendedThreshold = &rec
	}

	if err := s.writeMetadata(meta); err != nil {
		return nil, err
	}
	log.Info().Float64("threshold", value).Msg("User threshold updated")
	return meta, nil
}

func (s *ModelStore) metadataOrEmpty() *Metadata {
	meta, err := s.readMetadata()
	if err != nil {
		log.Warn().Err(err).Str("path", s.config.MetadataPath).Msg("Unable to read metadata, using defaults")
		return &Metadata{}
	}
	if meta == nil {
		log.Warn().Str("path", s.config.MetadataPath).Msg("Metadata file missing")
		return &Metadata{}
	}
	return meta
}

// readMetadata returns nil, nil when the document does not exist. Fields with
// the wrong JSON type are skipped and the rest of the document is kept.
func (s *ModelStore) readMetadata() (*Metadata, error) {
	data, err := os.ReadFile(s.config.MetadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
		log.Warn().Err(err).Str("field", typeErr.Field).Msg("Ignoring malformed metadata field")
	}
	return &meta, nil
}

func (s *ModelStore) writeMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeFileAtomic(s.config.MetadataPath, data); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// writeFileAtomic writes through a temporary file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func validThreshold(v float64) bool {
	return v > 0 && v < 1
}
