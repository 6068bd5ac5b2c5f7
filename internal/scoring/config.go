package scoring

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"clinic_reviews/internal/domain"
)

// Config is the validated, immutable numeric policy for a scoring run.
// Invalid combinations are fatal at load time; no partial run is attempted.
type Config struct {
	Bayesian   BayesianConfig   `yaml:"bayesian"`
	NPS        NPSConfig        `yaml:"nps"`
	Processing ProcessingConfig `yaml:"processing"`

	ServiceQualityWeights map[string]float64 `yaml:"service_quality_weights"`
	CommunicationWeights  map[string]float64 `yaml:"communication_weights"`

	OnlineCommunicationRules OnlineCommunicationRules `yaml:"online_communication_rules"`
	ReviewerWeights          ReviewerWeights          `yaml:"reviewer_weights"`

	TargetEstablishments []int64 `yaml:"target_establishments"`
	PublishedAfter       string  `yaml:"published_after"`

	// parsed form of PublishedAfter, populated by Validate
	publishedAfter *time.Time
}

type BayesianConfig struct {
	// PriorWeight is how many observations of prior-strength evidence equal
	// one real review.
	PriorWeight float64 `yaml:"prior_weight"`
}

type NPSConfig struct {
	// Bands over the 0..3 ordinal scale: score < low is a detractor,
	// score >= high is a promoter, in between is passive.
	ThresholdLow  float64 `yaml:"threshold_low"`
	ThresholdHigh float64 `yaml:"threshold_high"`
}

type ProcessingConfig struct {
	BatchSize          int `yaml:"batch_size"`
	SentimentBatchSize int `yaml:"sentiment_batch_size"`
	MinReviewLength    int `yaml:"min_review_length"`
}

// OnlineCommunicationRules maps complaint/response situations to the derived
// online_communication observation. Non-complaint reviews carry no
// observation at all — the attribute is not applicable to them.
type OnlineCommunicationRules struct {
	ComplaintNoResponse   int `yaml:"complaint_no_response"`
	ComplaintResponsePoor int `yaml:"complaint_response_poor"`
	ComplaintResponseGood int `yaml:"complaint_response_good"`
}

// ReviewerWeights boost the supplemental star-rating averages for reviewers
// with authenticity signals.
type ReviewerWeights struct {
	Default            float64 `yaml:"default"`
	MapsLocalGuide     float64 `yaml:"maps_local_guide"`
	TrustpilotVerified float64 `yaml:"trustpilot_verified"`
}

// Default mirrors the shipped config/pipeline.yaml.
func Default() Config {
	return Config{
		Bayesian: BayesianConfig{PriorWeight: 10},
		NPS:      NPSConfig{ThresholdLow: 1.5, ThresholdHigh: 2.5},
		Processing: ProcessingConfig{
			BatchSize:          25,
			SentimentBatchSize: 3,
			MinReviewLength:    10,
		},
		ServiceQualityWeights: map[string]float64{
			domain.AttrTreatmentSatisfaction: 0.30,
			domain.AttrPostOp:                0.20,
			domain.AttrStaffSatisfaction:     0.30,
			domain.AttrFacility:              0.20,
		},
		CommunicationWeights: map[string]float64{
			domain.AttrOnsiteCommunication: 0.40,
			domain.AttrScheduling:          0.20,
			domain.AttrOnlineCommunication: 0.40,
		},
		OnlineCommunicationRules: OnlineCommunicationRules{
			ComplaintNoResponse:   1,
			ComplaintResponsePoor: 2,
			ComplaintResponseGood: 3,
		},
		ReviewerWeights: ReviewerWeights{
			Default:            1.0,
			MapsLocalGuide:     1.25,
			TrustpilotVerified: 1.25,
		},
	}
}

// Load reads the YAML config at path, filling omitted sections from Default.
// A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if verr := cfg.Validate(); verr != nil {
				return Config{}, verr
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Bayesian.PriorWeight < 0 {
		return fmt.Errorf("bayesian.prior_weight must be >= 0, got %v", c.Bayesian.PriorWeight)
	}
	if c.NPS.ThresholdLow < 0 || c.NPS.ThresholdHigh > 3 {
		return fmt.Errorf("nps thresholds must lie in [0,3], got low=%v high=%v",
			c.NPS.ThresholdLow, c.NPS.ThresholdHigh)
	}
	if c.NPS.ThresholdLow >= c.NPS.ThresholdHigh {
		return fmt.Errorf("nps.threshold_low (%v) must be below nps.threshold_high (%v)",
			c.NPS.ThresholdLow, c.NPS.ThresholdHigh)
	}
	if err := validateWeights("service_quality_weights", c.ServiceQualityWeights); err != nil {
		return err
	}
	if err := validateWeights("communication_weights", c.CommunicationWeights); err != nil {
		return err
	}
	for name, v := range map[string]int{
		"complaint_no_response":   c.OnlineCommunicationRules.ComplaintNoResponse,
		"complaint_response_poor": c.OnlineCommunicationRules.ComplaintResponsePoor,
		"complaint_response_good": c.OnlineCommunicationRules.ComplaintResponseGood,
	} {
		if v < 0 || v > 3 {
			return fmt.Errorf("online_communication_rules.%s must be in 0..3, got %d", name, v)
		}
	}
	if c.ReviewerWeights.Default <= 0 || c.ReviewerWeights.MapsLocalGuide <= 0 || c.ReviewerWeights.TrustpilotVerified <= 0 {
		return fmt.Errorf("reviewer_weights must be positive")
	}
	if c.Processing.BatchSize <= 0 {
		return fmt.Errorf("processing.batch_size must be positive, got %d", c.Processing.BatchSize)
	}
	if c.Processing.SentimentBatchSize <= 0 {
		return fmt.Errorf("processing.sentiment_batch_size must be positive, got %d", c.Processing.SentimentBatchSize)
	}
	if c.PublishedAfter != "" {
		t, err := time.Parse(time.RFC3339, c.PublishedAfter)
		if err != nil {
			return fmt.Errorf("published_after: %w", err)
		}
		c.publishedAfter = &t
	}
	return nil
}

// PublishedAfterTime returns the parsed published_after lower bound, nil when
// unset. Valid only after Validate.
func (c *Config) PublishedAfterTime() *time.Time { return c.publishedAfter }

func validateWeights(section string, w map[string]float64) error {
	known := map[string]bool{}
	for _, a := range domain.SentimentAttributes {
		known[a] = true
	}
	known[domain.AttrOnlineCommunication] = true

	sum := 0.0
	for attr, weight := range w {
		if !known[attr] {
			return fmt.Errorf("%s: unknown attribute %q", section, attr)
		}
		if weight < 0 {
			return fmt.Errorf("%s: weight for %s must be >= 0, got %v", section, attr, weight)
		}
		sum += weight
	}
	if len(w) == 0 || sum == 0 {
		return fmt.Errorf("%s: at least one positive weight required", section)
	}
	return nil
}
