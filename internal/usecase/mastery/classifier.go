// Package mastery derives mastery and confidence labels from progress records.
// Labels are never stored; every read recomputes them from the record.
package mastery

import (
	"fmt"

	"github.com/eslsoft/chordnet/internal/entity"
)

// Config holds the classification thresholds.
type Config struct {
	MasteredMinRepetitions   int
	MasteredMinEase          float64
	MasteredMinAccuracy      float64
	MasteredMinIntervalDays  float64
	MasteredMaxAvgResponseMs float64

	FamiliarMinAccuracy float64
	FamiliarMinAttempts int

	StrongMinAttempts      int
	StrongMinAccuracy      float64
	StrongMaxAvgResponseMs float64

	ModerateMinAttempts      int
	ModerateMinAccuracy      float64
	ModerateMaxAvgResponseMs float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MasteredMinRepetitions:   5,
		MasteredMinEase:          2.0,
		MasteredMinAccuracy:      0.85,
		MasteredMinIntervalDays:  7,
		MasteredMaxAvgResponseMs: 800,

		FamiliarMinAccuracy: 0.7,
		FamiliarMinAttempts: 5,

		StrongMinAttempts:      10,
		StrongMinAccuracy:      0.9,
		StrongMaxAvgResponseMs: 800,

		ModerateMinAttempts:      5,
		ModerateMinAccuracy:      0.7,
		ModerateMaxAvgResponseMs: 1500,
	}
}

// Validate checks ranges and that each higher tier is strictly harder to
// reach than the one below it. Repetitions count successful attempts, so a
// repetition threshold at or above the familiar attempt threshold implies it.
func (c Config) Validate() error {
	for name, acc := range map[string]float64{
		"mastered accuracy": c.MasteredMinAccuracy,
		"familiar accuracy": c.FamiliarMinAccuracy,
		"strong accuracy":   c.StrongMinAccuracy,
		"moderate accuracy": c.ModerateMinAccuracy,
	} {
		if acc < 0 || acc > 1 {
			return fmt.Errorf("%w: %s must be within [0,1]", entity.ErrInvalidConfig, name)
		}
	}
	if c.MasteredMinRepetitions <= 0 || c.FamiliarMinAttempts <= 0 {
		return fmt.Errorf("%w: mastery attempt thresholds must be positive", entity.ErrInvalidConfig)
	}
	if c.MasteredMinEase < entity.MinEaseFactor || c.MasteredMinEase > entity.MaxEaseFactor {
		return fmt.Errorf("%w: mastered ease must be within [%.1f,%.1f]", entity.ErrInvalidConfig, entity.MinEaseFactor, entity.MaxEaseFactor)
	}
	if c.MasteredMinIntervalDays < 0 {
		return fmt.Errorf("%w: mastered interval must not be negative", entity.ErrInvalidConfig)
	}
	if c.MasteredMinAccuracy < c.FamiliarMinAccuracy || c.MasteredMinRepetitions < c.FamiliarMinAttempts {
		return fmt.Errorf("%w: mastered thresholds must imply familiar", entity.ErrInvalidConfig)
	}
	if c.StrongMinAccuracy < c.ModerateMinAccuracy ||
		c.StrongMinAttempts < c.ModerateMinAttempts ||
		c.StrongMaxAvgResponseMs > c.ModerateMaxAvgResponseMs {
		return fmt.Errorf("%w: strong thresholds must imply moderate", entity.ErrInvalidConfig)
	}
	return nil
}

// Classifier is a pure function of a record and its thresholds.
type Classifier struct {
	cfg Config
}

// NewClassifier validates cfg.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Default returns a classifier with DefaultConfig.
func Default() *Classifier {
	return &Classifier{cfg: DefaultConfig()}
}

// Config returns the thresholds in use.
func (c *Classifier) Config() Config { return c.cfg }

// Classify labels rec.
func (c *Classifier) Classify(rec entity.ProgressRecord) entity.Classification {
	return entity.Classification{
		Mastery:    c.Mastery(rec),
		Confidence: c.Confidence(rec),
	}
}

// Mastery returns the mastery level of rec.
func (c *Classifier) Mastery(rec entity.ProgressRecord) entity.MasteryLevel {
	acc := rec.Accuracy()
	switch {
	case c.mastered(rec, acc):
		return entity.MasteryMastered
	case acc >= c.cfg.FamiliarMinAccuracy && rec.TotalAttempts >= c.cfg.FamiliarMinAttempts:
		return entity.MasteryFamiliar
	case rec.TotalAttempts > 0:
		return entity.MasteryLearning
	default:
		return entity.MasteryNew
	}
}

func (c *Classifier) mastered(rec entity.ProgressRecord, acc float64) bool {
	return rec.Repetitions >= c.cfg.MasteredMinRepetitions &&
		rec.EaseFactor >= c.cfg.MasteredMinEase &&
		acc >= c.cfg.MasteredMinAccuracy &&
		rec.IntervalDays >= c.cfg.MasteredMinIntervalDays &&
		(rec.AverageResponseTimeMs == 0 || rec.AverageResponseTimeMs <= c.cfg.MasteredMaxAvgResponseMs)
}

// Confidence returns the confidence level of rec. Weak is the fallback for
// every record that does not qualify for a higher level.
func (c *Classifier) Confidence(rec entity.ProgressRecord) entity.ConfidenceLevel {
	acc := rec.Accuracy()
	switch {
	case rec.TotalAttempts >= c.cfg.StrongMinAttempts &&
		acc >= c.cfg.StrongMinAccuracy &&
		rec.AverageResponseTimeMs <= c.cfg.StrongMaxAvgResponseMs:
		return entity.ConfidenceStrong
	case rec.TotalAttempts >= c.cfg.ModerateMinAttempts &&
		acc >= c.cfg.ModerateMinAccuracy &&
		rec.AverageResponseTimeMs <= c.cfg.ModerateMaxAvgResponseMs:
		return entity.ConfidenceModerate
	default:
		return entity.ConfidenceWeak
	}
}

// View builds the read model returned to callers.
func (c *Classifier) View(rec entity.ProgressRecord) entity.ProgressView {
	cls := c.Classify(rec)
	return entity.ProgressView{
		Record:         rec,
		Mastery:        cls.Mastery,
		Confidence:     cls.Confidence,
		NextReviewDate: rec.NextReviewDate,
		Accuracy:       rec.Accuracy(),
	}
}
