package srs

import (
	"fmt"
	"time"

	"github.com/eslsoft/chordnet/internal/entity"
)

// Tier selects which expected response time applies to an item.
type Tier string

const (
	TierBeginner     Tier = "beginner"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
)

// TierFor maps a mastery level onto an expected-time tier.
func TierFor(level entity.MasteryLevel) Tier {
	switch level {
	case entity.MasteryMastered:
		return TierAdvanced
	case entity.MasteryFamiliar:
		return TierIntermediate
	default:
		return TierBeginner
	}
}

// ExpectedTimes are the response times a learner at each tier should reach.
type ExpectedTimes struct {
	Beginner     time.Duration
	Intermediate time.Duration
	Advanced     time.Duration
}

// For returns the expected time of tier.
func (e ExpectedTimes) For(tier Tier) time.Duration {
	switch tier {
	case TierAdvanced:
		return e.Advanced
	case TierIntermediate:
		return e.Intermediate
	default:
		return e.Beginner
	}
}

// TypeConfig is the per item type part of the scheduler configuration.
type TypeConfig struct {
	ExpectedTimes ExpectedTimes
	// Intervals is the accelerated table used for the first successes,
	// indexed by the repetitions count before the attempt.
	Intervals []time.Duration
}

// Seed is the interval a failed item restarts from.
func (t TypeConfig) Seed() time.Duration {
	return t.Intervals[0]
}

// FailureQualities maps the circumstances of a miss onto an SM-2 quality.
type FailureQualities struct {
	FirstAttempt Quality
	Revealed     Quality
	Retry        Quality
}

// Config configures the scheduler.
type Config struct {
	Types                  map[entity.ItemType]TypeConfig
	Failure                FailureQualities
	MaxIntervalMastered    time.Duration
	MaxIntervalNotMastered time.Duration
}

// DefaultConfig returns the stock tables. Motor-skill items climb from
// minutes to days instead of starting at a one day gap.
func DefaultConfig() Config {
	return Config{
		Types: map[entity.ItemType]TypeConfig{
			entity.ItemTypeCharacter: {
				ExpectedTimes: ExpectedTimes{Beginner: 2000 * time.Millisecond, Intermediate: 1000 * time.Millisecond, Advanced: 500 * time.Millisecond},
				Intervals:     []time.Duration{2 * time.Minute, 10 * time.Minute, time.Hour, 8 * time.Hour, 24 * time.Hour, 3 * 24 * time.Hour},
			},
			entity.ItemTypeTwoKeyChord: {
				ExpectedTimes: ExpectedTimes{Beginner: 2500 * time.Millisecond, Intermediate: 1500 * time.Millisecond, Advanced: 800 * time.Millisecond},
				Intervals:     []time.Duration{3 * time.Minute, 15 * time.Minute, 2 * time.Hour, 12 * time.Hour, 24 * time.Hour, 3 * 24 * time.Hour},
			},
			entity.ItemTypeWord: {
				ExpectedTimes: ExpectedTimes{Beginner: 4000 * time.Millisecond, Intermediate: 2500 * time.Millisecond, Advanced: 1200 * time.Millisecond},
				Intervals:     []time.Duration{5 * time.Minute, 30 * time.Minute, 4 * time.Hour, 24 * time.Hour, 3 * 24 * time.Hour},
			},
		},
		Failure: FailureQualities{
			FirstAttempt: QualityBlackout,
			Revealed:     QualityIncorrect,
			Retry:        QualityIncorrectFamiliar,
		},
		MaxIntervalMastered:    180 * 24 * time.Hour,
		MaxIntervalNotMastered: 14 * 24 * time.Hour,
	}
}

// Validate requires a complete table for every item type.
func (c Config) Validate() error {
	for _, itemType := range entity.ItemTypes {
		tc, ok := c.Types[itemType]
		if !ok {
			return fmt.Errorf("%w: no schedule for item type %s", entity.ErrInvalidConfig, itemType)
		}
		if err := tc.validate(); err != nil {
			return fmt.Errorf("%w: item type %s: %s", entity.ErrInvalidConfig, itemType, err.Error())
		}
	}
	for _, q := range []Quality{c.Failure.FirstAttempt, c.Failure.Revealed, c.Failure.Retry} {
		if q < QualityBlackout || q >= PassThreshold {
			return fmt.Errorf("%w: failure quality %d must be below %d", entity.ErrInvalidConfig, q, PassThreshold)
		}
	}
	if c.MaxIntervalNotMastered <= 0 || c.MaxIntervalMastered < c.MaxIntervalNotMastered {
		return fmt.Errorf("%w: interval caps must be positive and the mastered cap the larger", entity.ErrInvalidConfig)
	}
	return nil
}

func (t TypeConfig) validate() error {
	e := t.ExpectedTimes
	if e.Beginner <= 0 || e.Intermediate <= 0 || e.Advanced <= 0 {
		return fmt.Errorf("expected times must be positive")
	}
	if len(t.Intervals) == 0 {
		return fmt.Errorf("interval table is empty")
	}
	for i, d := range t.Intervals {
		if d <= 0 {
			return fmt.Errorf("interval %d must be positive", i)
		}
		if i > 0 && d < t.Intervals[i-1] {
			return fmt.Errorf("interval table must be ascending")
		}
	}
	return nil
}
