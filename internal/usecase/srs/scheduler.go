// Package srs schedules reviews with a modified SM-2 algorithm whose early
// intervals come from per item type tables tuned for motor skills.
package srs

import (
	"time"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/usecase/mastery"
)

// Quality is the SM-2 recall grade.
type Quality int

const (
	// QualityBlackout is a miss on the first try or a timeout.
	QualityBlackout Quality = 0
	// QualityIncorrect is a miss after the answer was shown.
	QualityIncorrect Quality = 1
	// QualityIncorrectFamiliar is a miss on a later try.
	QualityIncorrectFamiliar Quality = 2
	// QualityCorrectDifficult is a correct but slow answer.
	QualityCorrectDifficult Quality = 3
	// QualityCorrectHesitation is a correct answer within the expected time.
	QualityCorrectHesitation Quality = 4
	// QualityPerfect is a correct answer in half the expected time or less.
	QualityPerfect Quality = 5
)

// PassThreshold is the lowest quality that counts as a success.
const PassThreshold = QualityCorrectDifficult

// Observation is what a single scored attempt reports.
type Observation struct {
	Matched        bool
	ResponseTimeMs int64
	// AttemptNumber counts tries at the current presentation, starting at 1.
	AttemptNumber int
	Revealed      bool
	TimedOut      bool
}

// MasteryClassifier is the part of the mastery classifier the scheduler needs.
type MasteryClassifier interface {
	Classify(rec entity.ProgressRecord) entity.Classification
}

// Scheduler applies attempts to progress records. It holds no per-record
// state: RecordAttempt is deterministic in its arguments.
type Scheduler struct {
	cfg        Config
	classifier MasteryClassifier
}

// NewScheduler validates cfg. A nil classifier uses the default thresholds.
func NewScheduler(cfg Config, classifier MasteryClassifier) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		classifier = mastery.Default()
	}
	return &Scheduler{cfg: cfg, classifier: classifier}, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Quality grades obs for an item of itemType at the given mastery level.
func (s *Scheduler) Quality(itemType entity.ItemType, level entity.MasteryLevel, obs Observation) Quality {
	if !obs.Matched {
		switch {
		case obs.TimedOut:
			return s.cfg.Failure.FirstAttempt
		case obs.Revealed:
			return s.cfg.Failure.Revealed
		case obs.AttemptNumber <= 1:
			return s.cfg.Failure.FirstAttempt
		default:
			return s.cfg.Failure.Retry
		}
	}

	expected := s.cfg.Types[itemType].ExpectedTimes.For(TierFor(level))
	rt := time.Duration(obs.ResponseTimeMs) * time.Millisecond
	switch {
	case rt <= expected/2:
		return QualityPerfect
	case rt <= expected:
		return QualityCorrectHesitation
	default:
		return QualityCorrectDifficult
	}
}

// RecordAttempt returns rec updated by obs at now, together with the quality
// the attempt was graded with.
func (s *Scheduler) RecordAttempt(rec entity.ProgressRecord, obs Observation, now time.Time) (entity.ProgressRecord, Quality, error) {
	if err := rec.Key().Validate(); err != nil {
		return rec, 0, err
	}
	next := *rec.Clone()
	next.Normalize(now)

	tc := s.cfg.Types[next.ItemType]
	level := s.classifier.Classify(next).Mastery
	q := s.Quality(next.ItemType, level, obs)

	var interval time.Duration
	if q >= PassThreshold {
		interval = s.successInterval(next, tc, level)
		next.EaseFactor = entity.ClampEase(nextEase(next.EaseFactor, q))
		next.Repetitions++
	} else {
		interval = tc.Seed()
		next.Repetitions = 0
	}
	next.IntervalDays = entity.DurationToDays(interval)

	next.TotalAttempts++
	if obs.Matched {
		next.CorrectAttempts++
		rt := float64(max(obs.ResponseTimeMs, 0))
		next.AverageResponseTimeMs += (rt - next.AverageResponseTimeMs) / float64(next.CorrectAttempts)
	}
	next.LastQuality = int(q)
	attemptedAt := now
	next.LastAttemptDate = &attemptedAt
	next.NextReviewDate = now.Add(next.Interval())
	return next, q, nil
}

func (s *Scheduler) successInterval(rec entity.ProgressRecord, tc TypeConfig, level entity.MasteryLevel) time.Duration {
	prev := rec.Interval()

	var interval time.Duration
	if rec.Repetitions < len(tc.Intervals) {
		interval = tc.Intervals[rec.Repetitions]
	} else {
		limit := s.cfg.MaxIntervalNotMastered
		if level == entity.MasteryMastered {
			limit = s.cfg.MaxIntervalMastered
		}
		interval = time.Duration(float64(prev) * rec.EaseFactor)
		if interval > limit {
			interval = limit
		}
	}
	// Consecutive successes never shorten the gap, even when a cap or an
	// imported record would.
	if interval < prev {
		interval = prev
	}
	return interval
}

// nextEase is the SM-2 ease adjustment.
func nextEase(ef float64, q Quality) float64 {
	d := 5 - float64(q)
	return ef + (0.1 - d*(0.08+d*0.02))
}
