// Package selection computes how strongly each item should be favoured when a
// practice batch is drawn, and which items are due for review.
package selection

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/chordnet/internal/entity"
)

// Config holds the weight formula coefficients.
type Config struct {
	MinBaseWeight       float64
	FailedMultiplier    float64
	OverdueBoostPerDay  float64
	LowAttemptThreshold int
	LowAttemptBonus     float64
}

// DefaultConfig returns the stock coefficients.
func DefaultConfig() Config {
	return Config{
		MinBaseWeight:       0.1,
		FailedMultiplier:    4,
		OverdueBoostPerDay:  1,
		LowAttemptThreshold: 3,
		LowAttemptBonus:     0.5,
	}
}

// Validate keeps every weight strictly positive.
func (c Config) Validate() error {
	if c.MinBaseWeight <= 0 {
		return fmt.Errorf("%w: base weight must be positive", entity.ErrInvalidConfig)
	}
	if c.FailedMultiplier < 0 || c.OverdueBoostPerDay < 0 || c.LowAttemptBonus < 0 || c.LowAttemptThreshold < 0 {
		return fmt.Errorf("%w: weight coefficients must not be negative", entity.ErrInvalidConfig)
	}
	return nil
}

// Weighted pairs a record with its sampling weight.
type Weighted struct {
	Record entity.ProgressRecord
	Weight float64
}

// Weighter computes sampling weights.
type Weighter struct {
	cfg Config
}

// NewWeighter validates cfg.
func NewWeighter(cfg Config) (*Weighter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Weighter{cfg: cfg}, nil
}

// Weight returns the sampling weight of rec at now. It is always positive.
func (w *Weighter) Weight(rec entity.ProgressRecord, now time.Time) float64 {
	weight := w.cfg.MinBaseWeight + (1-rec.Accuracy())*w.cfg.FailedMultiplier
	if overdue := now.Sub(rec.NextReviewDate); overdue > 0 {
		weight += overdue.Hours() / 24 * w.cfg.OverdueBoostPerDay
	}
	if rec.TotalAttempts < w.cfg.LowAttemptThreshold {
		weight += w.cfg.LowAttemptBonus
	}
	return weight
}

// Weights weighs every record, heaviest first.
func (w *Weighter) Weights(records []entity.ProgressRecord, now time.Time) []Weighted {
	out := lo.Map(records, func(rec entity.ProgressRecord, _ int) Weighted {
		return Weighted{Record: rec, Weight: w.Weight(rec, now)}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight > out[j].Weight
	})
	return out
}

// Due returns the records whose next review is at or before now, most overdue first.
func Due(records []entity.ProgressRecord, now time.Time) []entity.ProgressRecord {
	due := lo.Filter(records, func(rec entity.ProgressRecord, _ int) bool {
		return rec.IsDue(now)
	})
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextReviewDate.Before(due[j].NextReviewDate)
	})
	return due
}

// Sample draws up to n items without replacement, each draw proportional to
// the remaining weights.
func Sample(rng *rand.Rand, items []Weighted, n int) []Weighted {
	pool := make([]Weighted, len(items))
	copy(pool, items)
	if n > len(pool) {
		n = len(pool)
	}
	if n < 0 {
		n = 0
	}

	picked := make([]Weighted, 0, n)
	for len(picked) < n {
		total := lo.SumBy(pool, func(item Weighted) float64 { return item.Weight })
		r := rng.Float64() * total
		idx := len(pool) - 1
		for i, item := range pool {
			r -= item.Weight
			if r < 0 {
				idx = i
				break
			}
		}
		picked = append(picked, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return picked
}
