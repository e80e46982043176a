package entity

import (
	"math"
	"time"
)

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
	MaxEaseFactor     = 3.5
)

// ProgressRecord is the durable learning state of one item.
type ProgressRecord struct {
	ItemID   string
	ItemType ItemType

	Repetitions    int
	EaseFactor     float64
	IntervalDays   float64
	NextReviewDate time.Time

	TotalAttempts         int
	CorrectAttempts       int
	AverageResponseTimeMs float64
	LastQuality           int
	LastAttemptDate       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProgressRecord returns the state of an item that has never been attempted.
// A fresh record is due immediately.
func NewProgressRecord(key ItemKey, now time.Time) *ProgressRecord {
	return &ProgressRecord{
		ItemID:         key.ID,
		ItemType:       key.Type,
		EaseFactor:     DefaultEaseFactor,
		NextReviewDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Key returns the identity of the record.
func (p *ProgressRecord) Key() ItemKey {
	return ItemKey{ID: p.ItemID, Type: p.ItemType}
}

// Accuracy returns correctAttempts / totalAttempts, or 0 before the first attempt.
func (p *ProgressRecord) Accuracy() float64 {
	if p.TotalAttempts <= 0 {
		return 0
	}
	acc := float64(p.CorrectAttempts) / float64(p.TotalAttempts)
	switch {
	case acc < 0:
		return 0
	case acc > 1:
		return 1
	}
	return acc
}

// IsDue reports whether the record's next review is at or before now.
func (p *ProgressRecord) IsDue(now time.Time) bool {
	return !p.NextReviewDate.After(now)
}

// Interval converts IntervalDays into a duration.
func (p *ProgressRecord) Interval() time.Duration {
	return DaysToDuration(p.IntervalDays)
}

// Clone returns a deep copy of the record.
func (p *ProgressRecord) Clone() *ProgressRecord {
	if p == nil {
		return nil
	}
	copy := *p
	if p.LastAttemptDate != nil {
		last := *p.LastAttemptDate
		copy.LastAttemptDate = &last
	}
	return &copy
}

// Normalize clamps stored state into its allowed ranges and fills defaults
// before persistence.
func (p *ProgressRecord) Normalize(now time.Time) {
	p.ItemID = NormalizeItemID(p.ItemID)
	if p.EaseFactor == 0 {
		p.EaseFactor = DefaultEaseFactor
	}
	p.EaseFactor = ClampEase(p.EaseFactor)
	if p.IntervalDays < 0 {
		p.IntervalDays = 0
	}
	if p.Repetitions < 0 {
		p.Repetitions = 0
	}
	if p.TotalAttempts < 0 {
		p.TotalAttempts = 0
	}
	if p.CorrectAttempts < 0 {
		p.CorrectAttempts = 0
	}
	if p.CorrectAttempts > p.TotalAttempts {
		p.CorrectAttempts = p.TotalAttempts
	}
	if p.AverageResponseTimeMs < 0 {
		p.AverageResponseTimeMs = 0
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// ClampEase bounds an ease factor to [MinEaseFactor, MaxEaseFactor].
func ClampEase(ef float64) float64 {
	if ef < MinEaseFactor {
		return MinEaseFactor
	}
	if ef > MaxEaseFactor {
		return MaxEaseFactor
	}
	return ef
}

// DaysToDuration converts fractional days into a duration.
func DaysToDuration(days float64) time.Duration {
	return time.Duration(math.Round(days * float64(24*time.Hour)))
}

// DurationToDays converts a duration into fractional days.
func DurationToDays(d time.Duration) float64 {
	return float64(d) / float64(24*time.Hour)
}
