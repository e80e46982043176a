package entity

import "time"

// AttemptResult is the outcome of scoring one attempt against an item.
type AttemptResult struct {
	Quality int
	View    ProgressView
	// Persisted is false when the store rejected the save. The view still
	// reflects the updated record.
	Persisted bool
}

// AttemptEvent describes one scored attempt after it was scheduled.
type AttemptEvent struct {
	Key            ItemKey
	Matched        bool
	Quality        int
	ResponseTimeMs int64
	Persisted      bool
	Mastery        MasteryLevel
	NextReviewDate time.Time
	At             time.Time
}
