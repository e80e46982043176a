package entity

import "time"

// MasteryLevel is a coarse classification of how well an item is learned.
type MasteryLevel string

const (
	MasteryNew      MasteryLevel = "new"
	MasteryLearning MasteryLevel = "learning"
	MasteryFamiliar MasteryLevel = "familiar"
	MasteryMastered MasteryLevel = "mastered"
)

// ConfidenceLevel expresses how reliable the learner's recall of an item is.
type ConfidenceLevel string

const (
	ConfidenceWeak     ConfidenceLevel = "weak"
	ConfidenceModerate ConfidenceLevel = "moderate"
	ConfidenceStrong   ConfidenceLevel = "strong"
)

// Classification holds the derived labels of a progress record.
type Classification struct {
	Mastery    MasteryLevel
	Confidence ConfidenceLevel
}

// ProgressView is what record queries return to callers.
type ProgressView struct {
	Record         ProgressRecord
	Mastery        MasteryLevel
	Confidence     ConfidenceLevel
	NextReviewDate time.Time
	Accuracy       float64
}
