package httpapi

import (
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/usecase/chord"
	"github.com/eslsoft/chordnet/internal/usecase/selection"
)

type attemptRequest struct {
	ItemType       string `json:"item_type"`
	ItemID         string `json:"item_id"`
	Matched        bool   `json:"matched"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	AttemptNumber  int    `json:"attempt_number"`
	Revealed       bool   `json:"revealed"`
	TimedOut       bool   `json:"timed_out"`
}

type attemptResponse struct {
	Quality   int          `json:"quality"`
	Persisted bool         `json:"persisted"`
	Progress  progressJSON `json:"progress"`
}

type arrivalJSON struct {
	Char string `json:"char"`
	AtMs int64  `json:"at_ms"`
}

type matchRequest struct {
	ItemType string `json:"item_type"`
	ItemID   string `json:"item_id"`
	// Policy is "strict" (default) or "lenient".
	Policy string `json:"policy"`

	Text          string        `json:"text"`
	Arrivals      []arrivalJSON `json:"arrivals"`
	Backspace     bool          `json:"backspace"`
	PresentedAtMs int64         `json:"presented_at_ms"`
	CompletedAtMs int64         `json:"completed_at_ms"`

	// HeldKeys switches to the held-keys path when non-empty.
	HeldKeys []string `json:"held_keys"`
	HeldAtMs int64    `json:"held_at_ms"`

	// Record scores a matched or mismatched decision against the item.
	Record        bool `json:"record"`
	AttemptNumber int  `json:"attempt_number"`
	Revealed      bool `json:"revealed"`
}

type decisionJSON struct {
	Outcome        string `json:"outcome"`
	Path           string `json:"path"`
	Matched        bool   `json:"matched"`
	Input          string `json:"input,omitempty"`
	RawMatch       bool   `json:"raw_match"`
	WordMatch      bool   `json:"word_match"`
	TimingOK       bool   `json:"timing_ok"`
	DurationMs     int64  `json:"duration_ms"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

type matchResponse struct {
	Decision decisionJSON     `json:"decision"`
	Attempt  *attemptResponse `json:"attempt,omitempty"`
}

type progressJSON struct {
	ItemID                string     `json:"item_id"`
	ItemType              string     `json:"item_type"`
	Repetitions           int        `json:"repetitions"`
	EaseFactor            float64    `json:"ease_factor"`
	IntervalDays          float64    `json:"interval_days"`
	NextReviewDate        time.Time  `json:"next_review_date"`
	TotalAttempts         int        `json:"total_attempts"`
	CorrectAttempts       int        `json:"correct_attempts"`
	AverageResponseTimeMs float64    `json:"average_response_time_ms"`
	LastQuality           int        `json:"last_quality"`
	LastAttemptDate       *time.Time `json:"last_attempt_date,omitempty"`
	Mastery               string     `json:"mastery"`
	Confidence            string     `json:"confidence"`
	Accuracy              float64    `json:"accuracy"`
}

type listResponse struct {
	Items []progressJSON `json:"items"`
	Total int64          `json:"total"`
}

type weightJSON struct {
	ItemID   string  `json:"item_id"`
	ItemType string  `json:"item_type"`
	Weight   float64 `json:"weight"`
}

func toProgressJSON(v entity.ProgressView) progressJSON {
	rec := v.Record
	return progressJSON{
		ItemID:                rec.ItemID,
		ItemType:              string(rec.ItemType),
		Repetitions:           rec.Repetitions,
		EaseFactor:            rec.EaseFactor,
		IntervalDays:          rec.IntervalDays,
		NextReviewDate:        v.NextReviewDate.UTC(),
		TotalAttempts:         rec.TotalAttempts,
		CorrectAttempts:       rec.CorrectAttempts,
		AverageResponseTimeMs: rec.AverageResponseTimeMs,
		LastQuality:           rec.LastQuality,
		LastAttemptDate:       rec.LastAttemptDate,
		Mastery:               string(v.Mastery),
		Confidence:            string(v.Confidence),
		Accuracy:              v.Accuracy,
	}
}

func toProgressList(views []entity.ProgressView) []progressJSON {
	return lo.Map(views, func(v entity.ProgressView, _ int) progressJSON { return toProgressJSON(v) })
}

func toAttemptResponse(res *entity.AttemptResult) *attemptResponse {
	return &attemptResponse{
		Quality:   res.Quality,
		Persisted: res.Persisted,
		Progress:  toProgressJSON(res.View),
	}
}

func toDecisionJSON(d chord.Decision) decisionJSON {
	return decisionJSON{
		Outcome:        d.Outcome.String(),
		Path:           string(d.Path),
		Matched:        d.Matched,
		Input:          d.Input,
		RawMatch:       d.RawMatch,
		WordMatch:      d.WordMatch,
		TimingOK:       d.TimingOK,
		DurationMs:     d.DurationMs,
		ResponseTimeMs: d.ResponseTimeMs,
	}
}

func toWeightList(weights []selection.Weighted) []weightJSON {
	return lo.Map(weights, func(w selection.Weighted, _ int) weightJSON {
		return weightJSON{ItemID: w.Record.ItemID, ItemType: string(w.Record.ItemType), Weight: w.Weight}
	})
}
