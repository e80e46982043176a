package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/usecase/chord"
)

// Mode selects how a session scores input and whether questions are timed.
type Mode string

const (
	// ModePractice is untimed and strict. Misses may be retried until the
	// answer is revealed.
	ModePractice Mode = "practice"
	// ModeTimed gives each question a time limit and scores every mismatch.
	ModeTimed Mode = "timed"
	// ModeSurvival is timed, discards ambiguous device output and ends when
	// the learner runs out of lives.
	ModeSurvival Mode = "survival"
)

// ParseMode converts user input into a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModePractice:
		return ModePractice, nil
	case ModeTimed:
		return ModeTimed, nil
	case ModeSurvival, "endless":
		return ModeSurvival, nil
	default:
		return "", fmt.Errorf("%w: unknown session mode %q", entity.ErrInvalidConfig, raw)
	}
}

// Policy returns the matcher policy the mode scores with.
func (m Mode) Policy() chord.Policy {
	if m == ModeSurvival {
		return chord.PolicyLenient
	}
	return chord.PolicyStrict
}

// Timed reports whether questions in this mode have a time limit.
func (m Mode) Timed() bool {
	return m == ModeTimed || m == ModeSurvival
}

const (
	DefaultTimeLimit     = 5 * time.Second
	DefaultFeedbackDelay = 800 * time.Millisecond
	DefaultMaxAttempts   = 3
	DefaultLives         = 3
)

// Config tunes a practice session.
type Config struct {
	Mode Mode
	// TimeLimit is the per-question countdown of timed modes.
	TimeLimit time.Duration
	// FeedbackDelay is how long feedback stays up before the next question.
	FeedbackDelay time.Duration
	// SettleDelay is how long the in-flight latch stays set after scoring.
	SettleDelay time.Duration
	// MaxAttempts is the number of misses allowed in practice mode before the
	// answer is revealed.
	MaxAttempts int
	// Lives is the number of misses survival mode tolerates. Zero means
	// unlimited.
	Lives int
}

// DefaultConfig returns the stock settings for mode.
func DefaultConfig(mode Mode) Config {
	return Config{
		Mode:          mode,
		TimeLimit:     DefaultTimeLimit,
		FeedbackDelay: DefaultFeedbackDelay,
		SettleDelay:   chord.DefaultSettleDelay,
		MaxAttempts:   DefaultMaxAttempts,
		Lives:         DefaultLives,
	}
}

// Validate checks the settings for internal consistency.
func (c Config) Validate() error {
	switch c.Mode {
	case ModePractice, ModeTimed, ModeSurvival:
	default:
		return fmt.Errorf("%w: unknown session mode %q", entity.ErrInvalidConfig, c.Mode)
	}
	if c.Mode.Timed() && c.TimeLimit <= 0 {
		return fmt.Errorf("%w: %s mode needs a positive time limit", entity.ErrInvalidConfig, c.Mode)
	}
	if c.FeedbackDelay < 0 || c.SettleDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", entity.ErrInvalidConfig)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", entity.ErrInvalidConfig)
	}
	if c.Lives < 0 {
		return fmt.Errorf("%w: lives must not be negative", entity.ErrInvalidConfig)
	}
	return nil
}
