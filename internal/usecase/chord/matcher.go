package chord

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/eslsoft/chordnet/internal/entity"
)

const (
	DefaultBaseMaxDurationMs = 150
	DefaultTimingTolerance   = 2.0
	// DefaultShortInputMaxLen is the longest raw input (delimiter included)
	// that is exempt from the timing check.
	DefaultShortInputMaxLen = 2
)

// Config tunes the timing check of the text-burst path.
type Config struct {
	BaseMaxDurationMs         int64
	TimingToleranceMultiplier float64
	ShortInputMaxLen          int
}

// DefaultConfig returns the stock timing parameters.
func DefaultConfig() Config {
	return Config{
		BaseMaxDurationMs:         DefaultBaseMaxDurationMs,
		TimingToleranceMultiplier: DefaultTimingTolerance,
		ShortInputMaxLen:          DefaultShortInputMaxLen,
	}
}

// Validate rejects non-positive timing parameters.
func (c Config) Validate() error {
	if c.BaseMaxDurationMs <= 0 {
		return fmt.Errorf("%w: base max chord duration must be positive", entity.ErrInvalidConfig)
	}
	if c.TimingToleranceMultiplier <= 0 {
		return fmt.Errorf("%w: timing tolerance multiplier must be positive", entity.ErrInvalidConfig)
	}
	if c.ShortInputMaxLen < 0 {
		return fmt.Errorf("%w: short input length must not be negative", entity.ErrInvalidConfig)
	}
	return nil
}

// MaxDurationMs is the longest keystroke spread accepted as one chord.
func (c Config) MaxDurationMs() float64 {
	return float64(c.BaseMaxDurationMs) * c.TimingToleranceMultiplier
}

// Policy decides what happens to input that fails both the raw and the word check.
type Policy int

const (
	// PolicyStrict scores every completed mismatch as incorrect.
	PolicyStrict Policy = iota
	// PolicyLenient discards ambiguous device output instead of penalising it.
	PolicyLenient
)

// Outcome is the verdict of one completion signal.
type Outcome int

const (
	OutcomeNoAttempt Outcome = iota
	OutcomeMatched
	OutcomeMismatched
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoAttempt:
		return "no_attempt"
	case OutcomeMatched:
		return "matched"
	case OutcomeMismatched:
		return "mismatched"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Path names the detection path that produced a decision.
type Path string

const (
	PathTextBurst Path = "text_burst"
	PathHeldKeys  Path = "held_keys"
)

// Arrival is one character reaching the input, stamped in milliseconds on a
// monotonic timeline shared with PresentedAtMs and CompletedAtMs.
type Arrival struct {
	Char rune
	AtMs int64
}

// Burst is the input accumulated for one item up to its completion signal.
type Burst struct {
	Arrivals          []Arrival
	Text              string
	DelimiterSeen     bool
	BackspaceObserved bool
	PresentedAtMs     int64
	CompletedAtMs     int64
}

// HeldSnapshot is the set of keys reported as held at one instant.
type HeldSnapshot struct {
	Keys []string
	AtMs int64
}

// Decision is the matcher's verdict.
type Decision struct {
	Outcome        Outcome
	Path           Path
	Matched        bool
	Input          string
	RawMatch       bool
	WordMatch      bool
	TimingOK       bool
	DurationMs     int64
	ResponseTimeMs int64
}

// Scored reports whether the decision counts as an attempt.
func (d Decision) Scored() bool {
	return d.Outcome == OutcomeMatched || d.Outcome == OutcomeMismatched
}

// Matcher decides whether input satisfies a chord target.
type Matcher struct {
	cfg Config
}

// NewMatcher validates cfg and builds a matcher.
func NewMatcher(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

// Config returns the matcher's timing parameters.
func (m *Matcher) Config() Config { return m.cfg }

// MatchBurst evaluates a text burst terminated by a delimiter.
func (m *Matcher) MatchBurst(target entity.ChordTarget, burst Burst, policy Policy) Decision {
	decision := Decision{Path: PathTextBurst}
	if !burst.DelimiterSeen {
		return decision
	}

	text := burst.Text
	if text == "" {
		text = string(lo.Map(burst.Arrivals, func(a Arrival, _ int) rune { return a.Char }))
	}
	input := normalizeInput(text)
	if input == "" {
		return decision
	}
	decision.Input = input

	expected := entity.CharSet(target.Expected)
	decision.RawMatch = sameSet(entity.CharSet([]rune(input)), expected)
	decision.WordMatch = lo.ContainsBy(target.ValidOutputs, func(word string) bool {
		return normalizeInput(word) == input
	})

	decision.DurationMs = spreadMs(burst.Arrivals)
	rawLen := utf8.RuneCountInString(input) + 1
	decision.TimingOK = float64(decision.DurationMs) <= m.cfg.MaxDurationMs() ||
		rawLen <= m.cfg.ShortInputMaxLen ||
		burst.BackspaceObserved
	decision.ResponseTimeMs = elapsedMs(burst.PresentedAtMs, burst.CompletedAtMs)

	switch {
	case (decision.RawMatch || decision.WordMatch) && decision.TimingOK:
		decision.Matched = true
		decision.Outcome = OutcomeMatched
	case !decision.RawMatch && !decision.WordMatch && policy == PolicyLenient:
		decision.Outcome = OutcomeAmbiguous
	default:
		decision.Outcome = OutcomeMismatched
	}
	return decision
}

// MatchHeld evaluates a snapshot of simultaneously held keys. A snapshot that
// does not complete the chord is not an answer, so it yields OutcomeNoAttempt.
func (m *Matcher) MatchHeld(target entity.ChordTarget, snap HeldSnapshot, presentedAtMs int64) Decision {
	decision := Decision{Path: PathHeldKeys}
	held := make(map[rune]struct{}, len(snap.Keys))
	for _, key := range snap.Keys {
		if r, ok := printableKey(key); ok {
			held[r] = struct{}{}
		}
	}
	expected := entity.CharSet(target.Expected)
	if len(held) != len(expected) || !sameSet(held, expected) {
		return decision
	}
	decision.RawMatch = true
	decision.TimingOK = true
	decision.Matched = true
	decision.Outcome = OutcomeMatched
	decision.Input = entity.ChordID(lo.Keys(held))
	decision.ResponseTimeMs = elapsedMs(presentedAtMs, snap.AtMs)
	return decision
}

func normalizeInput(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

func printableKey(key string) (rune, bool) {
	if utf8.RuneCountInString(key) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(key)
	if !unicode.IsPrint(r) || unicode.IsSpace(r) {
		return 0, false
	}
	return unicode.ToLower(r), true
}

func sameSet(a, b map[rune]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for r := range a {
		if _, ok := b[r]; !ok {
			return false
		}
	}
	return true
}

func spreadMs(arrivals []Arrival) int64 {
	if len(arrivals) < 2 {
		return 0
	}
	return elapsedMs(arrivals[0].AtMs, arrivals[len(arrivals)-1].AtMs)
}

func elapsedMs(from, to int64) int64 {
	if to < from {
		return 0
	}
	return to - from
}
