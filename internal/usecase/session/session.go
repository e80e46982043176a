// Package session runs a practice session as an explicit state machine.
//
// A session presents challenges one at a time. Each presentation bumps a
// generation counter; timers capture the generation they were armed for and
// do nothing when it has moved on. Every state transition goes through
// cancelPending first, so at most one question's timers are ever live.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/usecase/chord"
	"github.com/eslsoft/chordnet/internal/usecase/srs"
	"github.com/eslsoft/chordnet/pkg/clock"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StatePresenting
	StateAwaitingInput
	StateFeedback
	StateAdvancing
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePresenting:
		return "presenting"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateFeedback:
		return "feedback"
	case StateAdvancing:
		return "advancing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Recorder scores an attempt and persists the item's progress.
type Recorder interface {
	RecordAttempt(ctx context.Context, key entity.ItemKey, obs srs.Observation) (*entity.AttemptResult, error)
}

// EventType names what happened in a session.
type EventType string

const (
	EventPresented EventType = "presented"
	EventAmbiguous EventType = "ambiguous"
	EventScored    EventType = "scored"
	EventRevealed  EventType = "revealed"
	EventTimedOut  EventType = "timed_out"
	EventFinished  EventType = "finished"
)

// Event is delivered to the session listener after the session lock is
// released, so listeners may call back into the session.
type Event struct {
	Type       EventType
	Generation uint64
	Index      int
	Challenge  entity.Challenge
	Decision   chord.Decision
	Result     *entity.AttemptResult
	// Err is set when scoring failed. The session carries on regardless.
	Err error
}

// Summary tallies a session.
type Summary struct {
	Presented int
	Correct   int
	Incorrect int
	TimedOut  int
	Ambiguous int
	LivesLeft int
}

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithListener registers a callback for session events.
func WithListener(fn func(Event)) Option {
	return func(s *Session) { s.listener = fn }
}

// WithLogger sets the logger used for scoring failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Session drives one run through a list of challenges.
type Session struct {
	mu sync.Mutex

	id         string
	cfg        Config
	matcher    *chord.Matcher
	recorder   Recorder
	challenges []entity.Challenge
	clock      clock.Clock
	listener   func(Event)
	logger     logrus.FieldLogger

	ctx   context.Context
	epoch time.Time

	state       State
	index       int
	gen         uint64
	attempt     int
	revealed    bool
	presentedAt int64
	buffer      chord.Buffer
	latch       *chord.Latch
	timers      []clock.Timer
	summary     Summary
	queued      []Event
}

// New validates cfg and builds an idle session over challenges.
func New(cfg Config, matcher *chord.Matcher, recorder Recorder, challenges []entity.Challenge, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if matcher == nil || recorder == nil {
		return nil, errors.New("session: matcher and recorder are required")
	}
	if len(challenges) == 0 {
		return nil, entity.ErrNoChallenges
	}

	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		matcher:    matcher,
		recorder:   recorder,
		challenges: append([]entity.Challenge(nil), challenges...),
		clock:      clock.Real{},
		logger:     logrus.StandardLogger(),
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.epoch = s.clock.Now()
	s.latch = chord.NewLatch(s.clock, cfg.SettleDelay)
	s.summary.LivesLeft = cfg.Lives
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() Mode { return s.cfg.Mode }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation identifies the current presentation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Current returns the challenge on screen.
func (s *Session) Current() (entity.Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || s.state == StateFinished {
		return nil, false
	}
	return s.challenges[s.index], true
}

// Revealed reports whether the answer to the current challenge is shown.
func (s *Session) Revealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Start presents the first challenge. ctx bounds every scoring call the
// session makes, including those triggered by timers.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlockAndEmit()
	if s.state != StateIdle {
		return errors.New("session already started")
	}
	if ctx != nil {
		s.ctx = ctx
	}
	s.presentLocked(0)
	return nil
}

// Type feeds one keystroke. A delimiter completes the burst and scores it.
func (s *Session) Type(r rune) (chord.Decision, error) {
	return s.Feed(string(r))
}

// Backspace records a device correction.
func (s *Session) Backspace() error {
	_, err := s.Feed("\b")
	return err
}

// Feed types text, treating '\b' as a backspace. Anything after the first
// delimiter is dropped.
func (s *Session) Feed(text string) (chord.Decision, error) {
	s.mu.Lock()
	defer s.unlockAndEmit()
	if err := s.awaitingLocked(); err != nil {
		return chord.Decision{}, err
	}

	at := s.nowMs()
	if !s.buffer.Feed(text, at) {
		return chord.Decision{Path: chord.PathTextBurst}, nil
	}
	burst := s.buffer.Burst(s.presentedAt, at)
	d := s.matcher.MatchBurst(s.challenges[s.index].Target(), burst, s.cfg.Mode.Policy())
	return d, s.handleDecisionLocked(d)
}

// SubmitHeld evaluates the keys currently held down. Snapshots that do not
// complete the chord are ignored.
func (s *Session) SubmitHeld(keys []string) (chord.Decision, error) {
	s.mu.Lock()
	defer s.unlockAndEmit()
	if err := s.awaitingLocked(); err != nil {
		return chord.Decision{}, err
	}

	snap := chord.HeldSnapshot{Keys: keys, AtMs: s.nowMs()}
	d := s.matcher.MatchHeld(s.challenges[s.index].Target(), snap, s.presentedAt)
	if d.Outcome == chord.OutcomeNoAttempt {
		return d, nil
	}
	return d, s.handleDecisionLocked(d)
}

// Next skips the rest of the feedback delay.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.unlockAndEmit()
	switch s.state {
	case StateFinished:
		return entity.ErrSessionFinished
	case StateFeedback:
		s.advanceLocked()
		return nil
	default:
		return entity.ErrNotAwaitingInput
	}
}

// CancelPending stops every pending timer without changing state.
func (s *Session) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
}

// Close finishes the session and releases its timers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.unlockAndEmit()
	if s.state != StateFinished {
		s.finishLocked()
	}
}

func (s *Session) awaitingLocked() error {
	switch s.state {
	case StateAwaitingInput:
		return nil
	case StateFinished:
		return entity.ErrSessionFinished
	default:
		return entity.ErrNotAwaitingInput
	}
}

func (s *Session) handleDecisionLocked(d chord.Decision) error {
	switch d.Outcome {
	case chord.OutcomeNoAttempt:
		s.buffer.Reset()
		return nil
	case chord.OutcomeAmbiguous:
		// No decision yet. The countdown keeps running.
		s.buffer.Reset()
		s.summary.Ambiguous++
		s.queue(Event{Type: EventAmbiguous, Decision: d})
		return nil
	}

	if !s.latch.TryAcquire() {
		s.buffer.Reset()
		return entity.ErrAttemptInFlight
	}
	defer s.latch.Release()

	result, err := s.scoreLocked(srs.Observation{
		Matched:        d.Matched,
		ResponseTimeMs: d.ResponseTimeMs,
		AttemptNumber:  s.attempt,
		Revealed:       s.revealed,
	})
	s.queue(Event{Type: EventScored, Decision: d, Result: result, Err: err})

	if d.Matched {
		s.summary.Correct++
		s.enterFeedbackLocked()
		return nil
	}

	s.summary.Incorrect++
	switch s.cfg.Mode {
	case ModePractice:
		if s.revealed {
			s.enterFeedbackLocked()
			return nil
		}
		s.attempt++
		s.buffer.Reset()
		if s.attempt > s.cfg.MaxAttempts {
			s.revealed = true
			s.queue(Event{Type: EventRevealed})
		}
		return nil
	case ModeSurvival:
		s.loseLifeLocked()
	}
	s.enterFeedbackLocked()
	return nil
}

func (s *Session) onTimeout(gen uint64) {
	s.mu.Lock()
	defer s.unlockAndEmit()
	if gen != s.gen || s.state != StateAwaitingInput {
		return
	}

	s.latch.Reset()
	result, err := s.scoreLocked(srs.Observation{
		Matched:        false,
		TimedOut:       true,
		ResponseTimeMs: s.nowMs() - s.presentedAt,
		AttemptNumber:  s.attempt,
		Revealed:       s.revealed,
	})
	s.summary.TimedOut++
	s.queue(Event{Type: EventTimedOut, Result: result, Err: err})
	if s.cfg.Mode == ModeSurvival {
		s.loseLifeLocked()
	}
	s.enterFeedbackLocked()
}

func (s *Session) onFeedbackElapsed(gen uint64) {
	s.mu.Lock()
	defer s.unlockAndEmit()
	if gen != s.gen || s.state != StateFeedback {
		return
	}
	s.advanceLocked()
}

func (s *Session) scoreLocked(obs srs.Observation) (*entity.AttemptResult, error) {
	key := s.challenges[s.index].ItemKey()
	result, err := s.recorder.RecordAttempt(s.ctx, key, obs)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"session": s.id,
			"item":    key.String(),
		}).WithError(err).Warn("score attempt failed")
		return nil, err
	}
	return result, nil
}

func (s *Session) loseLifeLocked() {
	if s.cfg.Lives > 0 && s.summary.LivesLeft > 0 {
		s.summary.LivesLeft--
	}
}

func (s *Session) presentLocked(idx int) {
	s.cancelPendingLocked()
	s.state = StatePresenting
	s.index = idx
	s.gen++
	s.attempt = 1
	s.revealed = false
	s.buffer.Reset()
	s.latch.Reset()
	s.presentedAt = s.nowMs()
	s.summary.Presented++
	s.queue(Event{Type: EventPresented})

	if s.cfg.Mode.Timed() {
		gen := s.gen
		s.timers = append(s.timers, s.clock.AfterFunc(s.cfg.TimeLimit, func() { s.onTimeout(gen) }))
	}
	s.state = StateAwaitingInput
}

func (s *Session) enterFeedbackLocked() {
	s.cancelPendingLocked()
	s.state = StateFeedback
	if s.cfg.Mode == ModeSurvival && s.cfg.Lives > 0 && s.summary.LivesLeft == 0 {
		s.finishLocked()
		return
	}
	gen := s.gen
	s.timers = append(s.timers, s.clock.AfterFunc(s.cfg.FeedbackDelay, func() { s.onFeedbackElapsed(gen) }))
}

func (s *Session) advanceLocked() {
	s.cancelPendingLocked()
	s.state = StateAdvancing
	next := s.index + 1
	if next >= len(s.challenges) {
		s.finishLocked()
		return
	}
	s.presentLocked(next)
}

func (s *Session) finishLocked() {
	s.cancelPendingLocked()
	s.latch.Reset()
	s.buffer.Reset()
	s.state = StateFinished
	s.queue(Event{Type: EventFinished})
}

func (s *Session) cancelPendingLocked() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = s.timers[:0]
}

func (s *Session) nowMs() int64 {
	return s.clock.Now().Sub(s.epoch).Milliseconds()
}

func (s *Session) queue(e Event) {
	e.Generation = s.gen
	e.Index = s.index
	if s.state != StateIdle && s.index < len(s.challenges) {
		e.Challenge = s.challenges[s.index]
	}
	s.queued = append(s.queued, e)
}

func (s *Session) unlockAndEmit() {
	events := s.queued
	s.queued = nil
	s.mu.Unlock()
	if s.listener == nil {
		return
	}
	for _, e := range events {
		s.listener(e)
	}
}
