package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/usecase/chord"
	"github.com/eslsoft/chordnet/internal/usecase/srs"
	"github.com/eslsoft/chordnet/pkg/clock"
)

type recordedCall struct {
	key entity.ItemKey
	obs srs.Observation
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
	err   error
}

func (f *fakeRecorder) RecordAttempt(_ context.Context, key entity.ItemKey, obs srs.Observation) (*entity.AttemptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{key: key, obs: obs})
	if f.err != nil {
		return nil, f.err
	}
	q := 0
	if obs.Matched {
		q = 5
	}
	return &entity.AttemptResult{Quality: q, Persisted: true}, nil
}

func (f *fakeRecorder) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

type harness struct {
	clock    *clock.Fake
	recorder *fakeRecorder
	session  *Session
	events   []Event
}

func newHarness(t *testing.T, cfg Config, challenges ...entity.Challenge) *harness {
	t.Helper()
	matcher, err := chord.NewMatcher(chord.DefaultConfig())
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	h := &harness{
		clock:    clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		recorder: &fakeRecorder{},
	}
	h.session, err = New(cfg, matcher, h.recorder, challenges,
		WithClock(h.clock),
		WithID("test-session"),
		WithListener(func(e Event) { h.events = append(h.events, e) }),
	)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func (h *harness) eventTypes() []EventType {
	out := make([]EventType, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

func chars(rs ...rune) []entity.Challenge {
	out := make([]entity.Challenge, len(rs))
	for i, r := range rs {
		out[i] = entity.CharacterChallenge{Char: r}
	}
	return out
}

func TestPracticeSessionCorrectAnswersAdvance(t *testing.T) {
	h := newHarness(t, DefaultConfig(ModePractice), chars('a', 'b')...)

	if got := h.session.State(); got != StateAwaitingInput {
		t.Fatalf("state after start: %s", got)
	}
	h.clock.Advance(300 * time.Millisecond)
	d, err := h.session.Feed("a ")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if d.Outcome != chord.OutcomeMatched || d.ResponseTimeMs != 300 {
		t.Fatalf("unexpected decision %+v", d)
	}
	if got := h.session.State(); got != StateFeedback {
		t.Fatalf("state after answer: %s", got)
	}
	if _, err := h.session.Feed("a "); !errors.Is(err, entity.ErrNotAwaitingInput) {
		t.Fatalf("expected ErrNotAwaitingInput during feedback, got %v", err)
	}

	h.clock.Advance(DefaultFeedbackDelay)
	current, ok := h.session.Current()
	if !ok || current.ItemKey().ID != "b" {
		t.Fatalf("expected second challenge, got %v %v", current, ok)
	}
	if gen := h.session.Generation(); gen != 2 {
		t.Fatalf("generation: want 2 got %d", gen)
	}

	if _, err := h.session.Feed("b "); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := h.session.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := h.session.State(); got != StateFinished {
		t.Fatalf("state at end: %s", got)
	}
	if _, err := h.session.Feed("b "); !errors.Is(err, entity.ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}

	want := []EventType{EventPresented, EventScored, EventPresented, EventScored, EventFinished}
	if got := h.eventTypes(); !equalEvents(got, want) {
		t.Fatalf("events: want %v got %v", want, got)
	}
	sum := h.session.Summary()
	if sum.Presented != 2 || sum.Correct != 2 || sum.Incorrect != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("timers left pending after finish: %d", h.clock.Pending())
	}
}

func TestPracticeSessionRetriesThenReveals(t *testing.T) {
	cfg := DefaultConfig(ModePractice)
	cfg.MaxAttempts = 2
	h := newHarness(t, cfg, chars('a')...)

	for i := 0; i < 2; i++ {
		if _, err := h.session.Feed("x "); err != nil {
			t.Fatalf("miss %d: %v", i, err)
		}
		h.clock.Advance(cfg.SettleDelay)
		if got := h.session.State(); got != StateAwaitingInput {
			t.Fatalf("state after miss %d: %s", i, got)
		}
	}
	if !h.session.Revealed() {
		t.Fatalf("answer should be revealed after %d misses", cfg.MaxAttempts)
	}

	if _, err := h.session.Feed("a "); err != nil {
		t.Fatalf("answer after reveal: %v", err)
	}
	if got := h.session.State(); got != StateFeedback {
		t.Fatalf("state after reveal answer: %s", got)
	}

	calls := h.recorder.snapshot()
	if len(calls) != 3 {
		t.Fatalf("expected 3 scored attempts, got %d", len(calls))
	}
	if calls[0].obs.AttemptNumber != 1 || calls[1].obs.AttemptNumber != 2 || calls[2].obs.AttemptNumber != 3 {
		t.Fatalf("unexpected attempt numbers %+v", calls)
	}
	if calls[1].obs.Revealed || !calls[2].obs.Revealed || !calls[2].obs.Matched {
		t.Fatalf("unexpected reveal flags %+v", calls)
	}
}

func TestTimedSessionTimeoutScoresMiss(t *testing.T) {
	cfg := DefaultConfig(ModeTimed)
	cfg.TimeLimit = 2 * time.Second
	h := newHarness(t, cfg, chars('a', 'b')...)

	h.clock.Advance(2 * time.Second)
	calls := h.recorder.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected timeout to score once, got %d", len(calls))
	}
	obs := calls[0].obs
	if obs.Matched || !obs.TimedOut || obs.ResponseTimeMs != 2000 {
		t.Fatalf("unexpected timeout observation %+v", obs)
	}
	if calls[0].key.ID != "a" {
		t.Fatalf("timeout scored wrong item %s", calls[0].key)
	}
	if got := h.session.State(); got != StateFeedback {
		t.Fatalf("state after timeout: %s", got)
	}
	if h.session.Summary().TimedOut != 1 {
		t.Fatalf("summary did not count timeout: %+v", h.session.Summary())
	}
}

func TestTimedSessionStaleTimerIgnored(t *testing.T) {
	cfg := DefaultConfig(ModeTimed)
	cfg.TimeLimit = 2 * time.Second
	cfg.FeedbackDelay = 500 * time.Millisecond
	h := newHarness(t, cfg, chars('a', 'b')...)

	h.clock.Advance(100 * time.Millisecond)
	if _, err := h.session.Feed("a "); err != nil {
		t.Fatalf("feed: %v", err)
	}
	// second item is presented at 600ms; its deadline is 2600ms
	h.clock.Advance(2 * time.Second)

	calls := h.recorder.snapshot()
	if len(calls) != 1 || calls[0].obs.TimedOut {
		t.Fatalf("first item's timer fired against the next item: %+v", calls)
	}
	if got := h.session.State(); got != StateAwaitingInput {
		t.Fatalf("second item should still await input, got %s", got)
	}

	h.clock.Advance(500 * time.Millisecond)
	calls = h.recorder.snapshot()
	if len(calls) != 2 || !calls[1].obs.TimedOut || calls[1].key.ID != "b" {
		t.Fatalf("expected second item to time out, got %+v", calls)
	}
}

func TestSurvivalSessionDiscardsAmbiguousInput(t *testing.T) {
	cfg := DefaultConfig(ModeSurvival)
	cfg.TimeLimit = time.Second
	h := newHarness(t, cfg, entity.WordChallenge{Word: "the"})

	d, err := h.session.Feed("tha ")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if d.Outcome != chord.OutcomeAmbiguous {
		t.Fatalf("expected ambiguous, got %s", d.Outcome)
	}
	if len(h.recorder.snapshot()) != 0 {
		t.Fatalf("ambiguous input must not be scored")
	}
	if got := h.session.State(); got != StateAwaitingInput {
		t.Fatalf("state after ambiguous input: %s", got)
	}

	d, err = h.session.Feed("the ")
	if err != nil {
		t.Fatalf("feed after ambiguous: %v", err)
	}
	if !d.Matched {
		t.Fatalf("buffer was not cleared after ambiguous input: %+v", d)
	}
	if h.session.Summary().Ambiguous != 1 {
		t.Fatalf("summary: %+v", h.session.Summary())
	}
}

func TestSurvivalSessionEndsWhenLivesRunOut(t *testing.T) {
	cfg := DefaultConfig(ModeSurvival)
	cfg.TimeLimit = time.Second
	cfg.FeedbackDelay = 0
	cfg.Lives = 2
	h := newHarness(t, cfg, chars('a', 'b', 'c', 'd')...)

	h.clock.Advance(time.Second)
	h.clock.Advance(0)
	if got := h.session.State(); got != StateAwaitingInput {
		t.Fatalf("state after first miss: %s", got)
	}
	h.clock.Advance(time.Second)
	if got := h.session.State(); got != StateFinished {
		t.Fatalf("session should finish when lives run out, got %s", got)
	}
	sum := h.session.Summary()
	if sum.LivesLeft != 0 || sum.TimedOut != 2 || sum.Presented != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("timers left pending after finish: %d", h.clock.Pending())
	}
}

func TestLatchDropsSecondDetectionPath(t *testing.T) {
	h := newHarness(t, DefaultConfig(ModePractice), entity.PowerChordChallenge{Keys: [2]rune{'a', 's'}})

	h.clock.Advance(50 * time.Millisecond)
	if _, err := h.session.Feed("s"); err != nil {
		t.Fatalf("feed: %v", err)
	}
	h.clock.Advance(400 * time.Millisecond)
	d, err := h.session.Feed("a ")
	if err != nil {
		t.Fatalf("complete burst: %v", err)
	}
	if d.Outcome != chord.OutcomeMismatched || d.TimingOK {
		t.Fatalf("expected slow burst to be scored as a miss, got %+v", d)
	}

	if _, err := h.session.SubmitHeld([]string{"a", "s"}); !errors.Is(err, entity.ErrAttemptInFlight) {
		t.Fatalf("expected held path to be dropped while latched, got %v", err)
	}
	if n := len(h.recorder.snapshot()); n != 1 {
		t.Fatalf("expected one scored attempt, got %d", n)
	}

	h.clock.Advance(chord.DefaultSettleDelay)
	d, err = h.session.SubmitHeld([]string{"A", "s"})
	if err != nil {
		t.Fatalf("held after settle: %v", err)
	}
	if !d.Matched || d.Path != chord.PathHeldKeys {
		t.Fatalf("unexpected held decision %+v", d)
	}
}

func TestHeldSnapshotThatDoesNotCompleteChordIsIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig(ModePractice), entity.PowerChordChallenge{Keys: [2]rune{'a', 's'}})

	d, err := h.session.SubmitHeld([]string{"a"})
	if err != nil {
		t.Fatalf("submit held: %v", err)
	}
	if d.Outcome != chord.OutcomeNoAttempt || len(h.recorder.snapshot()) != 0 {
		t.Fatalf("partial snapshot should not be scored: %+v", d)
	}
}

func TestScoringFailureDoesNotStopSession(t *testing.T) {
	h := newHarness(t, DefaultConfig(ModePractice), chars('a', 'b')...)
	h.recorder.err = errors.New("store offline")

	if _, err := h.session.Feed("a "); err != nil {
		t.Fatalf("feed should not surface scoring errors: %v", err)
	}
	var scored *Event
	for i := range h.events {
		if h.events[i].Type == EventScored {
			scored = &h.events[i]
		}
	}
	if scored == nil || scored.Err == nil || scored.Result != nil {
		t.Fatalf("expected scored event carrying the error, got %+v", scored)
	}
	if got := h.session.State(); got != StateFeedback {
		t.Fatalf("state after failed scoring: %s", got)
	}
}

func TestCloseCancelsPendingTimers(t *testing.T) {
	cfg := DefaultConfig(ModeTimed)
	h := newHarness(t, cfg, chars('a')...)
	if h.clock.Pending() != 1 {
		t.Fatalf("expected countdown to be armed, got %d timers", h.clock.Pending())
	}
	h.session.Close()
	if h.clock.Pending() != 0 {
		t.Fatalf("close left %d timers pending", h.clock.Pending())
	}
	h.clock.Advance(cfg.TimeLimit)
	if len(h.recorder.snapshot()) != 0 {
		t.Fatalf("timeout fired after close")
	}
}

func TestNewSessionValidation(t *testing.T) {
	matcher, _ := chord.NewMatcher(chord.DefaultConfig())
	rec := &fakeRecorder{}

	if _, err := New(DefaultConfig(ModePractice), matcher, rec, nil); !errors.Is(err, entity.ErrNoChallenges) {
		t.Fatalf("expected ErrNoChallenges, got %v", err)
	}
	cfg := DefaultConfig(ModeTimed)
	cfg.TimeLimit = 0
	if _, err := New(cfg, matcher, rec, chars('a')); !errors.Is(err, entity.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	s, err := New(DefaultConfig(ModePractice), matcher, rec, chars('a'))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.ID() == "" {
		t.Fatalf("expected generated session id")
	}
	if _, err := s.Feed("a "); !errors.Is(err, entity.ErrNotAwaitingInput) {
		t.Fatalf("expected ErrNotAwaitingInput before start, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		err  bool
	}{
		{"", ModePractice, false},
		{"Timed", ModeTimed, false},
		{"endless", ModeSurvival, false},
		{"arcade", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Fatalf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if ModeSurvival.Policy() != chord.PolicyLenient || ModeTimed.Policy() != chord.PolicyStrict {
		t.Fatalf("unexpected mode policies")
	}
}

func equalEvents(a, b []EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
