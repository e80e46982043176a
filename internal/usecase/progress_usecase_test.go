package usecase

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/internal/usecase/mastery"
	"github.com/eslsoft/chordnet/internal/usecase/selection"
	"github.com/eslsoft/chordnet/internal/usecase/srs"
)

type fakeProgressRepo struct {
	mu      sync.Mutex
	items   map[entity.ItemKey]entity.ProgressRecord
	saves   int
	saveErr error
	getErr  error
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{items: make(map[entity.ItemKey]entity.ProgressRecord)}
}

func (r *fakeProgressRepo) Get(ctx context.Context, key entity.ItemKey) (*entity.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.items[key]
	if !ok {
		return nil, entity.ErrProgressNotFound
	}
	return rec.Clone(), nil
}

func (r *fakeProgressRepo) Save(ctx context.Context, rec *entity.ProgressRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.items[rec.Key()] = *rec.Clone()
	return nil
}

func (r *fakeProgressRepo) List(ctx context.Context, query *repository.ListProgressQuery) ([]entity.ProgressRecord, int64, error) {
	records, err := r.ListByType(ctx, query.ItemType)
	if err != nil {
		return nil, 0, err
	}
	return records, int64(len(records)), nil
}

func (r *fakeProgressRepo) ListDue(ctx context.Context, itemType entity.ItemType, now time.Time, limit int) ([]entity.ProgressRecord, error) {
	records, err := r.ListByType(ctx, itemType)
	if err != nil {
		return nil, err
	}
	due := selection.Due(records, now)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeProgressRepo) ListByType(_ context.Context, itemType entity.ItemType) ([]entity.ProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.ProgressRecord
	for key, rec := range r.items {
		if itemType == entity.ItemTypeUnspecified || key.Type == itemType {
			out = append(out, *rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (r *fakeProgressRepo) stored(key entity.ItemKey) (entity.ProgressRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[key]
	return rec, ok
}

type countingObserver struct {
	mu       sync.Mutex
	attempts int
	unsaved  int
}

func (o *countingObserver) ObserveAttempt(event entity.AttemptEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
	if !event.Persisted {
		o.unsaved++
	}
}

func newTestProgressUsecase(t *testing.T, repo repository.ProgressRepository, now time.Time, opts ...ProgressOption) ProgressUsecase {
	t.Helper()
	classifier := mastery.Default()
	scheduler, err := srs.NewScheduler(srs.DefaultConfig(), classifier)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	weighter, err := selection.NewWeighter(selection.DefaultConfig())
	if err != nil {
		t.Fatalf("weighter: %v", err)
	}
	opts = append([]ProgressOption{WithProgressClock(func() time.Time { return now })}, opts...)
	return NewProgressUsecase(repo, scheduler, classifier, weighter, opts...)
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRecordAttemptCreatesRecordLazily(t *testing.T) {
	repo := newFakeProgressRepo()
	obs := &countingObserver{}
	uc := newTestProgressUsecase(t, repo, testNow, WithAttemptObserver(obs))

	key := entity.ItemKey{ID: " A ", Type: entity.ItemTypeCharacter}
	res, err := uc.RecordAttempt(context.Background(), key, srs.Observation{Matched: true, ResponseTimeMs: 400, AttemptNumber: 1})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if res.Quality != int(srs.QualityPerfect) || !res.Persisted {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.View.Mastery != entity.MasteryLearning || res.View.Accuracy != 1 {
		t.Fatalf("unexpected view %+v", res.View)
	}
	if want := testNow.Add(2 * time.Minute); !res.View.NextReviewDate.Equal(want) {
		t.Fatalf("next review: want %v got %v", want, res.View.NextReviewDate)
	}

	stored, ok := repo.stored(entity.ItemKey{ID: "a", Type: entity.ItemTypeCharacter})
	if !ok {
		t.Fatalf("record was not saved under the normalized key")
	}
	if stored.TotalAttempts != 1 || stored.Repetitions != 1 || stored.AverageResponseTimeMs != 400 {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if obs.attempts != 1 || obs.unsaved != 0 {
		t.Fatalf("observer: %+v", obs)
	}
}

func TestRecordAttemptSurvivesSaveFailure(t *testing.T) {
	repo := newFakeProgressRepo()
	repo.saveErr = errors.New("disk full")
	uc := newTestProgressUsecase(t, repo, testNow)
	ctx := context.Background()
	key := entity.ItemKey{ID: "the", Type: entity.ItemTypeWord}

	for i := 0; i < 2; i++ {
		res, err := uc.RecordAttempt(ctx, key, srs.Observation{Matched: true, ResponseTimeMs: 1000, AttemptNumber: 1})
		if err != nil {
			t.Fatalf("attempt %d surfaced save failure: %v", i, err)
		}
		if res.Persisted {
			t.Fatalf("attempt %d reported persisted", i)
		}
	}

	view, err := uc.GetProgress(ctx, key)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if view.Record.TotalAttempts != 2 || view.Record.Repetitions != 2 {
		t.Fatalf("in-memory record lost updates: %+v", view.Record)
	}
	if uc.Unsaved() != 1 {
		t.Fatalf("unsaved: want 1 got %d", uc.Unsaved())
	}

	repo.mu.Lock()
	repo.saveErr = nil
	repo.mu.Unlock()
	saved, err := uc.Flush(ctx)
	if err != nil || saved != 1 {
		t.Fatalf("flush: saved=%d err=%v", saved, err)
	}
	stored, ok := repo.stored(key)
	if !ok || stored.TotalAttempts != 2 {
		t.Fatalf("flush did not write the latest record: %+v", stored)
	}
	if uc.Unsaved() != 0 {
		t.Fatalf("unsaved after flush: %d", uc.Unsaved())
	}
}

func TestDueAndWeightsSeeUnsavedRecords(t *testing.T) {
	repo := newFakeProgressRepo()
	stale := entity.ItemKey{ID: "a", Type: entity.ItemTypeCharacter}
	existing := entity.NewProgressRecord(stale, testNow.Add(-2*time.Hour))
	existing.NextReviewDate = testNow.Add(-time.Hour)
	repo.items[stale] = *existing
	repo.saveErr = errors.New("disk full")

	uc := newTestProgressUsecase(t, repo, testNow)
	ctx := context.Background()
	fresh := entity.ItemKey{ID: "b", Type: entity.ItemTypeCharacter}
	for _, key := range []entity.ItemKey{stale, fresh} {
		res, err := uc.RecordAttempt(ctx, key, srs.Observation{Matched: true, ResponseTimeMs: 300, AttemptNumber: 1})
		if err != nil {
			t.Fatalf("record %s: %v", key, err)
		}
		if res.Persisted || !res.View.NextReviewDate.After(testNow) {
			t.Fatalf("%s: persisted=%v next=%v", key, res.Persisted, res.View.NextReviewDate)
		}
	}

	due, err := uc.ListDue(ctx, entity.ItemTypeCharacter, 0)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("answered items must not be due, got %d (first %q next %v)", len(due), due[0].Record.ItemID, due[0].NextReviewDate)
	}

	weights, err := uc.Weights(ctx, entity.ItemTypeCharacter)
	if err != nil {
		t.Fatalf("weights: %v", err)
	}
	ids := lo.Map(weights, func(w selection.Weighted, _ int) string { return w.Record.ItemID })
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("weights: want [a b] got %v", ids)
	}
	for _, w := range weights {
		if w.Record.TotalAttempts != 1 {
			t.Fatalf("weights used a stale record: %+v", w.Record)
		}
	}

	other, err := uc.Weights(ctx, entity.ItemTypeWord)
	if err != nil || len(other) != 0 {
		t.Fatalf("unsaved records leaked into another type: %v %v", other, err)
	}
}

func TestRecordAttemptDoesNotOverwriteUnreadableRecord(t *testing.T) {
	repo := newFakeProgressRepo()
	key := entity.ItemKey{ID: "a", Type: entity.ItemTypeCharacter}
	existing := entity.NewProgressRecord(key, testNow.Add(-time.Hour))
	existing.TotalAttempts = 40
	existing.CorrectAttempts = 38
	repo.items[key] = *existing
	repo.getErr = errors.New("connection reset")

	uc := newTestProgressUsecase(t, repo, testNow)
	ctx := context.Background()
	res, err := uc.RecordAttempt(ctx, key, srs.Observation{Matched: false, AttemptNumber: 1})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if res.Persisted {
		t.Fatalf("record scored from a fresh state must not be saved")
	}

	repo.mu.Lock()
	repo.getErr = nil
	repo.mu.Unlock()
	if saved, err := uc.Flush(ctx); err != nil || saved != 0 {
		t.Fatalf("flush: saved=%d err=%v", saved, err)
	}
	stored, _ := repo.stored(key)
	if stored.TotalAttempts != 40 || repo.saves != 0 {
		t.Fatalf("stored record was overwritten: %+v", stored)
	}
}

func TestRecordAttemptSerializesPerItem(t *testing.T) {
	repo := newFakeProgressRepo()
	uc := newTestProgressUsecase(t, repo, testNow)
	key := entity.ItemKey{ID: "s", Type: entity.ItemTypeCharacter}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obs := srs.Observation{Matched: i%2 == 0, ResponseTimeMs: 300, AttemptNumber: 1}
			if _, err := uc.RecordAttempt(context.Background(), key, obs); err != nil {
				t.Errorf("attempt %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stored, _ := repo.stored(key)
	if stored.TotalAttempts != 25 || stored.CorrectAttempts != 13 {
		t.Fatalf("lost updates: %+v", stored)
	}
}

func TestRecordAttemptRejectsInvalidInput(t *testing.T) {
	uc := newTestProgressUsecase(t, newFakeProgressRepo(), testNow)
	ctx := context.Background()
	if _, err := uc.RecordAttempt(ctx, entity.ItemKey{ID: "a", Type: "glyph"}, srs.Observation{}); !errors.Is(err, entity.ErrInvalidItemType) {
		t.Fatalf("expected ErrInvalidItemType, got %v", err)
	}
	if _, err := uc.RecordAttempt(ctx, entity.ItemKey{ID: " ", Type: entity.ItemTypeWord}, srs.Observation{}); !errors.Is(err, entity.ErrInvalidItemID) {
		t.Fatalf("expected ErrInvalidItemID, got %v", err)
	}
	if _, err := uc.RecordAttempt(ctx, entity.ItemKey{ID: "a", Type: entity.ItemTypeCharacter}, srs.Observation{ResponseTimeMs: -1}); !errors.Is(err, entity.ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation, got %v", err)
	}
}

func TestGetProgressMissingReadsAsNew(t *testing.T) {
	uc := newTestProgressUsecase(t, newFakeProgressRepo(), testNow)
	view, err := uc.GetProgress(context.Background(), entity.ItemKey{ID: "Q", Type: entity.ItemTypeCharacter})
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if view.Mastery != entity.MasteryNew || view.Confidence != entity.ConfidenceWeak || view.Accuracy != 0 {
		t.Fatalf("unexpected view %+v", view)
	}
	if !view.NextReviewDate.Equal(testNow) || view.Record.ItemID != "q" {
		t.Fatalf("fresh record should be due now: %+v", view.Record)
	}
}

func TestListDueAndWeights(t *testing.T) {
	repo := newFakeProgressRepo()
	for i, id := range []string{"a", "b", "c"} {
		key := entity.ItemKey{ID: id, Type: entity.ItemTypeCharacter}
		rec := entity.NewProgressRecord(key, testNow.Add(-48*time.Hour))
		rec.TotalAttempts = 10
		rec.CorrectAttempts = 10 - 3*i
		rec.NextReviewDate = testNow.Add(time.Duration(i-1) * 24 * time.Hour)
		repo.items[key] = *rec
	}
	uc := newTestProgressUsecase(t, repo, testNow)
	ctx := context.Background()

	due, err := uc.ListDue(ctx, entity.ItemTypeCharacter, 0)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 || due[0].Record.ItemID != "a" || due[1].Record.ItemID != "b" {
		t.Fatalf("unexpected due items %+v", due)
	}

	weights, err := uc.Weights(ctx, entity.ItemTypeCharacter)
	if err != nil {
		t.Fatalf("weights: %v", err)
	}
	if len(weights) != 3 || weights[0].Record.ItemID != "c" {
		t.Fatalf("least accurate item should weigh most: %+v", weights)
	}
	for _, w := range weights {
		if w.Weight <= 0 {
			t.Fatalf("weight must be positive: %+v", w)
		}
	}

	if _, err := uc.ListDue(ctx, "glyph", 0); !errors.Is(err, entity.ErrInvalidItemType) {
		t.Fatalf("expected ErrInvalidItemType, got %v", err)
	}
}

func TestPlanSession(t *testing.T) {
	repo := newFakeProgressRepo()
	key := entity.ItemKey{ID: "b", Type: entity.ItemTypeCharacter}
	rec := entity.NewProgressRecord(key, testNow)
	rec.NextReviewDate = testNow.Add(time.Hour)
	rec.TotalAttempts = 5
	rec.CorrectAttempts = 5
	repo.items[key] = *rec
	uc := newTestProgressUsecase(t, repo, testNow)
	ctx := context.Background()

	candidates := []entity.Challenge{
		entity.CharacterChallenge{Char: 'a'},
		entity.CharacterChallenge{Char: 'b'},
		entity.FingerChallenge{Finger: "left index", Key: 'a'},
		entity.CharacterChallenge{Char: 'c'},
	}

	due, err := uc.PlanSession(ctx, PlanRequest{Candidates: candidates, DueOnly: true})
	if err != nil {
		t.Fatalf("plan due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected the two never-attempted items, got %d", len(due))
	}
	for _, c := range due {
		if c.ItemKey().ID == "b" {
			t.Fatalf("item b is not due yet")
		}
	}

	picked, err := uc.PlanSession(ctx, PlanRequest{Candidates: candidates, Count: 2, Rand: rand.New(rand.NewSource(7))})
	if err != nil {
		t.Fatalf("plan weighted: %v", err)
	}
	if len(picked) != 2 || picked[0].ItemKey() == picked[1].ItemKey() {
		t.Fatalf("expected two distinct challenges, got %+v", picked)
	}

	if _, err := uc.PlanSession(ctx, PlanRequest{}); !errors.Is(err, entity.ErrNoChallenges) {
		t.Fatalf("expected ErrNoChallenges, got %v", err)
	}
}

type capturingObserver struct {
	events []entity.AttemptEvent
}

func (o *capturingObserver) ObserveAttempt(event entity.AttemptEvent) {
	o.events = append(o.events, event)
}

func TestObserversReceiveAttemptEvent(t *testing.T) {
	repo := newFakeProgressRepo()
	first, second := &capturingObserver{}, &capturingObserver{}
	uc := newTestProgressUsecase(t, repo, testNow, WithAttemptObserver(Observers{first, nil, second}))

	key := entity.ItemKey{ID: "The", Type: entity.ItemTypeWord}
	res, err := uc.RecordAttempt(context.Background(), key, srs.Observation{Matched: true, ResponseTimeMs: 300, AttemptNumber: 1})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	for _, o := range []*capturingObserver{first, second} {
		if len(o.events) != 1 {
			t.Fatalf("expected one event, got %d", len(o.events))
		}
		ev := o.events[0]
		if ev.Key.ID != "the" || ev.Key.Type != entity.ItemTypeWord {
			t.Fatalf("unexpected key %s", ev.Key)
		}
		if !ev.Matched || !ev.Persisted || ev.Quality != res.Quality || ev.ResponseTimeMs != 300 {
			t.Fatalf("unexpected event %+v", ev)
		}
		if !ev.At.Equal(testNow) || !ev.NextReviewDate.Equal(res.View.NextReviewDate) || ev.Mastery != res.View.Mastery {
			t.Fatalf("event disagrees with result: %+v vs %+v", ev, res.View)
		}
	}
}
