package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/internal/usecase/mastery"
	"github.com/eslsoft/chordnet/internal/usecase/selection"
	"github.com/eslsoft/chordnet/internal/usecase/srs"
)

// ProgressUsecase scores attempts and answers progress queries.
type ProgressUsecase interface {
	RecordAttempt(ctx context.Context, key entity.ItemKey, obs srs.Observation) (*entity.AttemptResult, error)
	GetProgress(ctx context.Context, key entity.ItemKey) (*entity.ProgressView, error)
	ListProgress(ctx context.Context, query *repository.ListProgressQuery) ([]entity.ProgressView, int64, error)
	ListDue(ctx context.Context, itemType entity.ItemType, limit int) ([]entity.ProgressView, error)
	Weights(ctx context.Context, itemType entity.ItemType) ([]selection.Weighted, error)
	PlanSession(ctx context.Context, req PlanRequest) ([]entity.Challenge, error)
	// Flush retries saving records whose last save failed.
	Flush(ctx context.Context) (int, error)
	Unsaved() int
}

// AttemptObserver is notified after every scored attempt.
type AttemptObserver interface {
	ObserveAttempt(event entity.AttemptEvent)
}

// Observers fans an attempt out to several observers in order.
type Observers []AttemptObserver

func (o Observers) ObserveAttempt(event entity.AttemptEvent) {
	for _, observer := range o {
		if observer != nil {
			observer.ObserveAttempt(event)
		}
	}
}

// PlanRequest describes the challenges to draw for a practice session.
type PlanRequest struct {
	// Candidates are the challenges that may be drawn. Items never attempted
	// are treated as fresh records.
	Candidates []entity.Challenge
	Count      int
	// DueOnly restricts the draw to items due for review, most overdue first.
	DueOnly bool
	Rand    *rand.Rand
}

// ProgressOption customises the progress usecase.
type ProgressOption func(*progressUsecase)

// WithProgressLogger sets the logger used for store failures.
func WithProgressLogger(logger logrus.FieldLogger) ProgressOption {
	return func(u *progressUsecase) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithAttemptObserver registers an observer for scored attempts.
func WithAttemptObserver(o AttemptObserver) ProgressOption {
	return func(u *progressUsecase) { u.observer = o }
}

// WithProgressClock overrides the time source.
func WithProgressClock(clock func() time.Time) ProgressOption {
	return func(u *progressUsecase) {
		if clock != nil {
			u.clock = clock
		}
	}
}

// NewProgressUsecase wires the store with the scheduling engine.
func NewProgressUsecase(
	repo repository.ProgressRepository,
	scheduler *srs.Scheduler,
	classifier *mastery.Classifier,
	weighter *selection.Weighter,
	opts ...ProgressOption,
) ProgressUsecase {
	u := &progressUsecase{
		repo:       repo,
		scheduler:  scheduler,
		classifier: classifier,
		weighter:   weighter,
		clock:      time.Now,
		logger:     logrus.StandardLogger(),
		locks:      make(map[entity.ItemKey]*keyLock),
		unsaved:    make(map[entity.ItemKey]unsavedRecord),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type progressUsecase struct {
	repo       repository.ProgressRepository
	scheduler  *srs.Scheduler
	classifier *mastery.Classifier
	weighter   *selection.Weighter
	observer   AttemptObserver
	clock      func() time.Time
	logger     logrus.FieldLogger

	locksMu sync.Mutex
	locks   map[entity.ItemKey]*keyLock

	// unsaved holds records the store rejected, so the rest of the session
	// still sees them.
	unsavedMu sync.RWMutex
	unsaved   map[entity.ItemKey]unsavedRecord
}

type unsavedRecord struct {
	rec entity.ProgressRecord
	// flushable is false for records scored from a fresh state because the
	// store could not be read. Writing those back would clobber real progress.
	flushable bool
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (u *progressUsecase) RecordAttempt(ctx context.Context, key entity.ItemKey, obs srs.Observation) (*entity.AttemptResult, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if obs.AttemptNumber < 0 || obs.ResponseTimeMs < 0 {
		return nil, entity.ErrInvalidObservation
	}

	unlock := u.lock(key)
	defer unlock()

	now := u.clock()
	current, loaded := u.load(ctx, key, now)

	next, q, err := u.scheduler.RecordAttempt(*current, obs, now)
	if err != nil {
		return nil, err
	}

	persisted := false
	if loaded {
		if err := u.repo.Save(ctx, &next); err != nil {
			u.logger.WithFields(logrus.Fields{"item": key.String()}).WithError(err).Warn("save progress failed; keeping record in memory")
		} else {
			persisted = true
		}
	}
	u.remember(key, next, persisted, loaded)

	view := u.classifier.View(next)
	if u.observer != nil {
		u.observer.ObserveAttempt(entity.AttemptEvent{
			Key:            key,
			Matched:        obs.Matched,
			Quality:        int(q),
			ResponseTimeMs: obs.ResponseTimeMs,
			Persisted:      persisted,
			Mastery:        view.Mastery,
			NextReviewDate: view.NextReviewDate,
			At:             now,
		})
	}
	return &entity.AttemptResult{
		Quality:   int(q),
		View:      view,
		Persisted: persisted,
	}, nil
}

// load returns the item's current record. The second result is false when the
// store could not be read; such a record is scored and kept in memory but never
// written back.
func (u *progressUsecase) load(ctx context.Context, key entity.ItemKey, now time.Time) (*entity.ProgressRecord, bool) {
	u.unsavedMu.RLock()
	entry, ok := u.unsaved[key]
	u.unsavedMu.RUnlock()
	if ok {
		return &entry.rec, entry.flushable
	}
	rec, err := u.repo.Get(ctx, key)
	switch {
	case err == nil:
		return rec, true
	case errors.Is(err, entity.ErrProgressNotFound):
		return entity.NewProgressRecord(key, now), true
	default:
		u.logger.WithFields(logrus.Fields{"item": key.String()}).WithError(err).Warn("load progress failed; scoring from a fresh record")
		return entity.NewProgressRecord(key, now), false
	}
}

func (u *progressUsecase) GetProgress(ctx context.Context, key entity.ItemKey) (*entity.ProgressView, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if rec, ok := u.cached(key); ok {
		view := u.classifier.View(rec)
		return &view, nil
	}
	rec, err := u.repo.Get(ctx, key)
	if errors.Is(err, entity.ErrProgressNotFound) {
		rec = entity.NewProgressRecord(key, u.clock())
	} else if err != nil {
		return nil, err
	}
	view := u.classifier.View(*rec)
	return &view, nil
}

func (u *progressUsecase) ListProgress(ctx context.Context, query *repository.ListProgressQuery) ([]entity.ProgressView, int64, error) {
	if query != nil && query.ItemType != entity.ItemTypeUnspecified && !query.ItemType.Valid() {
		return nil, 0, entity.ErrInvalidItemType
	}
	records, total, err := u.repo.List(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return u.views(records), total, nil
}

func (u *progressUsecase) ListDue(ctx context.Context, itemType entity.ItemType, limit int) ([]entity.ProgressView, error) {
	if itemType != entity.ItemTypeUnspecified && !itemType.Valid() {
		return nil, entity.ErrInvalidItemType
	}
	now := u.clock()
	pending := u.unsavedOf(itemType)
	if len(pending) == 0 {
		records, err := u.repo.ListDue(ctx, itemType, now, limit)
		if err != nil {
			return nil, err
		}
		return u.views(records), nil
	}

	// The store's due index is stale for unsaved records, so filter here.
	records, err := u.repo.ListByType(ctx, itemType)
	if err != nil {
		return nil, err
	}
	due := selection.Due(merge(records, pending), now)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return lo.Map(due, func(rec entity.ProgressRecord, _ int) entity.ProgressView {
		return u.classifier.View(rec)
	}), nil
}

func (u *progressUsecase) Weights(ctx context.Context, itemType entity.ItemType) ([]selection.Weighted, error) {
	if itemType != entity.ItemTypeUnspecified && !itemType.Valid() {
		return nil, entity.ErrInvalidItemType
	}
	records, err := u.repo.ListByType(ctx, itemType)
	if err != nil {
		return nil, err
	}
	return u.weighter.Weights(merge(records, u.unsavedOf(itemType)), u.clock()), nil
}

func (u *progressUsecase) PlanSession(ctx context.Context, req PlanRequest) ([]entity.Challenge, error) {
	candidates := lo.UniqBy(req.Candidates, func(c entity.Challenge) entity.ItemKey {
		return canonicalKey(c.ItemKey())
	})
	if len(candidates) == 0 {
		return nil, entity.ErrNoChallenges
	}
	count := req.Count
	if count <= 0 || count > len(candidates) {
		count = len(candidates)
	}

	now := u.clock()
	byKey := make(map[entity.ItemKey]entity.Challenge, len(candidates))
	records := make([]entity.ProgressRecord, 0, len(candidates))
	for _, c := range candidates {
		key := canonicalKey(c.ItemKey())
		byKey[key] = c
		rec, _ := u.load(ctx, key, now)
		records = append(records, *rec)
	}

	var picked []entity.ProgressRecord
	if req.DueOnly {
		picked = selection.Due(records, now)
		if len(picked) > count {
			picked = picked[:count]
		}
	} else {
		rng := req.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(now.UnixNano()))
		}
		picked = lo.Map(selection.Sample(rng, u.weighter.Weights(records, now), count), func(w selection.Weighted, _ int) entity.ProgressRecord {
			return w.Record
		})
	}
	if len(picked) == 0 {
		return nil, entity.ErrNoChallenges
	}
	return lo.Map(picked, func(rec entity.ProgressRecord, _ int) entity.Challenge {
		return byKey[rec.Key()]
	}), nil
}

func (u *progressUsecase) Flush(ctx context.Context) (int, error) {
	u.unsavedMu.RLock()
	keys := lo.Keys(u.unsaved)
	u.unsavedMu.RUnlock()

	saved := 0
	var errs []error
	for _, key := range keys {
		unlock := u.lock(key)
		u.unsavedMu.RLock()
		entry, ok := u.unsaved[key]
		u.unsavedMu.RUnlock()
		if ok && entry.flushable {
			if err := u.repo.Save(ctx, &entry.rec); err != nil {
				errs = append(errs, fmt.Errorf("flush %s: %w", key, err))
			} else {
				u.remember(key, entry.rec, true, true)
				saved++
			}
		}
		unlock()
	}
	return saved, errors.Join(errs...)
}

func (u *progressUsecase) Unsaved() int {
	u.unsavedMu.RLock()
	defer u.unsavedMu.RUnlock()
	return len(u.unsaved)
}

func (u *progressUsecase) views(records []entity.ProgressRecord) []entity.ProgressView {
	return lo.Map(u.overlay(records), func(rec entity.ProgressRecord, _ int) entity.ProgressView {
		return u.classifier.View(rec)
	})
}

// overlay swaps in unsaved in-memory versions of stored records.
func (u *progressUsecase) overlay(records []entity.ProgressRecord) []entity.ProgressRecord {
	u.unsavedMu.RLock()
	defer u.unsavedMu.RUnlock()
	if len(u.unsaved) == 0 {
		return records
	}
	out := make([]entity.ProgressRecord, len(records))
	for i, rec := range records {
		if entry, ok := u.unsaved[rec.Key()]; ok {
			rec = entry.rec
		}
		out[i] = rec
	}
	return out
}

// unsavedOf snapshots the unsaved records of itemType, or of every type when
// itemType is unspecified.
func (u *progressUsecase) unsavedOf(itemType entity.ItemType) map[entity.ItemKey]entity.ProgressRecord {
	u.unsavedMu.RLock()
	defer u.unsavedMu.RUnlock()
	out := make(map[entity.ItemKey]entity.ProgressRecord)
	for key, entry := range u.unsaved {
		if itemType == entity.ItemTypeUnspecified || key.Type == itemType {
			out[key] = entry.rec
		}
	}
	return out
}

// merge replaces stored records with their pending versions and appends
// pending records the store has never seen, ordered by item id.
func merge(records []entity.ProgressRecord, pending map[entity.ItemKey]entity.ProgressRecord) []entity.ProgressRecord {
	if len(pending) == 0 {
		return records
	}
	out := make([]entity.ProgressRecord, 0, len(records)+len(pending))
	seen := make(map[entity.ItemKey]bool, len(records))
	for _, rec := range records {
		key := rec.Key()
		seen[key] = true
		if p, ok := pending[key]; ok {
			rec = p
		}
		out = append(out, rec)
	}
	fresh := lo.Filter(lo.Values(pending), func(rec entity.ProgressRecord, _ int) bool {
		return !seen[rec.Key()]
	})
	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].ItemType != fresh[j].ItemType {
			return fresh[i].ItemType < fresh[j].ItemType
		}
		return fresh[i].ItemID < fresh[j].ItemID
	})
	return append(out, fresh...)
}

func (u *progressUsecase) cached(key entity.ItemKey) (entity.ProgressRecord, bool) {
	u.unsavedMu.RLock()
	defer u.unsavedMu.RUnlock()
	entry, ok := u.unsaved[key]
	return entry.rec, ok
}

func (u *progressUsecase) remember(key entity.ItemKey, rec entity.ProgressRecord, persisted, flushable bool) {
	u.unsavedMu.Lock()
	defer u.unsavedMu.Unlock()
	if persisted {
		delete(u.unsaved, key)
		return
	}
	if prev, ok := u.unsaved[key]; ok && !prev.flushable {
		flushable = false
	}
	u.unsaved[key] = unsavedRecord{rec: rec, flushable: flushable}
}

// lock serializes updates to one item and returns the matching unlock.
func (u *progressUsecase) lock(key entity.ItemKey) func() {
	u.locksMu.Lock()
	l, ok := u.locks[key]
	if !ok {
		l = &keyLock{}
		u.locks[key] = l
	}
	l.refs++
	u.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, key)
		}
		u.locksMu.Unlock()
	}
}

func normalizeKey(key entity.ItemKey) (entity.ItemKey, error) {
	if err := key.Validate(); err != nil {
		return entity.ItemKey{}, err
	}
	return canonicalKey(key), nil
}

func canonicalKey(key entity.ItemKey) entity.ItemKey {
	return entity.ItemKey{ID: entity.NormalizeItemID(key.ID), Type: key.Type}
}
