package reminder

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/entity"
)

type fakeLister struct {
	due map[entity.ItemType]int
	err error
}

func (f *fakeLister) ListDue(_ context.Context, itemType entity.ItemType, _ int) ([]entity.ProgressView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]entity.ProgressView, f.due[itemType]), nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCheckNotifiesCounts(t *testing.T) {
	lister := &fakeLister{due: map[entity.ItemType]int{entity.ItemTypeCharacter: 3, entity.ItemTypeWord: 1}}
	var got map[entity.ItemType]int
	failing := NotifierFunc(func(map[entity.ItemType]int) error { return errors.New("boom") })
	capture := NotifierFunc(func(counts map[entity.ItemType]int) error {
		got = counts
		return nil
	})

	r, err := New(lister, time.Hour, quietLogger(), failing, capture)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	counts, err := r.Check(context.Background())
	if err == nil {
		t.Fatalf("expected notifier error to be reported")
	}
	if counts[entity.ItemTypeCharacter] != 3 || counts[entity.ItemTypeWord] != 1 || counts[entity.ItemTypeTwoKeyChord] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if got == nil || got[entity.ItemTypeCharacter] != 3 {
		t.Fatalf("expected later notifier to run after a failing one, got %v", got)
	}
}

func TestCheckStopsOnStoreError(t *testing.T) {
	storeErr := errors.New("store down")
	called := false
	r, err := New(&fakeLister{err: storeErr}, time.Minute, quietLogger(), NotifierFunc(func(map[entity.ItemType]int) error {
		called = true
		return nil
	}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := r.Check(context.Background()); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if called {
		t.Fatalf("notifier must not run when counting fails")
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(&fakeLister{}, 0, nil); !errors.Is(err, entity.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestStartRunsFirstCheckImmediately(t *testing.T) {
	done := make(chan struct{}, 1)
	r, err := New(&fakeLister{}, time.Hour, quietLogger(), NotifierFunc(func(map[entity.ItemType]int) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer r.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the first check to run on start")
	}
}
