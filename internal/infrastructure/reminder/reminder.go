// Package reminder periodically counts items due for review and hands the
// counts to notifiers.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/entity"
)

// DueLister is the read side the reminder needs.
type DueLister interface {
	ListDue(ctx context.Context, itemType entity.ItemType, limit int) ([]entity.ProgressView, error)
}

// Notifier receives the due counts of every check.
type Notifier interface {
	NotifyDue(counts map[entity.ItemType]int) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(counts map[entity.ItemType]int) error

func (f NotifierFunc) NotifyDue(counts map[entity.ItemType]int) error { return f(counts) }

// Reminder runs the due check on a fixed interval.
type Reminder struct {
	scheduler *gocron.Scheduler
	lister    DueLister
	notifiers []Notifier
	interval  time.Duration
	timeout   time.Duration
	logger    logrus.FieldLogger
}

// New creates a reminder. Interval must be positive.
func New(lister DueLister, interval time.Duration, logger logrus.FieldLogger, notifiers ...Notifier) (*Reminder, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: reminder interval must be positive", entity.ErrInvalidConfig)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reminder{
		scheduler: gocron.NewScheduler(time.UTC),
		lister:    lister,
		notifiers: notifiers,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
	}, nil
}

// Start schedules the check and runs it in the background. The first check
// runs immediately.
func (r *Reminder) Start() error {
	if _, err := r.scheduler.Every(r.interval).Do(r.run); err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	r.scheduler.StartAsync()
	r.logger.WithField("interval", r.interval).Info("due reminder started")
	return nil
}

// Stop terminates the scheduled check.
func (r *Reminder) Stop() {
	r.scheduler.Stop()
}

func (r *Reminder) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.Check(ctx); err != nil {
		r.logger.WithError(err).Warn("due reminder check failed")
	}
}

// Check counts due items per type and notifies. Counting stops at the first
// store error; notifier errors are collected and the remaining notifiers
// still run.
func (r *Reminder) Check(ctx context.Context) (map[entity.ItemType]int, error) {
	counts := make(map[entity.ItemType]int, len(entity.ItemTypes))
	total := 0
	for _, itemType := range entity.ItemTypes {
		due, err := r.lister.ListDue(ctx, itemType, 0)
		if err != nil {
			return nil, fmt.Errorf("list due %s: %w", itemType, err)
		}
		counts[itemType] = len(due)
		total += len(due)
	}

	fields := logrus.Fields{"total": total}
	for itemType, n := range counts {
		fields[string(itemType)] = n
	}
	if total > 0 {
		r.logger.WithFields(fields).Info("items due for review")
	} else {
		r.logger.WithFields(fields).Debug("nothing due for review")
	}

	var errs []error
	for _, n := range r.notifiers {
		if err := n.NotifyDue(counts); err != nil {
			errs = append(errs, err)
		}
	}
	return counts, errors.Join(errs...)
}
