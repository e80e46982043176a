package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/infrastructure/config"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func sampleEvent() entity.AttemptEvent {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return entity.AttemptEvent{
		Key:            entity.ItemKey{ID: "th", Type: entity.ItemTypeTwoKeyChord},
		Matched:        true,
		Quality:        5,
		ResponseTimeMs: 420,
		Persisted:      true,
		Mastery:        entity.MasteryLearning,
		NextReviewDate: at.Add(2 * time.Minute),
		At:             at,
	}
}

func TestPublisherObserveAttempt(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ch := &fakeChannel{}
	p := newPublisher(ch, "chordnet.events", logger)

	p.ObserveAttempt(sampleEvent())

	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != "chordnet.events" || got.key != "attempt.two_key_chord" {
		t.Fatalf("unexpected route %s/%s", got.exchange, got.key)
	}
	if got.msg.DeliveryMode != amqp091.Persistent || got.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing %+v", got.msg)
	}
	if got.msg.Headers["item_id"] != "th" {
		t.Fatalf("unexpected headers %v", got.msg.Headers)
	}

	var body attemptMessage
	if err := json.Unmarshal(got.msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.EventType != EventAttemptScored || body.Quality != 5 || body.Mastery != "learning" || body.ResponseTimeMs != 420 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestPublisherLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, "chordnet.events", logger)

	p.ObserveAttempt(sampleEvent())

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning, got %v", entry)
	}
	if entry.Data["item"] != "two_key_chord:th" {
		t.Fatalf("unexpected fields %v", entry.Data)
	}
}

func TestDisabledPublisher(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p, err := NewPublisher(config.EventsConfig{Exchange: "chordnet.events"}, logger)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if p.Enabled() {
		t.Fatal("publisher without url should be disabled")
	}
	p.ObserveAttempt(sampleEvent())
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisherClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ch := &fakeChannel{}
	if err := newPublisher(ch, "x", logger).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ch.closed {
		t.Fatal("channel not closed")
	}
}
