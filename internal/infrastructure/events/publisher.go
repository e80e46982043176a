// Package events publishes scored attempts to a RabbitMQ topic exchange so
// other services can follow a learner's progress.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/infrastructure/config"
)

const (
	EventAttemptScored = "attempt.scored"

	publishTimeout = 2 * time.Second
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends attempt events. A publisher built without a broker URL is
// disabled and drops every event.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  channel
	exchange string
	enabled  bool
	logger   logrus.FieldLogger
}

// NewPublisher connects to the broker and declares the exchange.
func NewPublisher(cfg config.EventsConfig, logger logrus.FieldLogger) (*Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Debug("events.amqp_url is empty, attempt events are disabled")
		return &Publisher{exchange: cfg.Exchange, logger: logger}, nil
	}

	conn, err := amqp091.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.WithField("exchange", cfg.Exchange).Info("attempt event publisher ready")
	p := newPublisher(ch, cfg.Exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger logrus.FieldLogger) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, enabled: true, logger: logger}
}

// Enabled reports whether events reach a broker.
func (p *Publisher) Enabled() bool { return p.enabled }

type attemptMessage struct {
	EventType      string    `json:"event_type"`
	ItemType       string    `json:"item_type"`
	ItemID         string    `json:"item_id"`
	Matched        bool      `json:"matched"`
	Quality        int       `json:"quality"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Persisted      bool      `json:"persisted"`
	Mastery        string    `json:"mastery"`
	NextReviewDate time.Time `json:"next_review_date"`
	At             time.Time `json:"at"`
}

// ObserveAttempt publishes event under the routing key
// "attempt.<item_type>". Failures are logged and never reach the caller.
func (p *Publisher) ObserveAttempt(event entity.AttemptEvent) {
	if !p.enabled {
		return
	}
	if err := p.publish(event); err != nil {
		p.logger.WithError(err).WithField("item", event.Key.String()).Warn("publish attempt event failed")
	}
}

func (p *Publisher) publish(event entity.AttemptEvent) error {
	body, err := json.Marshal(attemptMessage{
		EventType:      EventAttemptScored,
		ItemType:       string(event.Key.Type),
		ItemID:         event.Key.ID,
		Matched:        event.Matched,
		Quality:        event.Quality,
		ResponseTimeMs: event.ResponseTimeMs,
		Persisted:      event.Persisted,
		Mastery:        string(event.Mastery),
		NextReviewDate: event.NextReviewDate.UTC(),
		At:             event.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		"attempt."+string(event.Key.Type),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.At,
			Body:         body,
			Headers: amqp091.Table{
				"event_type": EventAttemptScored,
				"item_type":  string(event.Key.Type),
				"item_id":    event.Key.ID,
			},
		},
	)
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.WithError(err).Warn("close RabbitMQ channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close RabbitMQ connection: %w", err)
		}
	}
	return nil
}
