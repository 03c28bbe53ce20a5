// Package amqp forwards quiz snapshots to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/domain"
)

const (
	DefaultExchange = "quiz.events"
	publishTimeout  = 5 * time.Second
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements app.EventSink. Failures are logged and dropped.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   zerolog.Logger
}

// Dial connects and declares a durable topic exchange.
func Dial(url, exchange string, logger zerolog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", exchange, err)
	}
	logger.Info().Str("exchange", exchange).Msg("event publisher ready")
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// RoutingKey is quiz.<event>, e.g. quiz.quiz_finished.
func RoutingKey(event string) string {
	return "quiz." + event
}

func (p *Publisher) Publish(ctx context.Context, snapshot domain.Snapshot) {
	msg, err := encode(snapshot)
	if err != nil {
		p.logger.Error().Err(err).Str("quiz_id", snapshot.QuizID).Msg("encode snapshot")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(snapshot.Event), false, false, msg); err != nil {
		p.logger.Warn().Err(err).
			Str("quiz_id", snapshot.QuizID).
			Str("event", snapshot.Event).
			Msg("publish snapshot")
	}
}

func encode(snapshot domain.Snapshot) (amqp.Publishing, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    snapshot.At,
		Type:         snapshot.Event,
		Body:         body,
		Headers: amqp.Table{
			"quiz_id": snapshot.QuizID,
			"version": snapshot.Version,
		},
	}, nil
}

func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("close amqp channel")
	}
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
