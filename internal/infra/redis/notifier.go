package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

const subscriberBuffer = 8

// Notifier fans snapshots out across instances over Redis pub/sub on
// channel quiz:{id}:events.
type Notifier struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewNotifier(client *redis.Client, logger zerolog.Logger) *Notifier {
	return &Notifier{
		client: client,
		logger: logger.With().Str("component", "redis_notifier").Logger(),
	}
}

func (n *Notifier) Publish(ctx context.Context, snapshot domain.Snapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		n.logger.Error().Err(err).Str("quiz_id", snapshot.QuizID).Msg("encode snapshot")
		return
	}
	if err := n.client.Publish(ctx, eventsChannel(snapshot.QuizID), payload).Err(); err != nil {
		n.logger.Warn().Err(err).Str("quiz_id", snapshot.QuizID).Str("event", snapshot.Event).Msg("publish snapshot")
	}
}

// Subscribe waits for the subscription to be confirmed before returning.
func (n *Notifier) Subscribe(ctx context.Context, quizID string) (<-chan domain.Snapshot, func(), error) {
	ps := n.client.Subscribe(ctx, eventsChannel(quizID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, storeerr.Wrap("redis", "subscribe", err)
	}

	out := make(chan domain.Snapshot, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		messages := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var snapshot domain.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
					n.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("decode snapshot")
					continue
				}
				select {
				case out <- snapshot:
				default:
					select {
					case <-out:
					default:
					}
					out <- snapshot
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func eventsChannel(quizID string) string {
	return "quiz:" + quizID + ":events"
}
