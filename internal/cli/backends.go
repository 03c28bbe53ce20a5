package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/amqp"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/mongo"
	"quiz-session-service/internal/infra/postgres"
	redisstore "quiz-session-service/internal/infra/redis"
)

const defaultAnswerTTL = 24 * time.Hour

// backends owns every external connection opened for the server.
type backends struct {
	store    app.Store
	notifier app.Notifier
	sinks    []app.EventSink
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	switch cfg.Store.Backend {
	case config.BackendRedis:
		b.store = app.Store{
			Quizzes: redisstore.NewQuizRepository(redisClient),
			Answers: redisstore.NewAnswerLedger(redisClient, config.Duration(cfg.Redis.TTL, defaultAnswerTTL)),
			Results: redisstore.NewResultRepository(redisClient),
		}
	case config.BackendPostgres:
		pg, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pg.Close)
		b.store = app.Store{Quizzes: pg, Answers: pg, Results: pg}
	case config.BackendMongo:
		mg, err := mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mg.Close(closeCtx); err != nil {
				logger.Warn().Err(err).Msg("close mongo")
			}
		})
		if err := mg.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		b.store = app.Store{Quizzes: mg, Answers: mg, Results: mg}
	default:
		b.store = app.Store{
			Quizzes: memory.NewQuizRepository(),
			Answers: memory.NewAnswerLedger(),
			Results: memory.NewResultRepository(),
		}
	}

	if cfg.Notifier.Backend == config.BackendRedis {
		b.notifier = redisstore.NewNotifier(redisClient, logger)
	} else {
		b.notifier = memory.NewHub()
	}

	if cfg.AMQP.URL != "" {
		pub, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn().Err(err).Msg("close amqp publisher")
			}
		})
		b.sinks = append(b.sinks, pub)
	}
	return b, nil
}
