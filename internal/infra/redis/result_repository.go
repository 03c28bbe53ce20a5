package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/ranking"
	"quiz-session-service/internal/infra/storeerr"
)

// ResultRepository keeps final results:
//
//	HSET quiz:{id}:results       {playerID} {result json}
//	ZADD player:{id}:results     {completedAt ms} {quizID}
type ResultRepository struct {
	client *redis.Client
}

func NewResultRepository(client *redis.Client) *ResultRepository {
	return &ResultRepository{client: client}
}

func (r *ResultRepository) PutResults(ctx context.Context, results []domain.ResultRecord) error {
	if len(results) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range results {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			pipe.HSet(ctx, resultsKey(rec.QuizID), rec.PlayerID, payload)
			pipe.ZAdd(ctx, playerResultsKey(rec.PlayerID), redis.Z{
				Score:  float64(rec.CompletedAt.UnixMilli()),
				Member: rec.QuizID,
			})
		}
		return nil
	})
	return storeerr.Wrap("redis", "put results", err)
}

func (r *ResultRepository) ListResultsByQuiz(ctx context.Context, quizID string, limit int) ([]domain.ResultRecord, error) {
	fields, err := r.client.HGetAll(ctx, resultsKey(quizID)).Result()
	if err != nil {
		return nil, storeerr.Wrap("redis", "list quiz results", err)
	}
	results := make([]domain.ResultRecord, 0, len(fields))
	for _, raw := range fields {
		rec, err := decodeResult(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return ranking.TopResults(results, limit), nil
}

func (r *ResultRepository) ListResultsByPlayer(ctx context.Context, playerID string) ([]domain.ResultRecord, error) {
	quizIDs, err := r.client.ZRevRange(ctx, playerResultsKey(playerID), 0, -1).Result()
	if err != nil {
		return nil, storeerr.Wrap("redis", "list player results", err)
	}
	if len(quizIDs) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(quizIDs))
	for i, quizID := range quizIDs {
		cmds[i] = pipe.HGet(ctx, resultsKey(quizID), playerID)
	}
	// redis.Nil from a missing field is reported per command below.
	_, _ = pipe.Exec(ctx)

	results := make([]domain.ResultRecord, 0, len(cmds))
	for _, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, storeerr.Wrap("redis", "load player result", err)
		}
		rec, err := decodeResult(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return ranking.NewestFirst(results), nil
}

func decodeResult(raw string) (domain.ResultRecord, error) {
	var rec domain.ResultRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.ResultRecord{}, fmt.Errorf("decode result: %w", err)
	}
	return rec, nil
}

func resultsKey(quizID string) string {
	return "quiz:" + quizID + ":results"
}

func playerResultsKey(playerID string) string {
	return "player:" + playerID + ":results"
}
