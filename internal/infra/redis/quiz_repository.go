package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

// QuizRepository stores quizzes as JSON documents:
//
//	SET  quiz:{id}              {quiz json}
//	SADD quiz:owner:{ownerID}   {id}
//
// Writes run under WATCH so a concurrent change aborts the transaction.
type QuizRepository struct {
	client *redis.Client
}

func NewQuizRepository(client *redis.Client) *QuizRepository {
	return &QuizRepository{client: client}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	raw, err := r.client.Get(ctx, quizKey(quizID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, storeerr.Wrap("redis", "get quiz", err)
	}
	return decodeQuiz(raw)
}

func (r *QuizRepository) PutQuiz(ctx context.Context, quiz domain.Quiz, expectedVersion int64) error {
	key := quizKey(quiz.ID)
	stored := quiz.Clone()
	stored.Version = expectedVersion + 1
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectedVersion != 0 {
				return domain.ErrVersionConflict
			}
		case err != nil:
			return err
		default:
			current, err := decodeQuiz(raw)
			if err != nil {
				return err
			}
			if expectedVersion == 0 || current.Version != expectedVersion {
				return domain.ErrVersionConflict
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, ownerKey(quiz.OwnerID), quiz.ID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	return storeerr.Wrap("redis", "put quiz", err)
}

func (r *QuizRepository) DeleteQuiz(ctx context.Context, quizID, ownerID string) error {
	key := quizKey(quizID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeQuiz(raw)
		if err != nil {
			return err
		}
		if current.OwnerID != ownerID {
			return domain.ErrQuizNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, ownerKey(ownerID), quizID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	return storeerr.Wrap("redis", "delete quiz", err)
}

func (r *QuizRepository) ListQuizzesByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	ids, err := r.client.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, storeerr.Wrap("redis", "list owner quizzes", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = quizKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeerr.Wrap("redis", "load owner quizzes", err)
	}
	quizzes := make([]domain.Quiz, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		quiz, err := decodeQuiz([]byte(raw))
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}

func decodeQuiz(raw []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz: %w", err)
	}
	return quiz, nil
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}

func ownerKey(ownerID string) string {
	return "quiz:owner:" + ownerID
}
