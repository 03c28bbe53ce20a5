package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

// loadTimeout bounds a shared quiz load once it is detached from its first caller.
const loadTimeout = 5 * time.Second

// GetQuiz collapses concurrent reads of the same quiz into one query.
func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.shared(ctx, quizID, s.loadQuiz)
}

// shared runs load once for all concurrent callers of key. The load does not
// inherit any caller's cancellation; each caller stops waiting on its own ctx.
func (s *Store) shared(ctx context.Context, key string, load func(context.Context, string) (domain.Quiz, error)) (domain.Quiz, error) {
	ch := s.sf.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return load(loadCtx, key)
	})
	select {
	case <-ctx.Done():
		return domain.Quiz{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Quiz{}, res.Err
		}
		return res.Val.(domain.Quiz).Clone(), nil
	}
}

func (s *Store) loadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT data, version FROM quizzes WHERE id=$1`, quizID).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, storeerr.Wrap("postgres", "load quiz", err)
	}
	return decodeQuiz(raw, version)
}

func (s *Store) PutQuiz(ctx context.Context, quiz domain.Quiz, expectedVersion int64) error {
	stored := quiz.Clone()
	stored.Version = expectedVersion + 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}

	if expectedVersion == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO quizzes (id, owner_id, version, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			stored.ID, stored.OwnerID, stored.Version, data, stored.CreatedAt, stored.UpdatedAt)
		if err != nil {
			return storeerr.Wrap("postgres", "insert quiz", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE quizzes SET version=$2, data=$3, updated_at=$4
		WHERE id=$1 AND version=$5`,
		stored.ID, stored.Version, data, stored.UpdatedAt, expectedVersion)
	if err != nil {
		return storeerr.Wrap("postgres", "update quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID, ownerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1 AND owner_id=$2`, quizID, ownerID)
	if err != nil {
		return storeerr.Wrap("postgres", "delete quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) ListQuizzesByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data, version FROM quizzes
		WHERE owner_id=$1
		ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, storeerr.Wrap("postgres", "list quizzes", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var (
			raw     []byte
			version int64
		)
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, storeerr.Wrap("postgres", "scan quiz", err)
		}
		quiz, err := decodeQuiz(raw, version)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, storeerr.Wrap("postgres", "list quizzes", rows.Err())
}

func decodeQuiz(raw []byte, version int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.Version = version
	return quiz, nil
}
