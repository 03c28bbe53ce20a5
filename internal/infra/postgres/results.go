package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

const resultColumns = `quiz_id, quiz_title, player_id, player_name, score, total_questions, completed_at, answers`

func (s *Store) PutResults(ctx context.Context, results []domain.ResultRecord) error {
	if len(results) == 0 {
		return nil
	}
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, r := range results {
			answers, err := json.Marshal(nonNilAnswers(r.Answers))
			if err != nil {
				return fmt.Errorf("encode result answers: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO quiz_results (`+resultColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (quiz_id, player_id) DO UPDATE SET
					quiz_title=EXCLUDED.quiz_title,
					player_name=EXCLUDED.player_name,
					score=EXCLUDED.score,
					total_questions=EXCLUDED.total_questions,
					completed_at=EXCLUDED.completed_at,
					answers=EXCLUDED.answers`,
				r.QuizID, r.QuizTitle, r.PlayerID, r.PlayerName, r.Score, r.TotalQuestions, r.CompletedAt, answers); err != nil {
				return err
			}
		}
		return nil
	})
	return storeerr.Wrap("postgres", "put results", err)
}

func (s *Store) ListResultsByQuiz(ctx context.Context, quizID string, limit int) ([]domain.ResultRecord, error) {
	var max interface{}
	if limit > 0 {
		max = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+resultColumns+` FROM quiz_results
		WHERE quiz_id=$1
		ORDER BY score DESC, completed_at ASC, player_id ASC
		LIMIT $2`, quizID, max)
	if err != nil {
		return nil, storeerr.Wrap("postgres", "list quiz results", err)
	}
	return scanResults(rows)
}

func (s *Store) ListResultsByPlayer(ctx context.Context, playerID string) ([]domain.ResultRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+resultColumns+` FROM quiz_results
		WHERE player_id=$1
		ORDER BY completed_at DESC, quiz_id ASC`, playerID)
	if err != nil {
		return nil, storeerr.Wrap("postgres", "list player results", err)
	}
	return scanResults(rows)
}

func scanResults(rows pgx.Rows) ([]domain.ResultRecord, error) {
	defer rows.Close()
	var out []domain.ResultRecord
	for rows.Next() {
		var (
			r       domain.ResultRecord
			answers []byte
		)
		if err := rows.Scan(&r.QuizID, &r.QuizTitle, &r.PlayerID, &r.PlayerName, &r.Score, &r.TotalQuestions, &r.CompletedAt, &answers); err != nil {
			return nil, storeerr.Wrap("postgres", "scan result", err)
		}
		if err := json.Unmarshal(answers, &r.Answers); err != nil {
			return nil, fmt.Errorf("decode result answers: %w", err)
		}
		out = append(out, r)
	}
	return out, storeerr.Wrap("postgres", "read results", rows.Err())
}

func nonNilAnswers(answers []domain.ResultAnswer) []domain.ResultAnswer {
	if answers == nil {
		return []domain.ResultAnswer{}
	}
	return answers
}
