package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

// PutAnswer holds a share lock on the quiz's fence row while writing, so a
// concurrent CloseQuestions waits for it and a later answer sees the new fence.
func (s *Store) PutAnswer(ctx context.Context, answer domain.Answer) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO answer_fences (quiz_id, closed_through) VALUES ($1, -1)
			ON CONFLICT (quiz_id) DO NOTHING`, answer.QuizID); err != nil {
			return err
		}
		var closedThrough int
		if err := tx.QueryRow(ctx, `
			SELECT closed_through FROM answer_fences WHERE quiz_id=$1 FOR SHARE`,
			answer.QuizID).Scan(&closedThrough); err != nil {
			return err
		}
		if answer.QuestionIndex <= closedThrough {
			return domain.ErrQuestionClosed
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO answers (quiz_id, player_id, question_index, selected_option, submitted_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (quiz_id, player_id, question_index)
			DO UPDATE SET selected_option=EXCLUDED.selected_option, submitted_at=EXCLUDED.submitted_at`,
			answer.QuizID, answer.PlayerID, answer.QuestionIndex, answer.SelectedOptionIndex, answer.SubmittedAt)
		return err
	})
	return storeerr.Wrap("postgres", "put answer", err)
}

func (s *Store) CloseQuestions(ctx context.Context, quizID string, throughIndex int, _ bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO answer_fences (quiz_id, closed_through) VALUES ($1, $2)
		ON CONFLICT (quiz_id)
		DO UPDATE SET closed_through=GREATEST(answer_fences.closed_through, EXCLUDED.closed_through)`,
		quizID, throughIndex)
	return storeerr.Wrap("postgres", "close questions", err)
}

func (s *Store) GetAnswer(ctx context.Context, quizID, playerID string, questionIndex int) (domain.Answer, bool, error) {
	answer := domain.Answer{QuizID: quizID, PlayerID: playerID, QuestionIndex: questionIndex}
	err := s.pool.QueryRow(ctx, `
		SELECT selected_option, submitted_at FROM answers
		WHERE quiz_id=$1 AND player_id=$2 AND question_index=$3`,
		quizID, playerID, questionIndex).Scan(&answer.SelectedOptionIndex, &answer.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, storeerr.Wrap("postgres", "get answer", err)
	}
	return answer, true, nil
}

func (s *Store) ListAnswers(ctx context.Context, quizID string) (domain.AnswerSheet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_id, question_index, selected_option, submitted_at
		FROM answers WHERE quiz_id=$1`, quizID)
	if err != nil {
		return domain.AnswerSheet{}, storeerr.Wrap("postgres", "list answers", err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		a := domain.Answer{QuizID: quizID}
		if err := rows.Scan(&a.PlayerID, &a.QuestionIndex, &a.SelectedOptionIndex, &a.SubmittedAt); err != nil {
			return domain.AnswerSheet{}, storeerr.Wrap("postgres", "scan answer", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return domain.AnswerSheet{}, storeerr.Wrap("postgres", "list answers", err)
	}
	return domain.NewAnswerSheet(quizID, answers), nil
}

func (s *Store) DeleteAnswers(ctx context.Context, quizID string) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM answers WHERE quiz_id=$1`, quizID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM answer_fences WHERE quiz_id=$1`, quizID)
		return err
	})
	return storeerr.Wrap("postgres", "delete answers", err)
}
