package app

import (
	"sort"
	"time"

	"quiz-session-service/internal/domain"
)

// LeaderboardLimit caps stored leaderboard queries.
const LeaderboardLimit = 10

// Score computes the final leaderboard of a quiz from its answer sheet.
// It is pure: the same quiz and sheet always give the same ranking.
func Score(quiz domain.Quiz, sheet domain.AnswerSheet, now time.Time) domain.Leaderboard {
	type row struct {
		entry domain.LeaderboardEntry
		done  time.Time
		known bool
	}
	rows := make([]row, 0, len(quiz.Players))
	for _, p := range quiz.Players {
		score := 0
		for i, q := range quiz.Questions {
			if a, ok := sheet.Get(p.ID, i); ok && a.SelectedOptionIndex == q.CorrectOptionIndex {
				score++
			}
		}
		r := row{entry: domain.LeaderboardEntry{PlayerID: p.ID, PlayerName: p.DisplayName, Score: score}}
		r.done, r.known = sheet.CompletedAt(p.ID)
		if r.known {
			done := r.done
			r.entry.CompletedAt = &done
		}
		rows = append(rows, r)
	}

	// Score desc, then earliest completion; players that never answered sort after timed
	// ones. Stability keeps join order for the rest.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].entry.Score != rows[j].entry.Score {
			return rows[i].entry.Score > rows[j].entry.Score
		}
		if rows[i].known != rows[j].known {
			return rows[i].known
		}
		if rows[i].known && !rows[i].done.Equal(rows[j].done) {
			return rows[i].done.Before(rows[j].done)
		}
		return false
	})

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, r := range rows {
		r.entry.Rank = i + 1
		entries[i] = r.entry
	}
	return domain.Leaderboard{
		QuizID:         quiz.ID,
		TotalQuestions: len(quiz.Questions),
		Entries:        entries,
		ComputedAt:     now,
	}
}

// ResultsFor converts a leaderboard into result records carrying each player's
// graded selections. Players without any submission complete at finishedAt.
func ResultsFor(quiz domain.Quiz, board domain.Leaderboard, sheet domain.AnswerSheet, finishedAt time.Time) []domain.ResultRecord {
	out := make([]domain.ResultRecord, 0, len(board.Entries))
	for _, e := range board.Entries {
		completed := finishedAt
		if e.CompletedAt != nil {
			completed = *e.CompletedAt
		}
		answers := make([]domain.ResultAnswer, 0, len(quiz.Questions))
		for i, q := range quiz.Questions {
			if a, ok := sheet.Get(e.PlayerID, i); ok {
				answers = append(answers, domain.ResultAnswer{
					QuestionIndex:       i,
					SelectedOptionIndex: a.SelectedOptionIndex,
					IsCorrect:           a.SelectedOptionIndex == q.CorrectOptionIndex,
				})
			}
		}
		out = append(out, domain.ResultRecord{
			QuizID:         quiz.ID,
			QuizTitle:      quiz.Title,
			PlayerID:       e.PlayerID,
			PlayerName:     e.PlayerName,
			Score:          e.Score,
			TotalQuestions: board.TotalQuestions,
			CompletedAt:    completed,
			Answers:        answers,
		})
	}
	return out
}
