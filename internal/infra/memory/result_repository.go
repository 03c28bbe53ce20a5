package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/ranking"
)

// ResultRepository keeps one result per quiz and player.
type ResultRepository struct {
	mu      sync.RWMutex
	results map[string]map[string]domain.ResultRecord
}

func NewResultRepository() *ResultRepository {
	return &ResultRepository{results: make(map[string]map[string]domain.ResultRecord)}
}

func (r *ResultRepository) PutResults(_ context.Context, results []domain.ResultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range results {
		byPlayer, ok := r.results[rec.QuizID]
		if !ok {
			byPlayer = make(map[string]domain.ResultRecord)
			r.results[rec.QuizID] = byPlayer
		}
		byPlayer[rec.PlayerID] = rec
	}
	return nil
}

func (r *ResultRepository) ListResultsByQuiz(_ context.Context, quizID string, limit int) ([]domain.ResultRecord, error) {
	r.mu.RLock()
	out := make([]domain.ResultRecord, 0, len(r.results[quizID]))
	for _, rec := range r.results[quizID] {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	return ranking.TopResults(out, limit), nil
}

func (r *ResultRepository) ListResultsByPlayer(_ context.Context, playerID string) ([]domain.ResultRecord, error) {
	r.mu.RLock()
	var out []domain.ResultRecord
	for _, byPlayer := range r.results {
		if rec, ok := byPlayer[playerID]; ok {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()
	return ranking.NewestFirst(out), nil
}
