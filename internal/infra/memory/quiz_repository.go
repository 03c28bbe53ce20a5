package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// QuizRepository is an in-process app.QuizRepository. Writes compare versions
// under a single lock.
type QuizRepository struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizRepository() *QuizRepository {
	return &QuizRepository{quizzes: make(map[string]domain.Quiz)}
}

func (r *QuizRepository) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	quiz, ok := r.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz.Clone(), nil
}

func (r *QuizRepository) PutQuiz(_ context.Context, quiz domain.Quiz, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.quizzes[quiz.ID]
	switch {
	case expectedVersion == 0 && exists:
		return domain.ErrVersionConflict
	case expectedVersion > 0 && (!exists || current.Version != expectedVersion):
		return domain.ErrVersionConflict
	}
	stored := quiz.Clone()
	stored.Version = expectedVersion + 1
	r.quizzes[quiz.ID] = stored
	return nil
}

func (r *QuizRepository) DeleteQuiz(_ context.Context, quizID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[quizID]
	if !ok || quiz.OwnerID != ownerID {
		return domain.ErrQuizNotFound
	}
	delete(r.quizzes, quizID)
	return nil
}

func (r *QuizRepository) ListQuizzesByOwner(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Quiz
	for _, quiz := range r.quizzes {
		if quiz.OwnerID == ownerID {
			out = append(out, quiz.Clone())
		}
	}
	return out, nil
}
