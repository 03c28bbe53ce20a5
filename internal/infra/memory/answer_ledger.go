package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

type answerKey struct {
	playerID      string
	questionIndex int
}

// AnswerLedger keeps answers per quiz, one slot per player and question.
// closed holds the highest closed question index of each quiz.
type AnswerLedger struct {
	mu      sync.RWMutex
	answers map[string]map[answerKey]domain.Answer
	closed  map[string]int
}

func NewAnswerLedger() *AnswerLedger {
	return &AnswerLedger{
		answers: make(map[string]map[answerKey]domain.Answer),
		closed:  make(map[string]int),
	}
}

func (l *AnswerLedger) PutAnswer(_ context.Context, answer domain.Answer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if through, ok := l.closed[answer.QuizID]; ok && answer.QuestionIndex <= through {
		return domain.ErrQuestionClosed
	}
	byKey, ok := l.answers[answer.QuizID]
	if !ok {
		byKey = make(map[answerKey]domain.Answer)
		l.answers[answer.QuizID] = byKey
	}
	byKey[answerKey{answer.PlayerID, answer.QuestionIndex}] = answer
	return nil
}

func (l *AnswerLedger) CloseQuestions(_ context.Context, quizID string, throughIndex int, _ bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if through, ok := l.closed[quizID]; !ok || throughIndex > through {
		l.closed[quizID] = throughIndex
	}
	return nil
}

func (l *AnswerLedger) GetAnswer(_ context.Context, quizID, playerID string, questionIndex int) (domain.Answer, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	answer, ok := l.answers[quizID][answerKey{playerID, questionIndex}]
	return answer, ok, nil
}

func (l *AnswerLedger) ListAnswers(_ context.Context, quizID string) (domain.AnswerSheet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rows := make([]domain.Answer, 0, len(l.answers[quizID]))
	for _, answer := range l.answers[quizID] {
		rows = append(rows, answer)
	}
	return domain.NewAnswerSheet(quizID, rows), nil
}

func (l *AnswerLedger) DeleteAnswers(_ context.Context, quizID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.answers, quizID)
	delete(l.closed, quizID)
	return nil
}
