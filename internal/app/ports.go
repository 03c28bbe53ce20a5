package app

import (
	"context"

	"quiz-session-service/internal/domain"
)

// QuizRepository stores quiz documents with compare-and-swap writes.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// PutQuiz stores quiz with Version = expectedVersion+1. An expectedVersion of zero
	// creates the quiz. A stale version (or an existing id on create) yields domain.ErrVersionConflict.
	PutQuiz(ctx context.Context, quiz domain.Quiz, expectedVersion int64) error
	DeleteQuiz(ctx context.Context, quizID, ownerID string) error
	ListQuizzesByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error)
}

// AnswerLedger records one answer per player and question.
type AnswerLedger interface {
	// PutAnswer fails with domain.ErrQuestionClosed once the answer's question is closed.
	// The check and the write are atomic.
	PutAnswer(ctx context.Context, answer domain.Answer) error
	// CloseQuestions closes every question up to and including throughIndex.
	// Closing never reopens a question. A final close also keeps the ledger without expiry.
	CloseQuestions(ctx context.Context, quizID string, throughIndex int, final bool) error
	GetAnswer(ctx context.Context, quizID, playerID string, questionIndex int) (domain.Answer, bool, error)
	ListAnswers(ctx context.Context, quizID string) (domain.AnswerSheet, error)
	DeleteAnswers(ctx context.Context, quizID string) error
}

// ResultRepository keeps final scores. Writes are upserts keyed by quiz and player.
type ResultRepository interface {
	PutResults(ctx context.Context, results []domain.ResultRecord) error
	// ListResultsByQuiz orders by score desc then completion asc.
	ListResultsByQuiz(ctx context.Context, quizID string, limit int) ([]domain.ResultRecord, error)
	// ListResultsByPlayer orders by completion desc.
	ListResultsByPlayer(ctx context.Context, playerID string) ([]domain.ResultRecord, error)
}

// EventSink receives snapshots after each committed change. Delivery is best effort.
type EventSink interface {
	Publish(ctx context.Context, snapshot domain.Snapshot)
}

// Notifier fans snapshots out to subscribers of a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
type Notifier interface {
	EventSink
	Subscribe(ctx context.Context, quizID string) (<-chan domain.Snapshot, func(), error)
}

// Store bundles the persistence gateway.
type Store struct {
	Quizzes QuizRepository
	Answers AnswerLedger
	Results ResultRepository
}
