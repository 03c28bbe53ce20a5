package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"quiz-session-service/internal/domain"
)

const recentQuizLimit = 5

// QuizSummary is a library row without questions or players.
type QuizSummary struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Status        domain.Status `json:"status"`
	QuestionCount int           `json:"questionCount"`
	PlayerCount   int           `json:"playerCount"`
	UsageCount    int           `json:"usageCount"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	LastUsedAt    time.Time     `json:"lastUsedAt"`
}

// OwnerStats aggregates an owner's quiz library.
type OwnerStats struct {
	TotalQuizzes   int           `json:"totalQuizzes"`
	TotalQuestions int           `json:"totalQuestions"`
	MostUsed       *QuizSummary  `json:"mostUsedQuiz,omitempty"`
	RecentlyUsed   []QuizSummary `json:"recentQuizzes"`
}

// LibraryService answers read-only queries over quizzes and stored results.
type LibraryService struct {
	quizzes     QuizRepository
	results     ResultRepository
	callTimeout time.Duration
}

func NewLibraryService(store Store, callTimeout time.Duration) *LibraryService {
	return &LibraryService{quizzes: store.Quizzes, results: store.Results, callTimeout: callTimeout}
}

// ListQuizzes returns the owner's quizzes, most recently updated first.
func (l *LibraryService) ListQuizzes(ctx context.Context, ownerID string) ([]QuizSummary, error) {
	quizzes, err := l.ownerQuizzes(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return summarize(quizzes), nil
}

// Search filters the owner's quizzes by a case-insensitive title fragment.
func (l *LibraryService) Search(ctx context.Context, ownerID, term string) ([]QuizSummary, error) {
	quizzes, err := l.ownerQuizzes(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return summarize(quizzes), nil
	}
	matched := quizzes[:0]
	for _, q := range quizzes {
		if strings.Contains(strings.ToLower(q.Title), term) {
			matched = append(matched, q)
		}
	}
	return summarize(matched), nil
}

// Stats summarizes the owner's library.
func (l *LibraryService) Stats(ctx context.Context, ownerID string) (OwnerStats, error) {
	quizzes, err := l.ownerQuizzes(ctx, ownerID)
	if err != nil {
		return OwnerStats{}, err
	}
	stats := OwnerStats{TotalQuizzes: len(quizzes), RecentlyUsed: []QuizSummary{}}
	var used []domain.Quiz
	for _, q := range quizzes {
		stats.TotalQuestions += len(q.Questions)
		if q.UsageCount > 0 && (stats.MostUsed == nil || q.UsageCount > stats.MostUsed.UsageCount) {
			s := summaryOf(q)
			stats.MostUsed = &s
		}
		if !q.LastUsedAt.IsZero() {
			used = append(used, q)
		}
	}
	sort.SliceStable(used, func(i, j int) bool { return used[i].LastUsedAt.After(used[j].LastUsedAt) })
	if len(used) > recentQuizLimit {
		used = used[:recentQuizLimit]
	}
	stats.RecentlyUsed = append(stats.RecentlyUsed, summarize(used)...)
	return stats, nil
}

// QuizLeaderboard returns the stored top results of a quiz.
func (l *LibraryService) QuizLeaderboard(ctx context.Context, quizID string) ([]domain.ResultRecord, error) {
	return call(ctx, l.callTimeout, func(ctx context.Context) ([]domain.ResultRecord, error) {
		return l.results.ListResultsByQuiz(ctx, quizID, LeaderboardLimit)
	})
}

// PlayerResults returns a player's history, newest first.
func (l *LibraryService) PlayerResults(ctx context.Context, playerID string) ([]domain.ResultRecord, error) {
	if _, err := domain.RequireID("playerId", playerID); err != nil {
		return nil, err
	}
	return call(ctx, l.callTimeout, func(ctx context.Context) ([]domain.ResultRecord, error) {
		return l.results.ListResultsByPlayer(ctx, playerID)
	})
}

func (l *LibraryService) ownerQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	ownerID, err := domain.RequireID("ownerId", ownerID)
	if err != nil {
		return nil, err
	}
	quizzes, err := call(ctx, l.callTimeout, func(ctx context.Context) ([]domain.Quiz, error) {
		return l.quizzes.ListQuizzesByOwner(ctx, ownerID)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(quizzes, func(i, j int) bool { return quizzes[i].UpdatedAt.After(quizzes[j].UpdatedAt) })
	return quizzes, nil
}

func summarize(quizzes []domain.Quiz) []QuizSummary {
	out := make([]QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, summaryOf(q))
	}
	return out
}

func summaryOf(q domain.Quiz) QuizSummary {
	return QuizSummary{
		ID:            q.ID,
		Title:         q.Title,
		Status:        q.Status,
		QuestionCount: len(q.Questions),
		PlayerCount:   len(q.Players),
		UsageCount:    q.UsageCount,
		CreatedAt:     q.CreatedAt,
		UpdatedAt:     q.UpdatedAt,
		LastUsedAt:    q.LastUsedAt,
	}
}
